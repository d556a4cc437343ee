package content

import (
	"cmp"
	"slices"

	"github.com/maruel/natural"

	"msimport/doctree"
	"msimport/utils/debug"
)

// String returns a readable dump of the whole manuscript including chapter
// trees. It exists solely for debug reports and manual inspection.
func (m *Manuscript) String() string {
	if m == nil {
		return "<nil Manuscript>"
	}

	tw := debug.NewTreeWriter()
	tw.Attrs(0, "Manuscript", "source", m.Source, "format", m.Format.String(), "title", m.Title, "language", m.Language.String())
	tw.Line(1, "Chapters: %d, words: %d", len(m.Chapters), m.WordCount())

	if len(m.Warnings) > 0 {
		tw.Line(1, "Warnings: %d", len(m.Warnings))
		for _, w := range sortedWarnings(m.Warnings) {
			tw.Line(2, "%s", w)
		}
	}
	out := tw.String()

	for i := range m.Chapters {
		c := &m.Chapters[i]
		tw := debug.NewTreeWriter()
		tw.Line(0, "Chapter[%d] words[%d]", i, c.WordCount())
		tw.TextBlock(1, "title", c.Title)
		for _, w := range sortedWarnings(c.Warnings) {
			tw.Line(1, "warning: %s", w)
		}
		out += tw.String() + doctree.Dump(c.Content)
	}
	return out
}

// sortedWarnings orders warnings by part name (naturally, so "ch2" goes
// before "ch10") keeping original order for the same part.
func sortedWarnings(in []Warning) []Warning {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b Warning) int {
		switch {
		case a.Part == b.Part:
			return cmp.Compare(a.Kind, b.Kind)
		case natural.Less(a.Part, b.Part):
			return -1
		default:
			return 1
		}
	})
	return out
}
