package doctree

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanText brings text into canonical form: NFC normalized, every run of
// white space (including line breaks) collapsed into a single space. Leading
// and trailing space is kept (collapsed) since it separates adjacent inline
// runs.
func CleanText(s string) string {
	s = norm.NFC.String(s)

	var (
		b     strings.Builder
		space bool
	)
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\u00ad' || r == '\u200b' || r == '\ufeff':
			// soft hyphens, zero width spaces and stray BOMs
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

// PlainText extracts text of the subtree. Inline leaves of a block are
// concatenated as is, blocks are separated by new lines. Image alt text is
// not included.
func (n *Node) PlainText() string {
	var b strings.Builder
	n.writePlainText(&b)
	return strings.TrimSpace(b.String())
}

func (n *Node) writePlainText(b *strings.Builder) {
	if n == nil {
		return
	}
	switch n.Kind {
	case KindText:
		b.WriteString(n.Text)
		return
	case KindImage, KindHorizontalRule:
		return
	}
	for _, c := range n.Children {
		c.writePlainText(b)
	}
	if n.Kind.IsBlock() || n.Kind == KindListItem || n.Kind == KindTableCell || n.Kind == KindTableRow {
		b.WriteByte('\n')
	}
}

// WordCount counts white space separated tokens of the tree text. This is
// the only word counting used across the program: decoders, session
// statistics and stored chapter counts all go through it.
func WordCount(n *Node) uint32 {
	if n == nil {
		return 0
	}
	return CountWords(n.PlainText())
}

// CountWords counts white space separated tokens of a plain string.
func CountWords(s string) uint32 {
	return uint32(len(strings.Fields(s)))
}

// InlineBuilder accumulates inline content of a single block, merging
// adjacent text runs with identical marks and collapsing white space across
// run boundaries.
type InlineBuilder struct {
	nodes []*Node
	// true when nothing was written yet or the last written character is a
	// space, leading space of the next run is dropped then
	space bool
}

func NewInlineBuilder() *InlineBuilder {
	return &InlineBuilder{space: true}
}

// Text appends text run.
func (b *InlineBuilder) Text(s string, marks Marks) {
	s = CleanText(s)
	if b.space {
		s = strings.TrimPrefix(s, " ")
	}
	if s == "" {
		return
	}
	b.space = strings.HasSuffix(s, " ")

	if l := len(b.nodes); l > 0 {
		if last := b.nodes[l-1]; last.Kind == KindText && last.Marks == marks {
			last.Text += s
			return
		}
	}
	b.nodes = append(b.nodes, Text(s, marks))
}

// Break appends line break, which is rendered as a space.
func (b *InlineBuilder) Break(marks Marks) {
	b.Text(" ", marks)
}

// Inline appends non-text inline node (image).
func (b *InlineBuilder) Inline(n *Node) {
	if n == nil {
		return
	}
	b.nodes = append(b.nodes, n)
	b.space = false
}

// Empty reports whether anything besides white space was added.
func (b *InlineBuilder) Empty() bool {
	for _, n := range b.nodes {
		if n.Kind != KindText || strings.TrimSpace(n.Text) != "" {
			return false
		}
	}
	return true
}

// Nodes returns accumulated inline nodes with trailing space removed and
// resets the builder.
func (b *InlineBuilder) Nodes() []*Node {
	nodes := b.nodes
	for len(nodes) > 0 {
		last := nodes[len(nodes)-1]
		if last.Kind != KindText {
			break
		}
		last.Text = strings.TrimRight(last.Text, " ")
		if last.Text != "" {
			break
		}
		nodes = nodes[:len(nodes)-1]
	}
	b.nodes, b.space = nil, true
	return nodes
}
