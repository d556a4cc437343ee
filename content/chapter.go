// Package content defines what decoders produce and what the rest of the
// import pipeline consumes: parsed chapters grouped into a manuscript,
// warnings attached to them and the error taxonomy of the pipeline.
package content

import (
	"golang.org/x/text/language"

	"msimport/common"
	"msimport/doctree"
)

// DefaultMarker is the chapter separator line authors put into pasted text
// and DOCX documents.
const DefaultMarker = "---CHAPTER---"

// LowContentWords is the default threshold below which chapter is flagged as
// likely not real content.
const LowContentWords = 50

// Warning is an anomaly found during decoding, for display next to the
// affected chapter (or the whole manuscript when no chapter is affected).
type Warning struct {
	Kind    WarningKind
	Part    string // archive entry or element the warning is about, if any
	Message string
}

func (w Warning) String() string {
	if w.Part == "" {
		return w.Kind.String() + ": " + w.Message
	}
	return w.Kind.String() + ": " + w.Part + ": " + w.Message
}

// Chapter is the unit produced by every decoder and consumed by the import
// session and committer. Word count is not stored, it is always derived from
// Content with doctree.WordCount.
type Chapter struct {
	Title    string
	Content  *doctree.Node
	Warnings []Warning
}

// NewChapter creates chapter making sure content is never nil.
func NewChapter(title string, body *doctree.Node) Chapter {
	if body == nil {
		body = doctree.Document()
	}
	return Chapter{Title: title, Content: body}
}

// WordCount of the chapter content.
func (c *Chapter) WordCount() uint32 {
	return doctree.WordCount(c.Content)
}

// Warn attaches warning to the chapter.
func (c *Chapter) Warn(kind WarningKind, part, msg string) {
	c.Warnings = append(c.Warnings, Warning{Kind: kind, Part: part, Message: msg})
}

// Clone makes a deep copy of the chapter.
func (c Chapter) Clone() Chapter {
	c.Content = c.Content.Clone()
	if c.Warnings != nil {
		c.Warnings = append([]Warning(nil), c.Warnings...)
	}
	return c
}

// Manuscript is the complete result of a successful decode.
type Manuscript struct {
	Source   string // name of the source, informational
	Format   common.InputFmt
	Title    string       // title suggested by the source metadata, may be empty
	Language language.Tag // language declared by the source, language.Und if unknown
	Chapters []Chapter
	// anomalies which could not be attached to a particular chapter
	Warnings []Warning
}

// Warn attaches manuscript level warning.
func (m *Manuscript) Warn(kind WarningKind, part, msg string) {
	m.Warnings = append(m.Warnings, Warning{Kind: kind, Part: part, Message: msg})
}

// WordCount is the total word count of all chapters.
func (m *Manuscript) WordCount() uint64 {
	var total uint64
	for i := range m.Chapters {
		total += uint64(m.Chapters[i].WordCount())
	}
	return total
}
