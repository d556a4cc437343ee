// Package paste splits text pasted by author into titled chapters using
// explicit marker lines. No inference is made about chapter boundaries or
// titles: the marker separates chapters and the first non-blank line of every
// chapter is its title.
package paste

import (
	"strings"

	"go.uber.org/zap"

	"msimport/content"
	"msimport/doctree"
	"msimport/normalize"
)

// Segmenter splits pasted text.
type Segmenter struct {
	marker string
	norm   *normalize.Normalizer
	log    *zap.Logger
}

// New creates segmenter. Empty marker means content.DefaultMarker. When norm
// is nil pasted HTML is normalized without stylesheet.
func New(marker string, norm *normalize.Normalizer, log *zap.Logger) *Segmenter {
	if log == nil {
		log = zap.NewNop()
	}
	if marker = strings.TrimSpace(marker); marker == "" {
		marker = content.DefaultMarker
	}
	if norm == nil {
		norm = normalize.New(log)
	}
	return &Segmenter{marker: marker, norm: norm, log: log.Named("paste")}
}

// Segment splits text with default marker.
func Segment(raw string) ([]content.Chapter, error) {
	return New("", nil, nil).Segment(raw)
}

// Segment splits raw pasted text into chapters. Blank input is
// content.ErrorKindEmptyInput. Plain text becomes paragraphs separated by blank
// lines, text which looks like HTML goes through normalizer.
func (s *Segmenter) Segment(raw string) ([]content.Chapter, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")
	raw = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(raw)
	if strings.TrimSpace(raw) == "" {
		return nil, content.NewError(content.ErrorKindEmptyInput, "", "pasted text is blank")
	}

	var chapters []content.Chapter
	if normalize.LooksLikeHTML(raw) {
		chapters = s.segmentHTML(raw)
	} else {
		chapters = s.segmentText(raw)
	}
	if len(chapters) == 0 {
		// only markers and blank lines
		return nil, content.NewError(content.ErrorKindEmptyInput, "", "pasted text has no chapters")
	}
	s.log.Debug("Pasted text segmented", zap.Int("chapters", len(chapters)), zap.Int("bytes", len(raw)))
	return chapters, nil
}

func (s *Segmenter) isMarker(line string) bool {
	return strings.TrimSpace(line) == s.marker
}

func (s *Segmenter) segmentText(raw string) []content.Chapter {
	var (
		chapters []content.Chapter
		block    []string
	)
	flush := func() {
		if ch, ok := textChapter(block); ok {
			chapters = append(chapters, ch)
		}
		block = block[:0]
	}
	for line := range strings.SplitSeq(raw, "\n") {
		if s.isMarker(line) {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	return chapters
}

// textChapter builds chapter from lines of a single block. Block without
// non-blank lines yields no chapter.
func textChapter(lines []string) (content.Chapter, bool) {
	first := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			first = i
			break
		}
	}
	if first < 0 {
		return content.Chapter{}, false
	}
	title := strings.TrimSpace(doctree.CleanText(lines[first]))

	var (
		body = doctree.Document()
		para []string
	)
	flush := func() {
		if len(para) == 0 {
			return
		}
		b := doctree.NewInlineBuilder()
		b.Text(strings.Join(para, "\n"), doctree.Marks{})
		if nodes := b.Nodes(); len(nodes) > 0 {
			body.Append(doctree.Paragraph(nodes...))
		}
		para = para[:0]
	}
	for _, line := range lines[first+1:] {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()
	return content.NewChapter(title, body), true
}

// segmentHTML splits markup on marker lines before anything is normalized,
// so line feeds and <br> still separate lines. Marker may be wrapped into
// block elements of its own, like <p> or <h2>.
func (s *Segmenter) segmentHTML(raw string) []content.Chapter {
	pieces := scan(raw)

	var (
		chapters []content.Chapter
		from     int
	)
	flush := func(to int) {
		if ch, ok := s.htmlChapter(raw, pieces[from:to]); ok {
			chapters = append(chapters, ch)
		}
	}
	for _, l := range splitLines(pieces) {
		if l.media || !s.isMarker(l.text) {
			continue
		}
		lo, hi := cut(pieces, l.first, l.last)
		flush(lo)
		from = hi
	}
	flush(len(pieces))
	return chapters
}

// htmlChapter takes title from the first line with text, the line is not
// part of the body. Chunk holding block elements is normalized as is, other
// chunks get paragraphs separated by blank lines like plain text does.
func (s *Segmenter) htmlChapter(raw string, pieces []piece) (content.Chapter, bool) {
	if len(pieces) == 0 {
		return content.Chapter{}, false
	}
	start, end := pieces[0].start, pieces[len(pieces)-1].end
	lines := splitLines(pieces)
	title := -1
	for i, l := range lines {
		if strings.TrimSpace(l.text) != "" {
			title = i
			break
		}
	}

	var body string
	switch {
	case title < 0:
		body = raw[start:end]
	case hasBlocks(pieces):
		body = raw[start:lines[title].start] + raw[lines[title].end:end]
	default:
		body = paragraphs(raw, lines, title)
	}
	tree, dropped := s.norm.Fragment(body, nil)
	if title < 0 && tree.IsEmpty() {
		return content.Chapter{}, false
	}

	var name string
	if title >= 0 {
		name = strings.TrimSpace(doctree.CleanText(lines[title].text))
	}
	ch := content.NewChapter(name, tree)
	if len(dropped) > 0 {
		s.log.Debug("Unsupported elements dropped", zap.String("chapter", name), zap.Strings("elements", dropped))
		ch.Warn(content.WarningKindUnsupportedPart, "", "unsupported elements dropped: "+strings.Join(dropped, ", "))
	}
	return ch, true
}
