// Package docx decodes WordprocessingML documents into chapters. Paragraph
// stream of the main document part is converted to document tree directly
// and split on heading styles and chapter marker paragraphs.
package docx

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"msimport/archive"
	"msimport/common"
	"msimport/content"
	"msimport/doctree"
)

const (
	// DefaultSplitLevel - headings of levels 1 and 2 start new chapters.
	DefaultSplitLevel = 2
	// DefaultUntitled names chapter formed by content preceding the first
	// boundary.
	DefaultUntitled = "Untitled"

	defaultMainPart = "word/document.xml"
)

// Options controls DOCX decoding.
type Options struct {
	// Marker is the chapter separator paragraph, content.DefaultMarker when
	// empty.
	Marker string
	// UntitledTitle names leading content and marker chapters without
	// title paragraph.
	UntitledTitle string
	// HeadingStyles are additional style names or ids treated as chapter
	// headings of level 1.
	HeadingStyles []string
	// SplitLevel is the deepest heading level which starts a chapter, 0
	// means DefaultSplitLevel.
	SplitLevel int
	Archive    archive.Options
}

// Decoder decodes DOCX containers.
type Decoder struct {
	opts  Options
	extra map[string]bool
	log   *zap.Logger
}

// New creates decoder.
func New(opts Options, log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Marker = strings.TrimSpace(opts.Marker); opts.Marker == "" {
		opts.Marker = content.DefaultMarker
	}
	if opts.UntitledTitle = strings.TrimSpace(opts.UntitledTitle); opts.UntitledTitle == "" {
		opts.UntitledTitle = DefaultUntitled
	}
	if opts.SplitLevel <= 0 {
		opts.SplitLevel = DefaultSplitLevel
	}
	extra := make(map[string]bool, len(opts.HeadingStyles))
	for _, name := range opts.HeadingStyles {
		if n := normalizeName(name); n != "" {
			extra[n] = true
		}
	}
	return &Decoder{opts: opts, extra: extra, log: log.Named("docx")}
}

// Decode unpacks DOCX and produces manuscript. Failures to open archive are
// content.ErrorKindCorruptArchive, absent main document part is
// content.ErrorKindMissingManifest. Unsupported embedded parts are warnings attached
// to the chapter they were found in.
func (d *Decoder) Decode(ctx context.Context, name string, data []byte) (*content.Manuscript, error) {
	a, err := archive.Open(name, data, d.opts.Archive, d.log)
	if err != nil {
		return nil, err
	}

	part := findMainPart(a, d.log)
	doc, err := a.ReadXML(part)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, content.NewError(content.ErrorKindMissingManifest, part, "main document part is absent")
		}
		return nil, err
	}
	body := doc.Root().SelectElement("body")
	if body == nil {
		return nil, content.NewError(content.ErrorKindMissingManifest, part, "document has no body")
	}

	rels := readRels(a, part, d.log)
	st := readStyles(a, relTarget(rels, "/styles", "word/styles.xml"), d.log)
	num := readNumbering(a, relTarget(rels, "/numbering", "word/numbering.xml"), d.log)

	m := &content.Manuscript{
		Source:   name,
		Format:   common.InputFmtDocx,
		Title:    readTitle(a, d.log),
		Language: language.Und,
	}
	if st.lang != "" {
		if tag, err := language.Parse(st.lang); err == nil {
			m.Language = tag
		} else {
			d.log.Debug("Unable to parse document language, ignoring", zap.String("lang", st.lang), zap.Error(err))
		}
	}

	sp := &splitter{
		marker:     d.opts.Marker,
		untitled:   d.opts.UntitledTitle,
		splitLevel: d.opts.SplitLevel,
		m:          m,
	}
	c := &converter{
		styles:    st,
		numbering: num,
		rels:      rels,
		has:       a.Has,
		extra:     d.extra,
		log:       d.log,
		warn: func(p, msg string) {
			d.log.Warn("Unsupported content", zap.String("part", p), zap.String("details", msg))
			sp.warn(p, msg)
		},
	}

	var walkErr error
	c.walkBlocks(body, func(el *etree.Element) {
		if walkErr != nil {
			return
		}
		if walkErr = ctx.Err(); walkErr != nil {
			return
		}
		switch el.Tag {
		case "p":
			sp.paragraph(c.paragraph(el))
		case "tbl":
			sp.block(c.table(el))
		case "sectPr", "bookmarkStart", "bookmarkEnd", "proofErr", "permStart", "permEnd":
		default:
			d.log.Debug("Ignoring body element", zap.String("tag", el.FullTag()))
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}
	sp.flush()

	d.log.Debug("Document decoded", zap.String("part", part), zap.Int("chapters", len(m.Chapters)))
	return m, nil
}

// splitter is the chapter accumulator.
type splitter struct {
	marker     string
	untitled   string
	splitLevel int
	m          *content.Manuscript

	title string
	// chapter was opened by heading or marker, leading content otherwise
	opened bool
	// chapter was opened by marker and expects title paragraph
	needTitle bool
	acc       blockAcc
	warnings  []content.Warning
}

func (s *splitter) warn(part, msg string) {
	s.warnings = append(s.warnings, content.Warning{Kind: content.WarningKindUnsupportedPart, Part: part, Message: msg})
}

func (s *splitter) empty() bool {
	return doctree.Document(s.acc.blocks...).IsEmpty()
}

// flush emits accumulated chapter. Empty leading content and marker
// chapters without any text are dropped, their warnings move to the
// manuscript.
func (s *splitter) flush() {
	drop := s.empty() && (!s.opened || s.needTitle)
	if drop {
		s.m.Warnings = append(s.m.Warnings, s.warnings...)
	} else {
		title := s.title
		if title == "" {
			title = s.untitled
		}
		ch := content.NewChapter(title, doctree.Document(s.acc.blocks...))
		ch.Warnings = s.warnings
		s.m.Chapters = append(s.m.Chapters, ch)
	}
	s.title, s.opened, s.needTitle = "", false, false
	s.acc = blockAcc{}
	s.warnings = nil
}

func (s *splitter) paragraph(info paraInfo) {
	text := strings.TrimSpace(info.text())
	switch {
	case text == s.marker:
		s.flush()
		s.opened, s.needTitle = true, true
		return
	case info.level > 0 && info.level <= s.splitLevel && text != "":
		// marker immediately followed by heading produces single chapter
		if !(s.needTitle && s.empty()) {
			s.flush()
		}
		s.title, s.opened, s.needTitle = text, true, false
		return
	}
	if s.needTitle && !info.empty {
		s.needTitle = false
		if text != "" && !info.list {
			s.title = text
			return
		}
	}
	s.acc.add(info)
}

func (s *splitter) block(n *doctree.Node) {
	if n == nil {
		return
	}
	s.needTitle = false
	s.acc.block(n)
}

// findMainPart locates main document part: content types override first,
// then package relationships, then conventional location.
func findMainPart(a *archive.Archive, log *zap.Logger) string {
	if doc, err := a.ReadXML("[Content_Types].xml"); err == nil {
		for _, o := range doc.Root().SelectElements("Override") {
			ct := strings.ToLower(o.SelectAttrValue("ContentType", ""))
			if strings.HasSuffix(ct, ".main+xml") && (strings.Contains(ct, "wordprocessingml") || strings.Contains(ct, "ms-word")) {
				if p := archive.Resolve("", o.SelectAttrValue("PartName", "")); p != "" {
					return p
				}
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Debug("Unable to read content types", zap.Error(err))
	}
	if p := relTarget(readRels(a, "", log), "/officeDocument", ""); p != "" {
		return p
	}
	return defaultMainPart
}

// readTitle returns title from core document properties.
func readTitle(a *archive.Archive, log *zap.Logger) string {
	part := relTarget(readRels(a, "", log), "/core-properties", "docProps/core.xml")
	doc, err := a.ReadXML(part)
	if err != nil {
		return ""
	}
	el := doc.Root().SelectElement("title")
	if el == nil {
		return ""
	}
	return strings.TrimSpace(doctree.CleanText(el.Text()))
}
