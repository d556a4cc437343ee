package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"go.uber.org/zap/zaptest"

	"msimport/content"
	"msimport/doctree"
)

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"
	relNS = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"
)

type rel struct {
	id, typ, target string
	external        bool
}

// document describes synthetic DOCX package.
type document struct {
	mainPart  string
	body      string
	styles    string
	numbering string
	core      string
	rels      []rel
	extra     map[string][]byte
	// write [Content_Types].xml override for main part
	override bool
}

func newDocument(body ...string) *document {
	return &document{mainPart: "word/document.xml", body: strings.Join(body, ""), extra: map[string][]byte{}, override: true}
}

func writeData(t *testing.T, zw *zip.Writer, name string, data []byte) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
}

func writeXML(t *testing.T, zw *zip.Writer, name string, doc *etree.Document) {
	t.Helper()
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	writeData(t, zw, name, buf.Bytes())
}

func wordPart(root, inner string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:%s xmlns:w="%s" xmlns:r="%s"
 xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
 xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
 xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture"
 xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006"
 xmlns:v="urn:schemas-microsoft-com:vml">%s</w:%s>`, root, nsW, nsR, inner, root)
}

func (d *document) bytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	ct := etree.NewDocument()
	types := ct.CreateElement("Types")
	types.CreateAttr("xmlns", "http://schemas.openxmlformats.org/package/2006/content-types")
	def := types.CreateElement("Default")
	def.CreateAttr("Extension", "rels")
	def.CreateAttr("ContentType", "application/vnd.openxmlformats-package.relationships+xml")
	if d.override {
		o := types.CreateElement("Override")
		o.CreateAttr("PartName", "/"+d.mainPart)
		o.CreateAttr("ContentType", "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml")
	}
	writeXML(t, zw, "[Content_Types].xml", ct)

	pkgRels := etree.NewDocument()
	root := pkgRels.CreateElement("Relationships")
	root.CreateAttr("xmlns", nsRel)
	for i, r := range []rel{{typ: "officeDocument", target: d.mainPart}, {typ: "metadata/core-properties", target: "docProps/core.xml"}} {
		el := root.CreateElement("Relationship")
		el.CreateAttr("Id", fmt.Sprintf("rId%d", i+1))
		el.CreateAttr("Type", relNS+r.typ)
		el.CreateAttr("Target", r.target)
	}
	writeXML(t, zw, "_rels/.rels", pkgRels)

	writeData(t, zw, d.mainPart, []byte(wordPart("document", "<w:body>"+d.body+"<w:sectPr/></w:body>")))
	if len(d.rels) > 0 {
		docRels := etree.NewDocument()
		root := docRels.CreateElement("Relationships")
		root.CreateAttr("xmlns", nsRel)
		for _, r := range d.rels {
			el := root.CreateElement("Relationship")
			el.CreateAttr("Id", r.id)
			el.CreateAttr("Type", relNS+r.typ)
			el.CreateAttr("Target", r.target)
			if r.external {
				el.CreateAttr("TargetMode", "External")
			}
		}
		writeXML(t, zw, relsPath(d.mainPart), docRels)
	}
	if d.styles != "" {
		writeData(t, zw, "word/styles.xml", []byte(wordPart("styles", d.styles)))
	}
	if d.numbering != "" {
		writeData(t, zw, "word/numbering.xml", []byte(wordPart("numbering", d.numbering)))
	}
	if d.core != "" {
		writeData(t, zw, "docProps/core.xml", []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>%s</dc:title></cp:coreProperties>`, d.core)))
	}
	for name, data := range d.extra {
		writeData(t, zw, name, data)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// p builds paragraph with optional style id.
func p(style string, runs ...string) string {
	var pPr string
	if style != "" {
		pPr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return "<w:p>" + pPr + strings.Join(runs, "") + "</w:p>"
}

// r builds run, props are raw run property elements.
func r(text string, props ...string) string {
	var rPr string
	if len(props) > 0 {
		rPr = "<w:rPr>" + strings.Join(props, "") + "</w:rPr>"
	}
	return `<w:r>` + rPr + `<w:t xml:space="preserve">` + text + `</w:t></w:r>`
}

func text(s string) string {
	return p("", r(s))
}

func decode(t *testing.T, d *document, opts Options) *content.Manuscript {
	t.Helper()
	m, err := New(opts, zaptest.NewLogger(t)).Decode(context.Background(), "test.docx", d.bytes(t))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return m
}

func titles(m *content.Manuscript) []string {
	out := make([]string, 0, len(m.Chapters))
	for _, ch := range m.Chapters {
		out = append(out, ch.Title)
	}
	return out
}

func checkTitles(t *testing.T, m *content.Manuscript, want ...string) {
	t.Helper()
	got := titles(m)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("titles = %q, want %q", got, want)
	}
}

func TestHeadingSplit(t *testing.T) {
	d := newDocument(
		text("Front matter."),
		p("Heading1", r("One")),
		text("alpha"),
		p("Heading3", r("Deep")),
		text("beta"),
		p("Titre2", r("Two")),
		text("gamma"),
		p("MyChapter", r("Three")),
		text("delta"),
	)
	// localized name behind custom id, based on chain
	d.styles = `<w:style w:type="paragraph" w:styleId="Base"><w:name w:val="Überschrift 1"/></w:style>` +
		`<w:style w:type="paragraph" w:styleId="MyChapter"><w:name w:val="My Chapter"/><w:basedOn w:val="Base"/></w:style>`

	m := decode(t, d, Options{})
	checkTitles(t, m, "Untitled", "One", "Two", "Three")

	one := m.Chapters[1].Content
	if len(one.Children) != 3 {
		t.Fatalf("chapter One body:\n%s", doctree.Dump(one))
	}
	if h := one.Children[1]; h.Kind != doctree.KindHeading || h.Level != 3 || h.PlainText() != "Deep" {
		t.Errorf("deep heading must stay in body:\n%s", doctree.Dump(one))
	}
	for i, want := range []string{"Front matter.", "alpha Deep beta", "gamma", "delta"} {
		if got := strings.Join(strings.Fields(m.Chapters[i].Content.PlainText()), " "); got != want {
			t.Errorf("chapter %d text = %q, want %q", i, got, want)
		}
	}
}

func TestHeadingByName(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"heading 1", 1},
		{"Heading2", 2},
		{"HEADING 3", 3},
		{"berschrift1", 1},
		{"Überschrift 2", 2},
		{"Заголовок 1", 1},
		{"heading", 0},
		{"Heading1Char", 0},
		{"Normal", 0},
		{"Title", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := headingByName(tt.name); got != tt.want {
				t.Errorf("headingByName(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestExtraHeadingStylesAndOutline(t *testing.T) {
	d := newDocument(
		p("ChapterTitle", r("Custom")),
		text("one"),
		`<w:p><w:pPr><w:outlineLvl w:val="0"/></w:pPr>`+r("Outlined")+`</w:p>`,
		text("two"),
	)
	m := decode(t, d, Options{HeadingStyles: []string{"Chapter Title"}})
	checkTitles(t, m, "Custom", "Outlined")
}

func TestMarkerParagraphs(t *testing.T) {
	d := newDocument(
		text("---CHAPTER---"),
		text("First"),
		text("body one"),
		p("", r("  ---CHAPTER---  ")),
		p("Heading1", r("Second")),
		text("body two"),
		text("---CHAPTER---"),
		text("   "),
		text("---CHAPTER---"),
		text("Third"),
	)
	m := decode(t, d, Options{})
	checkTitles(t, m, "First", "Second", "Third")
	for i, want := range []string{"body one", "body two", ""} {
		if got := m.Chapters[i].Content.PlainText(); got != want {
			t.Errorf("chapter %d text = %q, want %q", i, got, want)
		}
	}
	for _, ch := range m.Chapters {
		if strings.Contains(ch.Content.PlainText(), "CHAPTER") {
			t.Errorf("marker leaked into %q", ch.Title)
		}
	}
}

func TestLeadingContent(t *testing.T) {
	t.Run("empty dropped", func(t *testing.T) {
		d := newDocument(text("  "), p(""), p("Heading1", r("A")), text("x"))
		checkTitles(t, decode(t, d, Options{}), "A")
	})
	t.Run("non-empty kept", func(t *testing.T) {
		d := newDocument(text("Dedication"), p("Heading1", r("A")), text("x"))
		checkTitles(t, decode(t, d, Options{UntitledTitle: "Prologue"}), "Prologue", "A")
	})
	t.Run("no boundaries", func(t *testing.T) {
		d := newDocument(text("just"), text("text"))
		m := decode(t, d, Options{})
		checkTitles(t, m, "Untitled")
		if m.Chapters[0].WordCount() != 2 {
			t.Errorf("word count = %d", m.Chapters[0].WordCount())
		}
	})
	t.Run("empty heading chapter kept", func(t *testing.T) {
		d := newDocument(p("Heading1", r("A")), p("Heading1", r("B")), text("x"))
		checkTitles(t, decode(t, d, Options{}), "A", "B")
	})
}

func TestRunMarks(t *testing.T) {
	d := newDocument(
		p("Heading1", r("Marks")),
		p("Emph",
			r("plain "),
			r("bold ", "<w:b/>"),
			r("upright ", `<w:i w:val="0"/>`),
			r("under ", `<w:u w:val="single"/>`),
			r("nounder ", `<w:u w:val="none"/>`),
			r("gone ", "<w:vanish/>"),
			r("struck", "<w:strike/>"),
			`<w:hyperlink r:id="rIdLink">`+r(" link")+`</w:hyperlink>`,
			`<w:del><w:r><w:delText>deleted</w:delText></w:r></w:del>`,
			`<w:ins>`+r(" inserted")+`</w:ins>`,
		),
	)
	d.styles = `<w:style w:type="paragraph" w:styleId="Emph"><w:name w:val="Emphasis Para"/><w:rPr><w:i/></w:rPr></w:style>`
	d.rels = []rel{{id: "rIdLink", typ: "hyperlink", target: "https://example.com/", external: true}}

	m := decode(t, d, Options{})
	para := m.Chapters[0].Content.Children[0]
	if got := para.PlainText(); got != "plain bold upright under nounder struck link inserted" {
		t.Fatalf("text = %q", got)
	}
	want := map[string]string{
		"plain":    "italic",
		"bold":     "bold,italic",
		"upright":  "",
		"under":    "italic,underline",
		"nounder":  "italic",
		"struck":   "italic,strike",
		"link":     "italic,link",
		"inserted": "italic",
	}
	for _, n := range para.Children {
		word := strings.TrimSpace(n.Text)
		if marks, ok := want[word]; ok && n.Marks.String() != marks {
			t.Errorf("%q marks = %q, want %q", word, n.Marks.String(), marks)
		}
		if word == "link" && n.Marks.Href != "https://example.com/" {
			t.Errorf("link href = %q", n.Marks.Href)
		}
	}
}

func TestLists(t *testing.T) {
	numPr := func(id, lvl int) string {
		return fmt.Sprintf(`<w:pPr><w:numPr><w:ilvl w:val="%d"/><w:numId w:val="%d"/></w:numPr></w:pPr>`, lvl, id)
	}
	d := newDocument(
		p("Heading1", r("Lists")),
		"<w:p>"+numPr(1, 0)+r("one")+"</w:p>",
		"<w:p>"+numPr(1, 1)+r("one.a")+"</w:p>",
		"<w:p>"+numPr(1, 0)+r("two")+"</w:p>",
		text("between"),
		"<w:p>"+numPr(2, 0)+r("dot")+"</w:p>",
		p("ListBullet", r("styled")),
	)
	d.numbering = `<w:abstractNum w:abstractNumId="10"><w:lvl w:ilvl="0"><w:numFmt w:val="decimal"/></w:lvl><w:lvl w:ilvl="1"><w:numFmt w:val="bullet"/></w:lvl></w:abstractNum>` +
		`<w:abstractNum w:abstractNumId="20"><w:lvl w:ilvl="0"><w:numFmt w:val="bullet"/></w:lvl></w:abstractNum>` +
		`<w:num w:numId="1"><w:abstractNumId w:val="10"/></w:num>` +
		`<w:num w:numId="2"><w:abstractNumId w:val="20"/></w:num>`
	d.styles = `<w:style w:type="paragraph" w:styleId="ListBullet"><w:name w:val="List Bullet"/><w:pPr><w:numPr><w:numId w:val="2"/></w:numPr></w:pPr></w:style>`

	body := decode(t, d, Options{}).Chapters[0].Content
	kinds := make([]doctree.Kind, 0, len(body.Children))
	for _, n := range body.Children {
		kinds = append(kinds, n.Kind)
	}
	want := []doctree.Kind{doctree.KindOrderedList, doctree.KindParagraph, doctree.KindBulletList}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v\n%s", kinds, want, doctree.Dump(body))
	}
	ordered := body.Children[0]
	if len(ordered.Children) != 2 {
		t.Fatalf("ordered list:\n%s", doctree.Dump(ordered))
	}
	first := ordered.Children[0]
	if len(first.Children) != 2 || first.Children[1].Kind != doctree.KindBulletList || first.Children[1].PlainText() != "one.a" {
		t.Errorf("nested list:\n%s", doctree.Dump(first))
	}
	if bullets := body.Children[2]; len(bullets.Children) != 2 {
		t.Errorf("style numbering must continue list:\n%s", doctree.Dump(bullets))
	}
}

func TestQuotes(t *testing.T) {
	d := newDocument(p("Heading1", r("Q")), p("Quote", r("a")), p("Quote", r("b")), text("c"))
	body := decode(t, d, Options{}).Chapters[0].Content
	if len(body.Children) != 2 || body.Children[0].Kind != doctree.KindBlockquote || len(body.Children[0].Children) != 2 {
		t.Errorf("quotes:\n%s", doctree.Dump(body))
	}
}

func TestTables(t *testing.T) {
	tbl := `<w:tbl><w:tblPr/>` +
		`<w:tr><w:trPr><w:tblHeader/></w:trPr><w:tc><w:tcPr><w:gridSpan w:val="2"/></w:tcPr>` + text("Head") + `</w:tc></w:tr>` +
		`<w:tr><w:tc>` + text("a") + `</w:tc><w:tc><w:p/></w:tc></w:tr>` +
		`</w:tbl>`
	d := newDocument(p("Heading1", r("T")), tbl)
	body := decode(t, d, Options{}).Chapters[0].Content
	if len(body.Children) != 1 || body.Children[0].Kind != doctree.KindTable {
		t.Fatalf("body:\n%s", doctree.Dump(body))
	}
	rows := body.Children[0].Children
	if len(rows) != 2 || len(rows[0].Children) != 2 || len(rows[1].Children) != 2 {
		t.Fatalf("table:\n%s", doctree.Dump(body))
	}
	if !rows[0].Children[0].Header || rows[1].Children[0].Header {
		t.Errorf("header flags:\n%s", doctree.Dump(body))
	}
	if got := body.PlainText(); !strings.Contains(got, "Head") || !strings.Contains(got, "a") {
		t.Errorf("table text = %q", got)
	}
}

func TestImagesAndUnsupported(t *testing.T) {
	drawing := `<w:r><w:drawing><wp:inline><wp:docPr id="1" name="Picture 1" descr="A cat"/>` +
		`<a:graphic><a:graphicData><pic:pic><pic:blipFill><a:blip r:embed="rIdImg"/></pic:blipFill></pic:pic></a:graphicData></a:graphic>` +
		`</wp:inline></w:drawing></w:r>`
	textBox := `<w:r><mc:AlternateContent><mc:Choice Requires="wps"><w:drawing><wp:anchor><a:graphic><a:graphicData>` +
		`<w:txbxContent>` + text("boxed") + `</w:txbxContent></a:graphicData></a:graphic></wp:anchor></w:drawing></mc:Choice>` +
		`<mc:Fallback><w:pict><v:shape/></w:pict></mc:Fallback></mc:AlternateContent></w:r>`
	vml := `<w:r><w:pict><v:shape><v:imagedata r:id="rIdOld" o:title="Old" xmlns:o="urn:schemas-microsoft-com:office:office"/></v:shape></w:pict></w:r>`

	d := newDocument(
		p("Heading1", r("Pictures")),
		p("", drawing),
		p("", r("see "), vml),
		p("", textBox, r("after box")),
		p("", `<w:r><w:drawing><wp:inline><a:graphic><a:graphicData><pic:pic><pic:blipFill><a:blip r:embed="rIdMissing"/></pic:blipFill></pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`),
	)
	d.rels = []rel{
		{id: "rIdImg", typ: "image", target: "media/image1.png"},
		{id: "rIdOld", typ: "image", target: "media/image2.wmf"},
		{id: "rIdMissing", typ: "image", target: "media/none.png"},
	}
	d.extra["word/media/image1.png"] = []byte("\x89PNG")
	d.extra["word/media/image2.wmf"] = []byte("wmf")

	ch := decode(t, d, Options{}).Chapters[0]
	var images []*doctree.Node
	ch.Content.Walk(func(n *doctree.Node) bool {
		if n.Kind == doctree.KindImage {
			images = append(images, n)
		}
		return true
	})
	if len(images) != 2 {
		t.Fatalf("images:\n%s", doctree.Dump(ch.Content))
	}
	if images[0].Src != "word/media/image1.png" || images[0].Alt != "A cat" {
		t.Errorf("image = %+v", *images[0])
	}
	if ch.Content.Children[0].Kind != doctree.KindImage {
		t.Errorf("image only paragraph must become block image:\n%s", doctree.Dump(ch.Content))
	}
	if images[1].Src != "word/media/image2.wmf" || images[1].Alt != "Old" {
		t.Errorf("vml image = %+v", *images[1])
	}
	if strings.Contains(ch.Content.PlainText(), "boxed") {
		t.Errorf("text box content must be skipped")
	}
	if len(ch.Warnings) != 2 {
		t.Errorf("warnings = %v, want text box and missing image", ch.Warnings)
	}
	for _, w := range ch.Warnings {
		if w.Kind != content.WarningKindUnsupportedPart {
			t.Errorf("warning kind = %v", w.Kind)
		}
	}
}

func TestMetadata(t *testing.T) {
	d := newDocument(text("x"))
	d.core = "My Novel"
	d.styles = `<w:docDefaults><w:rPrDefault><w:rPr><w:lang w:val="de-DE"/></w:rPr></w:rPrDefault></w:docDefaults>`
	m := decode(t, d, Options{})
	if m.Title != "My Novel" {
		t.Errorf("title = %q", m.Title)
	}
	if m.Language.String() != "de-DE" {
		t.Errorf("language = %v", m.Language)
	}
}

func TestMainPartLookup(t *testing.T) {
	t.Run("content types", func(t *testing.T) {
		d := newDocument(p("Heading1", r("Moved")))
		d.mainPart = "word/document2.xml"
		checkTitles(t, decode(t, d, Options{}), "Moved")
	})
	t.Run("package relationships", func(t *testing.T) {
		d := newDocument(p("Heading1", r("Related")))
		d.mainPart = "content/main.xml"
		d.override = false
		checkTitles(t, decode(t, d, Options{}), "Related")
	})
}

func TestDecodeErrors(t *testing.T) {
	dec := New(Options{}, zaptest.NewLogger(t))

	_, err := dec.Decode(context.Background(), "bad.docx", []byte("not a zip at all"))
	if !errors.Is(err, content.ErrCorruptArchive) {
		t.Errorf("garbage: error = %v, want corrupt archive", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	writeData(t, zw, "word/styles.xml", []byte(wordPart("styles", "")))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	_, err = dec.Decode(context.Background(), "empty.docx", buf.Bytes())
	if !errors.Is(err, content.ErrMissingManifest) {
		t.Errorf("no document: error = %v, want missing manifest", err)
	}

	buf.Reset()
	zw = zip.NewWriter(&buf)
	writeData(t, zw, "word/document.xml", []byte("<w:document"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	_, err = dec.Decode(context.Background(), "broken.docx", buf.Bytes())
	if !errors.Is(err, content.ErrCorruptArchive) {
		t.Errorf("broken xml: error = %v, want corrupt archive", err)
	}
}

func TestDecodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}, zaptest.NewLogger(t)).Decode(ctx, "test.docx", newDocument(text("x")).bytes(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
