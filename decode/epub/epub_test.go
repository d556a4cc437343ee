package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"testing"

	"github.com/beevik/etree"
	"go.uber.org/zap/zaptest"

	"msimport/content"
	"msimport/doctree"
)

type item struct {
	id, href, mediaType, body string
}

type book struct {
	opfDir    string
	title     string
	lang      string
	items     []item
	spine     []string
	extra     map[string]string
	noSpine   bool
	container bool // write container.xml, true unless test removes it
}

func newBook(items ...item) *book {
	b := &book{opfDir: "OEBPS", title: "Test Book", lang: "en", container: true, extra: map[string]string{}}
	for _, it := range items {
		b.items = append(b.items, it)
		b.spine = append(b.spine, it.id)
	}
	return b
}

func xhtml(title, body string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body>%s</body>
</html>`, title, body)
}

func writeXML(t *testing.T, zw *zip.Writer, name string, doc *etree.Document) {
	t.Helper()
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	writeData(t, zw, name, buf.Bytes())
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

func (b *book) bytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	writeData(t, zw, "mimetype", []byte("application/epub+zip"))

	opfPath := path.Join(b.opfDir, "content.opf")
	if b.container {
		doc := etree.NewDocument()
		doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
		container := doc.CreateElement("container")
		container.CreateAttr("version", "1.0")
		container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")
		rootfile := container.CreateElement("rootfiles").CreateElement("rootfile")
		rootfile.CreateAttr("full-path", opfPath)
		rootfile.CreateAttr("media-type", "application/oebps-package+xml")
		writeXML(t, zw, "META-INF/container.xml", doc)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("version", "3.0")
	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	metadata.CreateElement("dc:title").SetText(b.title)
	metadata.CreateElement("dc:language").SetText(b.lang)
	manifest := pkg.CreateElement("manifest")
	for _, it := range b.items {
		el := manifest.CreateElement("item")
		el.CreateAttr("id", it.id)
		el.CreateAttr("href", it.href)
		el.CreateAttr("media-type", it.mediaType)
		if it.body != "" {
			writeData(t, zw, path.Join(b.opfDir, it.href), []byte(it.body))
		}
	}
	if !b.noSpine {
		spine := pkg.CreateElement("spine")
		for _, id := range b.spine {
			spine.CreateElement("itemref").CreateAttr("idref", id)
		}
	}
	writeXML(t, zw, opfPath, doc)

	for name, data := range b.extra {
		writeData(t, zw, name, []byte(data))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, data []byte, opts Options) (*content.Manuscript, error) {
	t.Helper()
	return New(opts, zaptest.NewLogger(t)).Decode(context.Background(), "test.epub", data)
}

func titles(m *content.Manuscript) []string {
	var out []string
	for _, ch := range m.Chapters {
		out = append(out, ch.Title)
	}
	return out
}

func TestReadingOrder(t *testing.T) {
	b := newBook(
		item{"a", "a.xhtml", "application/xhtml+xml", xhtml("A", `<h1>First</h1><p>one</p><h1>Second</h1><p>two</p>`)},
		item{"b", "b.xhtml", "application/xhtml+xml", xhtml("Doc B", `<p>three</p>`)},
	)
	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := titles(m)
	want := []string{"First", "Second", "Doc B"}
	if len(got) != len(want) {
		t.Fatalf("titles = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("title %d = %q, want %q", i, got[i], want[i])
		}
	}
	bodies := []string{"one", "two", "three"}
	for i, ch := range m.Chapters {
		if text := ch.Content.PlainText(); text != bodies[i] {
			t.Errorf("chapter %d body = %q, want %q", i, text, bodies[i])
		}
	}
	if m.Title != "Test Book" || m.Language.String() != "en" {
		t.Errorf("metadata = %q %v", m.Title, m.Language)
	}
}

func TestHeadingSegmentation(t *testing.T) {
	b := newBook(item{"c", "Text/c.xhtml", "application/xhtml+xml", xhtml("C",
		`<p>Preface words</p><section><h2>Part</h2><h3>Scene</h3><p>body</p></section><h1>Next</h1>`)})
	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := titles(m)
	if len(got) != 3 || got[0] != "C" || got[1] != "Part" || got[2] != "Next" {
		t.Fatalf("titles = %q", got)
	}
	part := m.Chapters[1].Content
	if len(part.Children) != 2 || part.Children[0].Kind != doctree.KindHeading || part.Children[0].Level != 3 {
		t.Errorf("deeper heading must stay in body:\n%s", doctree.Dump(part))
	}
	if m.Chapters[2].WordCount() != 0 {
		t.Errorf("trailing heading chapter must be empty")
	}

	// split on level 1 only
	m, err = decode(t, b.bytes(t), Options{SplitLevel: 1})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := titles(m); len(got) != 2 || got[1] != "Next" {
		t.Errorf("titles = %q", got)
	}
}

func TestFallbackTitle(t *testing.T) {
	b := newBook(
		item{"a", "a.xhtml", "application/xhtml+xml", xhtml("", `<h1>One</h1>`)},
		item{"b", "b.xhtml", "application/xhtml+xml", xhtml("", `<p>untitled</p>`)},
	)
	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := titles(m); len(got) != 2 || got[1] != "Chapter 2" {
		t.Errorf("titles = %q", got)
	}

	m, err = decode(t, b.bytes(t), Options{FallbackTitle: func(index int, name, book string) string {
		return fmt.Sprintf("%d:%s:%s", index, name, book)
	}})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := titles(m); got[1] != "2:OEBPS/b.xhtml:Test Book" {
		t.Errorf("titles = %q", got)
	}
}

func TestSelfClosingHead(t *testing.T) {
	page := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title/><link rel="stylesheet" type="text/css" href="s.css"/></head>
<body><h1>One</h1><p>alpha beta</p><h1>Two</h1><p>gamma</p></body>
</html>`
	b := newBook(
		item{"css", "s.css", "text/css", "h1 { font-weight: bold }"},
		item{"a", "a.xhtml", "application/xhtml+xml", page},
	)
	b.spine = []string{"a"}
	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := titles(m); len(got) != 2 || got[0] != "One" || got[1] != "Two" {
		t.Fatalf("titles = %q", got)
	}
	if got := m.Chapters[0].Content.PlainText(); got != "alpha beta" {
		t.Errorf("first chapter body = %q", got)
	}
	if len(m.Warnings) != 0 {
		t.Errorf("warnings = %v", m.Warnings)
	}
}

func TestUnreadableContent(t *testing.T) {
	b := newBook(
		item{"art", "art.xhtml", "application/xhtml+xml", xhtml("Art", `<svg><text>Chapter art</text></svg>`)},
		item{"ok", "ok.xhtml", "application/xhtml+xml", xhtml("Ok", `<p>fine <iframe src="x.html"></iframe></p>`)},
	)
	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := titles(m); len(got) != 1 || got[0] != "Ok" {
		t.Errorf("titles = %q", got)
	}
	want := []string{
		"unsupported-part: OEBPS/art.xhtml: unsupported elements dropped: svg",
		"unsupported-part: OEBPS/art.xhtml: document text could not be converted",
		"unsupported-part: OEBPS/ok.xhtml: unsupported elements dropped: iframe",
	}
	if len(m.Warnings) != len(want) {
		t.Fatalf("warnings = %v", m.Warnings)
	}
	for i, w := range m.Warnings {
		if w.String() != want[i] {
			t.Errorf("warning %d = %q, want %q", i, w.String(), want[i])
		}
	}
}

func TestSkippedItems(t *testing.T) {
	b := newBook(
		item{"css", "style.css", "text/css", "p { color: red }"},
		item{"empty", "empty.xhtml", "application/xhtml+xml", xhtml("Empty", `  <div> </div> `)},
		item{"gone", "gone.xhtml", "application/xhtml+xml", ""},
		item{"ok", "ok.xhtml", "application/xhtml+xml", xhtml("Ok", `<p>fine</p>`)},
	)
	b.spine = append(b.spine, "unknown")
	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := titles(m); len(got) != 1 || got[0] != "Ok" {
		t.Errorf("titles = %q", got)
	}
	if len(m.Warnings) != 3 {
		t.Errorf("warnings = %v", m.Warnings)
	}
	for _, w := range m.Warnings {
		if w.Kind != content.WarningKindUnsupportedPart {
			t.Errorf("unexpected warning %v", w)
		}
	}
}

func TestHrefResolution(t *testing.T) {
	b := newBook(
		item{"rel", "Text/rel.xhtml", "application/xhtml+xml", xhtml("Rel",
			`<link rel="stylesheet" href="../Styles/s.css"/><p class="em">styled <img src="../Images/i.png"/></p>`)},
		item{"abs", "/OEBPS/Text/abs.xhtml", "application/xhtml+xml", xhtml("Abs", `<p>absolute</p>`)},
	)
	b.items[1].body = ""
	b.extra["OEBPS/Text/abs.xhtml"] = xhtml("Abs", `<p>absolute</p>`)
	b.extra["OEBPS/Styles/s.css"] = `.em { font-style: italic }`
	b.extra["OEBPS/Images/i.png"] = "png"

	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := titles(m); len(got) != 2 || got[0] != "Rel" || got[1] != "Abs" {
		t.Fatalf("titles = %q", got)
	}
	p := m.Chapters[0].Content.Children[0]
	if p.Children[0].Marks.String() != "italic" {
		t.Errorf("stylesheet not applied:\n%s", doctree.Dump(p))
	}
	if img := p.Children[1]; img.Kind != doctree.KindImage || img.Src != "OEBPS/Images/i.png" {
		t.Errorf("image not resolved:\n%s", doctree.Dump(p))
	}
}

func TestRootLevelPackage(t *testing.T) {
	b := newBook(item{"a", "a.xhtml", "application/xhtml+xml", xhtml("A", `<p>text</p>`)})
	b.opfDir = ""
	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.Chapters) != 1 {
		t.Errorf("titles = %q", titles(m))
	}
}

func TestEncryptedItems(t *testing.T) {
	b := newBook(
		item{"a", "a.xhtml", "application/xhtml+xml", "\x00\x01 encrypted bytes"},
		item{"b", "b.xhtml", "application/xhtml+xml", xhtml("B", `<p>plain</p>`)},
	)
	b.extra["META-INF/encryption.xml"] = `<?xml version="1.0"?>
<encryption xmlns="urn:oasis:names:tc:opendocument:xmlns:container" xmlns:enc="http://www.w3.org/2001/04/xmlenc#">
  <enc:EncryptedData>
    <enc:EncryptionMethod Algorithm="http://www.w3.org/2001/04/xmlenc#aes128-cbc"/>
    <enc:CipherData><enc:CipherReference URI="OEBPS/a.xhtml"/></enc:CipherData>
  </enc:EncryptedData>
  <enc:EncryptedData>
    <enc:EncryptionMethod Algorithm="http://www.idpf.org/2008/embedding"/>
    <enc:CipherData><enc:CipherReference URI="OEBPS/b.xhtml"/></enc:CipherData>
  </enc:EncryptedData>
</encryption>`
	m, err := decode(t, b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := titles(m); len(got) != 1 || got[0] != "B" {
		t.Errorf("titles = %q", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	noContainer := newBook(item{"a", "a.xhtml", "application/xhtml+xml", xhtml("A", "<p>x</p>")})
	noContainer.container = false

	noSpine := newBook(item{"a", "a.xhtml", "application/xhtml+xml", xhtml("A", "<p>x</p>")})
	noSpine.noSpine = true

	emptySpine := newBook()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not zip", []byte("definitely not a zip"), content.ErrCorruptArchive},
		{"no container", noContainer.bytes(t), content.ErrMissingManifest},
		{"no spine", noSpine.bytes(t), content.ErrMissingManifest},
		{"empty spine", emptySpine.bytes(t), content.ErrMissingManifest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := decode(t, tt.data, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
			if m != nil {
				t.Error("no manuscript expected on error")
			}
		})
	}
}

func TestDecodeCancelled(t *testing.T) {
	b := newBook(item{"a", "a.xhtml", "application/xhtml+xml", xhtml("A", "<p>x</p>")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}, zaptest.NewLogger(t)).Decode(ctx, "test.epub", b.bytes(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Decode() error = %v, want context.Canceled", err)
	}
}
