package content

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"msimport/common"
	"msimport/doctree"
)

func TestImportErrorIs(t *testing.T) {
	err := fmt.Errorf("decode: %w", NewError(ErrorKindMissingManifest, "META-INF/container.xml", "no rootfile"))

	if !errors.Is(err, ErrMissingManifest) {
		t.Error("errors.Is(err, ErrMissingManifest) = false")
	}
	if errors.Is(err, ErrCorruptArchive) {
		t.Error("errors.Is(err, ErrCorruptArchive) = true")
	}
	if KindOf(err) != ErrorKindMissingManifest {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf(plain) must be 0")
	}
	want := "missing manifest (META-INF/container.xml): no rootfile"
	if !strings.HasSuffix(err.Error(), want) {
		t.Errorf("Error() = %q, want suffix %q", err.Error(), want)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(ErrorKindCorruptArchive, "", nil) != nil {
		t.Error("WrapError(nil) must be nil")
	}
	inner := errors.New("zip: not a valid zip file")
	err := WrapError(ErrorKindCorruptArchive, "book.epub", inner)
	if !errors.Is(err, inner) || !errors.Is(err, ErrCorruptArchive) {
		t.Error("wrapped error must match both inner error and kind")
	}
}

func TestUserMessages(t *testing.T) {
	for k := ErrorKindCorruptArchive; k <= ErrorKindPersistUnavailable; k++ {
		if k.UserMessage() == "" || k.UserMessage() == "Import failed." {
			t.Errorf("kind %v has no specific user message", k)
		}
	}
}

func TestKindNames(t *testing.T) {
	for _, name := range ErrorKindNames() {
		k, err := ParseErrorKind(name)
		if err != nil || k.String() != name || !k.IsValid() {
			t.Errorf("ParseErrorKind(%q) = %v, %v", name, k, err)
		}
	}
	if len(ErrorKindNames()) != int(ErrorKindPersistUnavailable) {
		t.Errorf("ErrorKindNames() = %v", ErrorKindNames())
	}
	if ErrorKind(0).IsValid() || ErrorKind(0).String() != "ErrorKind(0)" {
		t.Error("zero kind must not be valid")
	}
	if _, err := ParseErrorKind("corrupt archive"); !errors.Is(err, ErrInvalidErrorKind) {
		t.Errorf("ParseErrorKind() error = %v", err)
	}

	if k, err := ParseWarningKind("low-content"); err != nil || k != WarningKindLowContent {
		t.Errorf("ParseWarningKind() = %v, %v", k, err)
	}
	w := Warning{Kind: WarningKindUnsupportedPart, Part: "a.svg", Message: "skipped"}
	if w.String() != "unsupported-part: a.svg: skipped" {
		t.Errorf("Warning.String() = %q", w.String())
	}
}

func TestChapterClone(t *testing.T) {
	c := NewChapter("One", doctree.Document(doctree.Paragraph(doctree.Text("a b", doctree.Marks{}))))
	c.Warn(WarningKindUnsupportedPart, "img.svg", "skipped")

	cl := c.Clone()
	cl.Content.Children[0].Children[0].Text = "x"
	cl.Warnings[0].Message = "changed"

	if c.Content.Children[0].Children[0].Text != "a b" || c.Warnings[0].Message != "skipped" {
		t.Error("Clone() must not share content or warnings")
	}
	if c.WordCount() != 2 || cl.WordCount() != 1 {
		t.Errorf("unexpected word counts %d %d", c.WordCount(), cl.WordCount())
	}
}

func TestNewChapterNilContent(t *testing.T) {
	c := NewChapter("", nil)
	if c.Content == nil || c.Content.Kind != doctree.KindDocument {
		t.Fatal("NewChapter must create empty document")
	}
	if c.WordCount() != 0 {
		t.Error("empty chapter must have no words")
	}
}

func TestManuscriptString(t *testing.T) {
	m := &Manuscript{
		Source: "book.epub",
		Format: common.InputFmtEpub,
		Chapters: []Chapter{
			NewChapter("First", doctree.Document(doctree.Paragraph(doctree.Text("one two", doctree.Marks{})))),
		},
	}
	m.Warn(WarningKindUnsupportedPart, "ch10.svg", "skipped")
	m.Warn(WarningKindUnsupportedPart, "ch2.svg", "skipped")

	out := m.String()
	if !strings.Contains(out, "Chapters: 1, words: 2") {
		t.Errorf("String() missing summary:\n%s", out)
	}
	if strings.Index(out, "ch2.svg") > strings.Index(out, "ch10.svg") {
		t.Errorf("warnings are not naturally ordered:\n%s", out)
	}
	if m.WordCount() != 2 {
		t.Errorf("WordCount() = %d", m.WordCount())
	}
}

func TestInputHelpers(t *testing.T) {
	if in := PasteInput("abc"); in.Format != common.InputFmtPaste || in.Size() != 3 {
		t.Errorf("PasteInput() = %+v", in)
	}
	if in := EpubInput("a.epub", []byte{1, 2}); in.Format != common.InputFmtEpub || in.Size() != 2 {
		t.Errorf("EpubInput() = %+v", in)
	}
	if in := DocxInput("a.docx", nil); in.Format != common.InputFmtDocx || in.Name != "a.docx" {
		t.Errorf("DocxInput() = %+v", in)
	}
}
