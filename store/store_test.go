package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"msimport/commit"
	"msimport/common"
	"msimport/content"
	"msimport/doctree"
	"msimport/session"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stories.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func draft(number uint32, title, text string) commit.Draft {
	body := doctree.Document(doctree.Paragraph(doctree.Text(text, doctree.Marks{})))
	return commit.Draft{Number: number, Title: title, Content: body, WordCount: doctree.WordCount(body)}
}

func TestStories(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	if err := s.CreateStory(ctx, "s1", "The Long Way Home"); err != nil {
		t.Fatal(err)
	}
	st, err := s.Story(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Title != "The Long Way Home" || st.Slug != "the-long-way-home" || st.ChapterCount != 0 || st.CreatedAt.IsZero() {
		t.Errorf("story = %+v", st)
	}
	if err := s.CreateStory(ctx, "s1", "again"); !errors.Is(err, content.ErrPersistConflict) {
		t.Errorf("duplicate story error = %v", err)
	}
	if _, err := s.Story(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing story error = %v", err)
	}
	if err := s.CreateStory(ctx, " ", "x"); err == nil {
		t.Error("empty id must be rejected")
	}
}

func TestInsertAndRead(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	if err := s.CreateStory(ctx, "s1", "Story"); err != nil {
		t.Fatal(err)
	}

	if n, err := s.MaxChapterNumber(ctx, "s1"); err != nil || n != 0 {
		t.Fatalf("MaxChapterNumber() = %d, %v", n, err)
	}
	drafts := []commit.Draft{draft(1, "Opening Scene", "one two three"), draft(2, "Rain", "four five")}
	if err := s.InsertChapters(ctx, "s1", drafts); err != nil {
		t.Fatal(err)
	}
	if n, err := s.MaxChapterNumber(ctx, "s1"); err != nil || n != 2 {
		t.Fatalf("MaxChapterNumber() = %d, %v", n, err)
	}

	chapters, err := s.Chapters(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 2 {
		t.Fatalf("chapters = %d", len(chapters))
	}
	first := chapters[0]
	if first.Number != 1 || first.Title != "Opening Scene" || first.Slug != "opening-scene" || first.WordCount != 3 {
		t.Errorf("chapter = %+v", first)
	}
	if first.Published || first.PublishedAt != nil {
		t.Error("inserted drafts must stay unpublished")
	}
	if first.ID.Version() != 7 {
		t.Errorf("id version = %d", first.ID.Version())
	}
	if got := first.Content.PlainText(); got != "one two three" {
		t.Errorf("content = %q", got)
	}
	if chapters[1].ID == first.ID {
		t.Error("chapter ids must differ")
	}
}

func TestInsertConflictIsAtomic(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	if err := s.CreateStory(ctx, "s1", "Story"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertChapters(ctx, "s1", []commit.Draft{draft(3, "Three", "x")}); err != nil {
		t.Fatal(err)
	}

	err := s.InsertChapters(ctx, "s1", []commit.Draft{draft(1, "One", "a"), draft(2, "Two", "b"), draft(3, "Clash", "c")})
	if !errors.Is(err, content.ErrPersistConflict) {
		t.Fatalf("InsertChapters() error = %v, want conflict", err)
	}
	chapters, err := s.Chapters(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 1 || chapters[0].Title != "Three" {
		t.Errorf("partial insert left %d chapters", len(chapters))
	}

	// same numbers in another story are fine
	if err := s.CreateStory(ctx, "s2", "Other"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertChapters(ctx, "s2", []commit.Draft{draft(3, "Three", "x")}); err != nil {
		t.Errorf("other story insert error = %v", err)
	}
}

func TestInsertUnknownStory(t *testing.T) {
	s := open(t)
	err := s.InsertChapters(context.Background(), "nope", []commit.Draft{draft(1, "One", "a")})
	if !errors.Is(err, content.ErrPersistUnavailable) {
		t.Errorf("InsertChapters() error = %v", err)
	}
}

func TestAggregatesCountPublishedOnly(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	if err := s.CreateStory(ctx, "s1", "Story"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertChapters(ctx, "s1", []commit.Draft{draft(1, "One", "a b c"), draft(2, "Two", "d e")}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecomputeStoryAggregates(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if st, _ := s.Story(ctx, "s1"); st.ChapterCount != 0 || st.TotalWordCount != 0 {
		t.Errorf("drafts changed aggregates: %+v", st)
	}

	if err := s.PublishChapter(ctx, "s1", 1); err != nil {
		t.Fatal(err)
	}
	if st, _ := s.Story(ctx, "s1"); st.ChapterCount != 1 || st.TotalWordCount != 3 {
		t.Errorf("aggregates = %+v", st)
	}
	if err := s.PublishChapter(ctx, "s1", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second publish error = %v", err)
	}
	chapters, err := s.Chapters(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !chapters[0].Published || chapters[0].PublishedAt == nil || !chapters[0].PublishedAt.Equal(s.now()) {
		t.Errorf("published chapter = %+v", chapters[0])
	}
	if err := s.RecomputeStoryAggregates(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("recompute of missing story error = %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	s := open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.MaxChapterNumber(ctx, "s1"); !errors.Is(err, context.Canceled) {
		t.Errorf("MaxChapterNumber() error = %v", err)
	}
}

func TestClosed(t *testing.T) {
	s, err := Open(":memory:", zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := s.MaxChapterNumber(context.Background(), "s1"); !errors.Is(err, content.ErrPersistUnavailable) {
		t.Errorf("MaxChapterNumber() error = %v", err)
	}
}

// TestCommitIntoStore runs committer against real database: numbering
// continues after existing chapters and drafts do not touch aggregates.
func TestCommitIntoStore(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	if err := s.CreateStory(ctx, "s1", "Story"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertChapters(ctx, "s1", []commit.Draft{draft(1, "Prologue", "a b"), draft(2, "One", "c")}); err != nil {
		t.Fatal(err)
	}
	if err := s.PublishChapter(ctx, "s1", 1); err != nil {
		t.Fatal(err)
	}

	m := &content.Manuscript{Format: common.InputFmtPaste, Chapters: []content.Chapter{
		content.NewChapter("Two", doctree.Document(doctree.Paragraph(doctree.Text("x y z", doctree.Marks{})))),
		content.NewChapter("", doctree.Document(doctree.Paragraph(doctree.Text("w", doctree.Marks{})))),
	}}
	sess := session.New("s1", "", session.Options{}, zaptest.NewLogger(t))
	if err := sess.Load(m); err != nil {
		t.Fatal(err)
	}
	plan, err := commit.New(s, commit.Options{}, zaptest.NewLogger(t)).Commit(ctx, sess)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if plan.StartingNumber != 3 {
		t.Errorf("starting number = %d", plan.StartingNumber)
	}

	chapters, err := s.Chapters(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 4 || chapters[3].Title != commit.DefaultPlaceholder || chapters[2].WordCount != 3 {
		t.Errorf("chapters = %+v", chapters)
	}
	if st, _ := s.Story(ctx, "s1"); st.ChapterCount != 1 || st.TotalWordCount != 2 {
		t.Errorf("aggregates = %+v", st)
	}
}
