// Package store is SQLite backed persistence of stories and chapters. It
// implements collaborators required by commit.Committer.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"msimport/commit"
	"msimport/content"
	"msimport/doctree"
)

// ErrNotFound is returned when requested story or chapter does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS stories (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	slug             TEXT NOT NULL,
	chapter_count    INTEGER NOT NULL DEFAULT 0,
	total_word_count INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chapters (
	id           TEXT PRIMARY KEY,
	story_id     TEXT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
	number       INTEGER NOT NULL CHECK (number > 0),
	title        TEXT NOT NULL,
	slug         TEXT NOT NULL,
	content      TEXT NOT NULL,
	word_count   INTEGER NOT NULL,
	is_published INTEGER NOT NULL DEFAULT 0,
	published_at TEXT,
	created_at   TEXT NOT NULL,
	UNIQUE (story_id, number)
);
`

// Story is stored story record. Aggregates reflect published chapters only.
type Story struct {
	ID             string
	Title          string
	Slug           string
	ChapterCount   int
	TotalWordCount uint64
	CreatedAt      time.Time
}

// Chapter is stored chapter record.
type Chapter struct {
	ID          uuid.UUID
	StoryID     string
	Number      uint32
	Title       string
	Slug        string
	Content     *doctree.Node
	WordCount   uint32
	Published   bool
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// Store wraps single SQLite connection, calls are serialized.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	now  func() time.Time
	log  *zap.Logger
}

var _ commit.Store = (*Store)(nil)

// Open opens (creating when necessary) database at path and makes sure
// schema is present. Use ":memory:" for transient database.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := sqlite.OpenConn(path)
	if err != nil {
		return nil, content.WrapError(content.ErrorKindPersistUnavailable, path, err)
	}
	// foreign keys pragma has no effect inside of transaction
	if err := sqlitex.ExecuteTransient(conn, `PRAGMA foreign_keys = ON;`, nil); err != nil {
		return nil, multierr.Append(content.WrapError(content.ErrorKindPersistUnavailable, path, err), conn.Close())
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, multierr.Append(content.WrapError(content.ErrorKindPersistUnavailable, path, err), conn.Close())
	}
	s := &Store{conn: conn, now: time.Now, log: log.Named("store")}
	s.log.Debug("Database opened", zap.String("path", path))
	return s, nil
}

// Close releases database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// lock serializes access and makes pending statements interruptible by ctx.
func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return nil, content.NewError(content.ErrorKindPersistUnavailable, "", "database is closed")
	}
	s.conn.SetInterrupt(ctx.Done())
	return func() {
		s.conn.SetInterrupt(nil)
		s.mu.Unlock()
	}, nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseStamp(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

// CreateStory adds new story with zero aggregates.
func (s *Store) CreateStory(ctx context.Context, id, title string) (err error) {
	if strings.TrimSpace(id) == "" {
		return errors.New("story id must not be empty")
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	err = sqlitex.Execute(s.conn, `INSERT INTO stories (id, title, slug, created_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{id, title, slug.Make(title), s.stamp()}})
	if err != nil {
		return classify(id, fmt.Errorf("create story: %w", err))
	}
	s.log.Debug("Story created", zap.String("story", id))
	return nil
}

// Story returns story record or ErrNotFound.
func (s *Store) Story(ctx context.Context, id string) (Story, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return Story{}, err
	}
	defer unlock()

	var (
		st    Story
		found bool
	)
	err = sqlitex.Execute(s.conn, `SELECT id, title, slug, chapter_count, total_word_count, created_at FROM stories WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				st = Story{
					ID:             stmt.ColumnText(0),
					Title:          stmt.ColumnText(1),
					Slug:           stmt.ColumnText(2),
					ChapterCount:   stmt.ColumnInt(3),
					TotalWordCount: uint64(stmt.ColumnInt64(4)),
					CreatedAt:      parseStamp(stmt.ColumnText(5)),
				}
				return nil
			},
		})
	if err != nil {
		return Story{}, classify(id, fmt.Errorf("read story: %w", err))
	}
	if !found {
		return Story{}, fmt.Errorf("story %q: %w", id, ErrNotFound)
	}
	return st, nil
}

// MaxChapterNumber returns highest chapter number of the story regardless of
// publication state, 0 when story has no chapters.
func (s *Store) MaxChapterNumber(ctx context.Context, storyID string) (uint32, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var current int64
	err = sqlitex.Execute(s.conn, `SELECT COALESCE(MAX(number), 0) FROM chapters WHERE story_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{storyID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				current = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, classify(storyID, fmt.Errorf("read max chapter number: %w", err))
	}
	return uint32(current), nil
}

// InsertChapters stores drafts in a single transaction. Number already taken
// by another chapter of the story rolls back everything and is reported as
// content.ErrorKindPersistConflict.
func (s *Store) InsertChapters(ctx context.Context, storyID string, drafts []commit.Draft) (err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	defer sqlitex.Save(s.conn)(&err)

	created := s.stamp()
	for _, d := range drafts {
		body := d.Content
		if body == nil {
			body = doctree.Document()
		}
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chapter %d: %w", d.Number, err)
		}
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("chapter %d: %w", d.Number, err)
		}
		var publishedAt any
		if d.PublishedAt != nil {
			publishedAt = d.PublishedAt.UTC().Format(time.RFC3339Nano)
		}
		err = sqlitex.Execute(s.conn,
			`INSERT INTO chapters (id, story_id, number, title, slug, content, word_count, is_published, published_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				id.String(), storyID, int64(d.Number), d.Title, slug.Make(d.Title), string(data),
				int64(d.WordCount), flag(d.Published), publishedAt, created,
			}})
		if err != nil {
			return classify(storyID, fmt.Errorf("insert chapter %d: %w", d.Number, err))
		}
	}
	s.log.Debug("Chapters inserted", zap.String("story", storyID), zap.Int("count", len(drafts)))
	return nil
}

// RecomputeStoryAggregates sets story chapter count and total word count
// from published chapters.
func (s *Store) RecomputeStoryAggregates(ctx context.Context, storyID string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return s.recompute(storyID)
}

func (s *Store) recompute(storyID string) error {
	err := sqlitex.Execute(s.conn, `
		UPDATE stories SET
			chapter_count    = (SELECT COUNT(*) FROM chapters WHERE story_id = stories.id AND is_published),
			total_word_count = (SELECT COALESCE(SUM(word_count), 0) FROM chapters WHERE story_id = stories.id AND is_published)
		WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{storyID}})
	if err != nil {
		return classify(storyID, fmt.Errorf("recompute aggregates: %w", err))
	}
	if s.conn.Changes() == 0 {
		return fmt.Errorf("story %q: %w", storyID, ErrNotFound)
	}
	return nil
}

// Chapters lists story chapters ordered by number.
func (s *Store) Chapters(ctx context.Context, storyID string) ([]Chapter, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []Chapter
	err = sqlitex.Execute(s.conn,
		`SELECT id, number, title, slug, content, word_count, is_published, published_at, created_at
		 FROM chapters WHERE story_id = ? ORDER BY number`,
		&sqlitex.ExecOptions{
			Args: []any{storyID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ch := Chapter{
					StoryID:   storyID,
					Number:    uint32(stmt.ColumnInt64(1)),
					Title:     stmt.ColumnText(2),
					Slug:      stmt.ColumnText(3),
					WordCount: uint32(stmt.ColumnInt64(5)),
					Published: stmt.ColumnInt64(6) != 0,
					CreatedAt: parseStamp(stmt.ColumnText(8)),
				}
				id, err := uuid.Parse(stmt.ColumnText(0))
				if err != nil {
					return fmt.Errorf("chapter %d id: %w", ch.Number, err)
				}
				ch.ID = id
				ch.Content = &doctree.Node{}
				if err := json.Unmarshal([]byte(stmt.ColumnText(4)), ch.Content); err != nil {
					return fmt.Errorf("chapter %d content: %w", ch.Number, err)
				}
				if stmt.ColumnType(7) != sqlite.TypeNull {
					at := parseStamp(stmt.ColumnText(7))
					ch.PublishedAt = &at
				}
				out = append(out, ch)
				return nil
			},
		})
	if err != nil {
		return nil, classify(storyID, fmt.Errorf("read chapters: %w", err))
	}
	return out, nil
}

// PublishChapter marks chapter as published and refreshes story aggregates.
func (s *Store) PublishChapter(ctx context.Context, storyID string, number uint32) (err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	defer sqlitex.Save(s.conn)(&err)

	err = sqlitex.Execute(s.conn,
		`UPDATE chapters SET is_published = 1, published_at = ? WHERE story_id = ? AND number = ? AND NOT is_published`,
		&sqlitex.ExecOptions{Args: []any{s.stamp(), storyID, int64(number)}})
	if err != nil {
		return classify(storyID, fmt.Errorf("publish chapter %d: %w", number, err))
	}
	if s.conn.Changes() == 0 {
		return fmt.Errorf("unpublished chapter %d of story %q: %w", number, storyID, ErrNotFound)
	}
	return s.recompute(storyID)
}

func flag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// classify maps SQLite failures to import error kinds: uniqueness violation
// is a conflict, anything else means storage is unavailable.
func classify(part string, err error) error {
	switch code := sqlite.ErrCode(err); {
	case code == sqlite.ResultConstraintUnique || code == sqlite.ResultConstraintPrimaryKey:
		return content.WrapError(content.ErrorKindPersistConflict, part, err)
	case code.ToPrimary() == sqlite.ResultInterrupt:
		return fmt.Errorf("%w: %w", context.Canceled, err)
	default:
		return content.WrapError(content.ErrorKindPersistUnavailable, part, err)
	}
}
