// Package session keeps user editable state of a single import: ordered list
// of decoded chapters targeting a story. Position in the list is the only
// ordering signal until the session is committed.
package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"msimport/common"
	"msimport/content"
	"msimport/content/text"
	"msimport/doctree"
)

var (
	// ErrState is returned when operation is not allowed in the current
	// session state.
	ErrState = errors.New("operation is not allowed in this session state")
	// ErrIndex is returned for chapter index out of range.
	ErrIndex = errors.New("chapter index out of range")
)

// Options controls session behavior.
type Options struct {
	// LowContentWords is the threshold below which chapter is flagged as
	// likely not real content, 0 means content.LowContentWords.
	LowContentWords int
	// ExcerptRunes limits preview excerpt, 0 means text.DefaultExcerptRunes.
	ExcerptRunes int
}

type entry struct {
	chapter content.Chapter
	// memoized word count, valid when counted is set
	words   uint32
	counted bool
	excerpt *string
}

// Session is owned by a single interactive flow and is not safe for
// concurrent use.
type Session struct {
	id         uuid.UUID
	storyID    string
	storyTitle string
	state      common.SessionState
	// state to return to when commit fails
	prev     common.SessionState
	entries  []*entry
	source   string
	format   common.InputFmt
	lang     language.Tag
	warnings []content.Warning

	opts     Options
	splitter *text.Splitter
	// number of word count computations, for statistics
	counts int
	log    *zap.Logger
}

// New creates empty session targeting story.
func New(storyID, storyTitle string, opts Options, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.LowContentWords <= 0 {
		opts.LowContentWords = content.LowContentWords
	}
	if opts.ExcerptRunes <= 0 {
		opts.ExcerptRunes = text.DefaultExcerptRunes
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Session{
		id:         id,
		storyID:    storyID,
		storyTitle: storyTitle,
		state:      common.SessionStateEmpty,
		opts:       opts,
		log:        log.Named("session").With(zap.Stringer("session", id)),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }
func (s *Session) StoryID() string { return s.storyID }
func (s *Session) StoryTitle() string { return s.storyTitle }
func (s *Session) State() common.SessionState { return s.state }
func (s *Session) Len() int { return len(s.entries) }
func (s *Session) Source() string { return s.source }
func (s *Session) Format() common.InputFmt { return s.format }
func (s *Session) Language() language.Tag { return s.lang }
func (s *Session) ManuscriptWarnings() []content.Warning { return s.warnings }

// Load replaces session content with freshly decoded manuscript. It is
// allowed before any edits and while editing (new source replaces old one).
// Failed decode never reaches Load, so previous state stays intact.
func (s *Session) Load(m *content.Manuscript) error {
	switch s.state {
	case common.SessionStateEmpty, common.SessionStateParsed, common.SessionStateEdited:
	default:
		return fmt.Errorf("load into %s session: %w", s.state, ErrState)
	}
	if m == nil || len(m.Chapters) == 0 {
		return content.NewError(content.ErrorKindEmptyInput, "", "manuscript has no chapters")
	}

	entries := make([]*entry, 0, len(m.Chapters))
	for _, ch := range m.Chapters {
		entries = append(entries, &entry{chapter: ch})
	}
	s.entries = entries
	s.source, s.format, s.lang, s.warnings = m.Source, m.Format, m.Language, m.Warnings
	s.splitter = text.NewSplitter(m.Language, s.log)
	if s.storyTitle == "" {
		s.storyTitle = m.Title
	}
	s.state = common.SessionStateParsed

	s.log.Debug("Session loaded", zap.String("source", m.Source), zap.Int("chapters", len(entries)))
	return nil
}

func (s *Session) editable() error {
	if !s.state.Editable() {
		return fmt.Errorf("edit %s session: %w", s.state, ErrState)
	}
	return nil
}

func (s *Session) check(index int) error {
	if index < 0 || index >= len(s.entries) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndex, index, len(s.entries))
	}
	return nil
}

// Chapter returns chapter at index. Content is shared with the session and
// must not be modified.
func (s *Session) Chapter(index int) (content.Chapter, error) {
	if err := s.check(index); err != nil {
		return content.Chapter{}, err
	}
	return s.entries[index].chapter, nil
}

// Chapters returns chapters in current order.
func (s *Session) Chapters() []content.Chapter {
	out := make([]content.Chapter, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.chapter)
	}
	return out
}

// RenameAt changes chapter title. Empty title is allowed while editing, it
// is replaced by placeholder at commit time.
func (s *Session) RenameAt(index int, title string) error {
	if err := s.editable(); err != nil {
		return err
	}
	if err := s.check(index); err != nil {
		return err
	}
	s.entries[index].chapter.Title = title
	s.state = common.SessionStateEdited
	return nil
}

// RemoveAt drops chapter. Removing the last chapter leaves editable
// session with nothing to commit.
func (s *Session) RemoveAt(index int) error {
	if err := s.editable(); err != nil {
		return err
	}
	if err := s.check(index); err != nil {
		return err
	}
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
	s.state = common.SessionStateEdited
	return nil
}

// MoveBy swaps chapter with adjacent one, delta is -1 (up) or +1 (down).
// Moving past either end is a no-op.
func (s *Session) MoveBy(index, delta int) error {
	if err := s.editable(); err != nil {
		return err
	}
	if err := s.check(index); err != nil {
		return err
	}
	if delta != -1 && delta != 1 {
		return fmt.Errorf("move by %d: only adjacent moves are supported", delta)
	}
	other := index + delta
	if other < 0 || other >= len(s.entries) {
		return nil
	}
	s.entries[index], s.entries[other] = s.entries[other], s.entries[index]
	s.state = common.SessionStateEdited
	return nil
}

// wordCount is memoized per chapter, reordering and renaming never cause
// recount.
func (s *Session) wordCount(e *entry) uint32 {
	if !e.counted {
		e.words, e.counted = doctree.WordCount(e.chapter.Content), true
		s.counts++
	}
	return e.words
}

// WordCount of chapter at index.
func (s *Session) WordCount(index int) (uint32, error) {
	if err := s.check(index); err != nil {
		return 0, err
	}
	return s.wordCount(s.entries[index]), nil
}

// LowContent reports whether chapter is below low content threshold. Such
// chapters are flagged for display only, they are never removed
// automatically.
func (s *Session) LowContent(index int) (bool, error) {
	words, err := s.WordCount(index)
	if err != nil {
		return false, err
	}
	return words < uint32(s.opts.LowContentWords), nil
}

// Excerpt is the first sentence of the chapter text, shortened for preview.
func (s *Session) Excerpt(index int) (string, error) {
	if err := s.check(index); err != nil {
		return "", err
	}
	e := s.entries[index]
	if e.excerpt == nil {
		ex := s.splitter.Excerpt(e.chapter.Content.PlainText(), s.opts.ExcerptRunes)
		e.excerpt = &ex
	}
	return *e.excerpt, nil
}

// Stats are derived session statistics.
type Stats struct {
	Chapters   int
	Words      uint64
	LowContent int
}

// Stats computes totals from memoized per chapter counts.
func (s *Session) Stats() Stats {
	st := Stats{Chapters: len(s.entries)}
	for _, e := range s.entries {
		words := s.wordCount(e)
		st.Words += uint64(words)
		if words < uint32(s.opts.LowContentWords) {
			st.LowContent++
		}
	}
	return st
}

// Abandon discards session, it cannot be used afterwards.
func (s *Session) Abandon() error {
	switch s.state {
	case common.SessionStateCommitting, common.SessionStateCommitted:
		return fmt.Errorf("abandon %s session: %w", s.state, ErrState)
	}
	s.state = common.SessionStateAbandoned
	s.entries = nil
	s.log.Debug("Session abandoned")
	return nil
}

// Snapshot is frozen session content handed over to committer.
type Snapshot struct {
	StoryID  string
	Chapters []content.Chapter
	Words    []uint32
}

// BeginCommit freezes session. Until EndCommit is called no edits are
// accepted.
func (s *Session) BeginCommit() (Snapshot, error) {
	if err := s.editable(); err != nil {
		return Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	if len(s.entries) == 0 {
		return Snapshot{}, content.NewError(content.ErrorKindEmptyInput, "", "all chapters were removed, nothing to commit")
	}
	snap := Snapshot{
		StoryID:  s.storyID,
		Chapters: s.Chapters(),
		Words:    make([]uint32, 0, len(s.entries)),
	}
	for _, e := range s.entries {
		snap.Words = append(snap.Words, s.wordCount(e))
	}
	s.prev, s.state = s.state, common.SessionStateCommitting
	return snap, nil
}

// EndCommit completes commit. On failure session returns to the state it
// had before BeginCommit with content untouched, so commit may be retried.
func (s *Session) EndCommit(err error) {
	if s.state != common.SessionStateCommitting {
		return
	}
	if err != nil {
		s.state = s.prev
		s.log.Debug("Commit failed, session restored", zap.Stringer("state", s.state), zap.Error(err))
		return
	}
	s.state = common.SessionStateCommitted
	s.log.Debug("Session committed", zap.Int("chapters", len(s.entries)))
}
