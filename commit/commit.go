// Package commit turns a finalized import session into numbered draft
// chapters of a story.
package commit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"msimport/content"
	"msimport/doctree"
	"msimport/session"
)

// DefaultPlaceholder replaces empty chapter titles at commit time.
const DefaultPlaceholder = "Untitled Chapter"

// ErrAggregates is returned together with successful plan when chapters
// were stored but story aggregates could not be recomputed.
var ErrAggregates = errors.New("story aggregates were not recomputed")

// NumberOracle reports the current maximum chapter number of a story, 0 when
// the story has no chapters.
type NumberOracle interface {
	MaxChapterNumber(ctx context.Context, storyID string) (uint32, error)
}

// ChapterInserter persists drafts atomically: either all of them are stored
// or none. Number collision must be reported as content.ErrorKindPersistConflict.
type ChapterInserter interface {
	InsertChapters(ctx context.Context, storyID string, drafts []Draft) error
}

// AggregateRecomputer recomputes story chapter count and total word count
// from published chapters only.
type AggregateRecomputer interface {
	RecomputeStoryAggregates(ctx context.Context, storyID string) error
}

// Store combines all persistence collaborators.
type Store interface {
	NumberOracle
	ChapterInserter
	AggregateRecomputer
}

// Draft is a chapter ready to be persisted.
type Draft struct {
	Number    uint32
	Title     string
	Content   *doctree.Node
	WordCount uint32
	// imported chapters are never published
	Published   bool
	PublishedAt *time.Time
}

// Plan is numbering of session chapters continuing from current maximum.
type Plan struct {
	StoryID        string
	StartingNumber uint32
	Drafts         []Draft
}

// NewPlan assigns numbers currentMax+1 .. currentMax+len(chapters) in
// session order. words holds memoized word counts, when it does not match
// chapters counts are computed.
func NewPlan(storyID string, chapters []content.Chapter, words []uint32, currentMax uint32, placeholder string) Plan {
	if placeholder = strings.TrimSpace(placeholder); placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	p := Plan{StoryID: storyID, StartingNumber: currentMax + 1, Drafts: make([]Draft, 0, len(chapters))}
	for i, ch := range chapters {
		title := strings.TrimSpace(ch.Title)
		if title == "" {
			title = placeholder
		}
		var count uint32
		if len(words) == len(chapters) {
			count = words[i]
		} else {
			count = doctree.WordCount(ch.Content)
		}
		p.Drafts = append(p.Drafts, Draft{
			Number:    p.StartingNumber + uint32(i),
			Title:     title,
			Content:   ch.Content,
			WordCount: count,
		})
	}
	return p
}

// Numbers lists assigned chapter numbers.
func (p Plan) Numbers() []uint32 {
	out := make([]uint32, 0, len(p.Drafts))
	for _, d := range p.Drafts {
		out = append(out, d.Number)
	}
	return out
}

// Words is the total word count of the plan.
func (p Plan) Words() uint64 {
	var total uint64
	for _, d := range p.Drafts {
		total += uint64(d.WordCount)
	}
	return total
}

// Options controls committer.
type Options struct {
	// Placeholder replaces empty titles, DefaultPlaceholder when empty.
	Placeholder string
	// Retries on number conflict, each retry re-reads the maximum.
	Retries int
}

// Committer consumes import sessions.
type Committer struct {
	store Store
	opts  Options
	log   *zap.Logger
}

// New creates committer. Retries below 1 mean single retry.
func New(store Store, opts Options, log *zap.Logger) *Committer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Committer{store: store, opts: opts, log: log.Named("commit")}
}

// Commit persists session chapters as unpublished drafts and recomputes
// story aggregates. Either all chapters are stored and session becomes
// committed, or nothing is stored and session is left as it was so the
// commit may be retried. Number conflict is retried with fresh maximum,
// repeated conflict is returned as content.ErrorKindPersistConflict.
func (c *Committer) Commit(ctx context.Context, s *session.Session) (plan Plan, err error) {
	snap, err := s.BeginCommit()
	if err != nil {
		return Plan{}, err
	}
	defer func() {
		// aggregates failure does not undo stored chapters
		if err != nil && !errors.Is(err, ErrAggregates) {
			s.EndCommit(err)
			return
		}
		s.EndCommit(nil)
	}()

	log := c.log.With(zap.String("story", snap.StoryID))
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Plan{}, err
		}
		current, err := c.store.MaxChapterNumber(ctx, snap.StoryID)
		if err != nil {
			return Plan{}, unavailable("read chapter numbers", err)
		}
		plan = NewPlan(snap.StoryID, snap.Chapters, snap.Words, current, c.opts.Placeholder)

		err = c.store.InsertChapters(ctx, snap.StoryID, plan.Drafts)
		if err == nil {
			break
		}
		if content.KindOf(err) == content.ErrorKindPersistConflict && attempt < c.opts.Retries {
			log.Warn("Chapter numbers collided, retrying with fresh maximum", zap.Uint32("max", current), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if content.KindOf(err) == content.ErrorKindPersistConflict {
			return Plan{}, err
		}
		return Plan{}, unavailable("insert chapters", err)
	}

	log.Info("Chapters stored as drafts",
		zap.Uint32("first", plan.StartingNumber), zap.Int("chapters", len(plan.Drafts)), zap.Uint64("words", plan.Words()))

	if err := c.store.RecomputeStoryAggregates(ctx, snap.StoryID); err != nil {
		log.Warn("Unable to recompute story aggregates", zap.Error(err))
		return plan, fmt.Errorf("%w: %w", ErrAggregates, err)
	}
	return plan, nil
}

// unavailable classifies collaborator failure which is not already
// classified.
func unavailable(op string, err error) error {
	var ie *content.ImportError
	if errors.As(err, &ie) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return content.WrapError(content.ErrorKindPersistUnavailable, op, err)
}
