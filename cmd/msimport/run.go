package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"msimport/commit"
	"msimport/content"
	"msimport/decode"
	"msimport/session"
	"msimport/state"
	"msimport/store"
)

// readSource reads manuscript, "-" means pasted text from stdin.
func readSource(src string, stdin io.Reader) (content.Input, []byte, error) {
	if src == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return content.Input{}, nil, fmt.Errorf("unable to read STDIN: %w", err)
		}
		return content.PasteInput(string(data)), data, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return content.Input{}, nil, fmt.Errorf("unable to read source: %w", err)
	}
	in, err := decode.NewInput(src, data)
	return in, data, err
}

// decodeSource runs decoder in background job so interrupt cancels it.
func decodeSource(ctx context.Context, cmd *cli.Command, env *state.LocalEnv) (*content.Manuscript, error) {
	log := env.Log

	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many sources", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}
	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return nil, errors.New("no SOURCE has been specified")
	}

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		if err := env.ForceCodePage(cp); err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
		} else {
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", env.CodePageName()))
		}
	}

	in, data, err := readSource(src, os.Stdin)
	if err != nil {
		return nil, err
	}
	name := src
	if src == "-" {
		name = in.Name + in.Format.Ext()
	}
	env.Rpt.StoreSource(name, data)

	log.Info("Decoding starting", zap.String("source", src), zap.Stringer("format", in.Format), zap.Int("size", in.Size()))
	defer func(start time.Time) {
		log.Info("Decoding completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	job := decode.Start(ctx, in, env.DecodeOptions(), log)
	m, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}
	env.Rpt.StoreData("manuscript.txt", []byte(m.String()))
	return m, nil
}

func languageName(tag language.Tag) string {
	if tag == language.Und {
		return "unknown"
	}
	return display.English.Languages().Name(tag)
}

// printPreview writes session chapters the way author would see them before
// commit.
func printPreview(w io.Writer, s *session.Session) error {
	st := s.Stats()
	fmt.Fprintf(w, "Source: %s (%s), language: %s\n", s.Source(), s.Format(), languageName(s.Language()))
	if len(s.StoryTitle()) > 0 {
		fmt.Fprintf(w, "Title: %s\n", s.StoryTitle())
	}
	fmt.Fprintf(w, "Chapters: %d, words: %d, low content: %d\n", st.Chapters, st.Words, st.LowContent)

	for i, ch := range s.Chapters() {
		words, err := s.WordCount(i)
		if err != nil {
			return err
		}
		low, err := s.LowContent(i)
		if err != nil {
			return err
		}
		excerpt, err := s.Excerpt(i)
		if err != nil {
			return err
		}
		title := ch.Title
		if len(strings.TrimSpace(title)) == 0 {
			title = "<no title>"
		}
		flag := ""
		if low {
			flag = " (low content)"
		}
		fmt.Fprintf(w, "%4d. %s [%d words]%s\n", i+1, title, words, flag)
		if len(excerpt) > 0 {
			fmt.Fprintf(w, "      %s\n", excerpt)
		}
		for _, warn := range ch.Warnings {
			fmt.Fprintf(w, "      ! %s\n", warn)
		}
	}
	if warnings := s.ManuscriptWarnings(); len(warnings) > 0 {
		fmt.Fprintf(w, "Warnings:\n")
		for _, warn := range warnings {
			fmt.Fprintf(w, "  ! %s\n", warn)
		}
	}
	return nil
}

func runPreview(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	m, err := decodeSource(ctx, cmd, env)
	if err != nil {
		return err
	}
	s := session.New("", "", env.SessionOptions(), env.Log)
	if err := s.Load(m); err != nil {
		return err
	}
	defer s.Abandon()
	return printPreview(os.Stdout, s)
}

// chapterIndex converts 1 based chapter number from command line.
func chapterIndex(arg string, count int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 || n > count {
		return 0, fmt.Errorf("chapter %q is not in range 1..%d", arg, count)
	}
	return n - 1, nil
}

// applyEdits renames and drops chapters. Numbers refer to decoded order, so
// renames go first and removals are done from the end.
func applyEdits(s *session.Session, renames, drops []string) error {
	count := s.Len()
	for _, r := range renames {
		num, title, ok := strings.Cut(r, "=")
		if !ok {
			return fmt.Errorf("rename %q: expected N=TITLE", r)
		}
		i, err := chapterIndex(num, count)
		if err != nil {
			return err
		}
		if err := s.RenameAt(i, title); err != nil {
			return err
		}
	}

	indexes := make([]int, 0, len(drops))
	for _, d := range drops {
		i, err := chapterIndex(d, count)
		if err != nil {
			return err
		}
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)
	indexes = slices.Compact(indexes)
	for _, i := range slices.Backward(indexes) {
		if err := s.RemoveAt(i); err != nil {
			return err
		}
	}
	return nil
}

// ensureStory creates target story when it does not exist yet.
func ensureStory(ctx context.Context, db *store.Store, id, title string, log *zap.Logger) error {
	_, err := db.Story(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if len(title) == 0 {
		title = id
	}
	log.Info("Creating new story", zap.String("story", id), zap.String("title", title), zap.String("slug", slug.Make(title)))
	return db.CreateStory(ctx, id, title)
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	m, err := decodeSource(ctx, cmd, env)
	if err != nil {
		return err
	}

	storyID := cmd.String("story")
	s := session.New(storyID, cmd.String("title"), env.SessionOptions(), env.Log)
	if err := s.Load(m); err != nil {
		return err
	}
	if err := applyEdits(s, cmd.StringSlice("rename"), cmd.StringSlice("drop")); err != nil {
		return err
	}

	db, err := env.Store()
	if err != nil {
		return err
	}
	if err := ensureStory(ctx, db, storyID, s.StoryTitle(), env.Log); err != nil {
		return err
	}

	plan, err := commit.New(db, env.CommitOptions(), env.Log).Commit(ctx, s)
	if err != nil && !errors.Is(err, commit.ErrAggregates) {
		return err
	}
	if err != nil {
		env.Log.Warn("Chapters were stored, story totals will be refreshed later", zap.Error(err))
	}
	env.Log.Info("Import completed",
		zap.String("story", storyID),
		zap.Uint32("first", plan.StartingNumber),
		zap.Int("chapters", len(plan.Drafts)),
		zap.Uint64("words", plan.Words()))
	return nil
}

// printChapters lists stored chapters.
func printChapters(w io.Writer, st store.Story, chapters []store.Chapter) {
	fmt.Fprintf(w, "Story: %s (%s), published chapters: %d, published words: %d\n", st.Title, st.ID, st.ChapterCount, st.TotalWordCount)
	for _, ch := range chapters {
		status := "draft"
		if ch.Published {
			status = "published"
		}
		fmt.Fprintf(w, "%4d. %s [%d words, %s]\n", ch.Number, ch.Title, ch.WordCount, status)
	}
}

func runChapters(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	db, err := env.Store()
	if err != nil {
		return err
	}
	storyID := cmd.String("story")
	st, err := db.Story(ctx, storyID)
	if err != nil {
		return err
	}
	chapters, err := db.Chapters(ctx, storyID)
	if err != nil {
		return err
	}
	printChapters(os.Stdout, st, chapters)
	return nil
}

func runPublish(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	n, err := strconv.ParseUint(cmd.Args().Get(0), 10, 32)
	if err != nil || n == 0 {
		return fmt.Errorf("chapter NUMBER is required: %q", cmd.Args().Get(0))
	}
	db, err := env.Store()
	if err != nil {
		return err
	}
	storyID := cmd.String("story")
	if err := db.PublishChapter(ctx, storyID, uint32(n)); err != nil {
		return err
	}
	env.Log.Info("Chapter published", zap.String("story", storyID), zap.Uint64("number", n))
	return nil
}
