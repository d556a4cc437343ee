// Package decode is the single entry point of the import pipeline: source of
// any supported kind goes in, uniform manuscript comes out.
package decode

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"msimport/archive"
	"msimport/common"
	"msimport/content"
	"msimport/decode/docx"
	"msimport/decode/epub"
	"msimport/decode/paste"
	"msimport/normalize"
)

// Options carries decoder settings, zero value selects defaults everywhere.
type Options struct {
	// Marker is the chapter separator line of pasted text and DOCX.
	Marker string
	// LowContentWords is the threshold below which chapter gets low content
	// warning, 0 means content.LowContentWords.
	LowContentWords int
	// UntitledTitle names DOCX content preceding the first chapter boundary.
	UntitledTitle string
	// FallbackTitle is template for EPUB chapters without any title.
	FallbackTitle string
	// EpubSplitLevel and DocxSplitLevel are the deepest heading levels
	// starting new chapter.
	EpubSplitLevel int
	DocxSplitLevel int
	// HeadingStyles are additional DOCX paragraph styles starting chapters.
	HeadingStyles []string
	// MaxInputSize limits size of the container file, 0 means no limit.
	MaxInputSize int64
	Archive      archive.Options
}

// Decode runs decoder selected by input format. Structural failures are
// fatal and no manuscript is returned, per chapter anomalies are warnings.
// Decoded manuscript always has at least one chapter.
func Decode(ctx context.Context, in content.Input, opts Options, log *zap.Logger) (*content.Manuscript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("decode")

	if in.Format.IsArchive() && opts.MaxInputSize > 0 && int64(in.Size()) > opts.MaxInputSize {
		return nil, content.NewError(content.ErrorKindCorruptArchive, in.Name, "file size %d exceeds limit of %d bytes", in.Size(), opts.MaxInputSize)
	}

	var (
		m   *content.Manuscript
		err error
	)
	switch in.Format {
	case common.InputFmtPaste:
		m, err = decodePaste(in, opts, log)
	case common.InputFmtEpub:
		var title *TitleTemplate
		if title, err = ParseTitleTemplate(opts.FallbackTitle); err != nil {
			return nil, err
		}
		dec := epub.New(epub.Options{
			SplitLevel:    opts.EpubSplitLevel,
			FallbackTitle: fallbackTitle(title, in.Name, log),
			Archive:       opts.Archive,
		}, log)
		m, err = dec.Decode(ctx, in.Name, in.Data)
	case common.InputFmtDocx:
		dec := docx.New(docx.Options{
			Marker:        opts.Marker,
			UntitledTitle: opts.UntitledTitle,
			HeadingStyles: opts.HeadingStyles,
			SplitLevel:    opts.DocxSplitLevel,
			Archive:       opts.Archive,
		}, log)
		m, err = dec.Decode(ctx, in.Name, in.Data)
	default:
		return nil, fmt.Errorf("unsupported input format %d", in.Format)
	}
	if err != nil {
		return nil, err
	}
	if len(m.Chapters) == 0 {
		return nil, content.NewError(content.ErrorKindEmptyInput, in.Name, "no chapters found")
	}

	flagLowContent(m, opts.LowContentWords)

	log.Debug("Source decoded",
		zap.Stringer("format", in.Format),
		zap.String("source", in.Name),
		zap.Int("chapters", len(m.Chapters)),
		zap.Uint64("words", m.WordCount()),
		zap.Int("warnings", len(m.Warnings)))
	return m, nil
}

func decodePaste(in content.Input, opts Options, log *zap.Logger) (*content.Manuscript, error) {
	seg := paste.New(opts.Marker, normalize.New(log), log)
	chapters, err := seg.Segment(in.Text)
	if err != nil {
		return nil, err
	}
	return &content.Manuscript{
		Source:   in.Name,
		Format:   common.InputFmtPaste,
		Chapters: chapters,
	}, nil
}

// fallbackTitle adapts template to EPUB decoder callback. Broken template
// output degrades to plain numbered title.
func fallbackTitle(t *TitleTemplate, source string, log *zap.Logger) func(int, string, string) string {
	return func(index int, doc, book string) string {
		title, err := t.Expand(TitleValues{
			Index:    index,
			Document: doc,
			Source:   source,
			Format:   common.InputFmtEpub.String(),
			Book:     book,
		})
		if err != nil {
			log.Warn("Unable to expand fallback title, using default", zap.Int("index", index), zap.Error(err))
			return fmt.Sprintf("Chapter %d", index)
		}
		return title
	}
}

// flagLowContent attaches low content warning to chapters below threshold.
// Such chapters are never removed automatically.
func flagLowContent(m *content.Manuscript, threshold int) {
	if threshold <= 0 {
		threshold = content.LowContentWords
	}
	for i := range m.Chapters {
		ch := &m.Chapters[i]
		if words := ch.WordCount(); words < uint32(threshold) {
			ch.Warn(content.WarningKindLowContent, strings.TrimSpace(ch.Title),
				fmt.Sprintf("only %d words, likely not real content", words))
		}
	}
}
