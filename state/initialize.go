package state

import (
	"time"

	"msimport/archive"
	"msimport/commit"
	"msimport/decode"
	"msimport/session"
)

// newLocalEnv creates a new LocalEnv instance with default values
func newLocalEnv() *LocalEnv {
	return &LocalEnv{start: time.Now()}
}

// DecodeOptions translates import configuration for decoders.
func (e *LocalEnv) DecodeOptions() decode.Options {
	opts := decode.Options{Archive: archive.Options{CodePage: e.CodePage}}
	if e.Cfg == nil {
		return opts
	}
	imp := e.Cfg.Import
	opts.Marker = imp.ChapterMarker
	opts.LowContentWords = imp.LowContentWords
	opts.UntitledTitle = imp.UntitledTitle
	opts.FallbackTitle = imp.FallbackTitleTemplate
	opts.EpubSplitLevel = imp.EpubSplitLevel
	opts.DocxSplitLevel = imp.DocxSplitLevel
	opts.HeadingStyles = imp.HeadingStyles
	opts.MaxInputSize = imp.MaxInputSize
	opts.Archive.MaxPartSize = imp.MaxPartSize
	return opts
}

// SessionOptions translates import configuration for import sessions.
func (e *LocalEnv) SessionOptions() session.Options {
	if e.Cfg == nil {
		return session.Options{}
	}
	return session.Options{
		LowContentWords: e.Cfg.Import.LowContentWords,
		ExcerptRunes:    e.Cfg.Import.ExcerptLength,
	}
}

// CommitOptions translates import configuration for committer.
func (e *LocalEnv) CommitOptions() commit.Options {
	if e.Cfg == nil {
		return commit.Options{}
	}
	return commit.Options{
		Placeholder: e.Cfg.Import.PlaceholderTitle,
		Retries:     e.Cfg.Import.CommitRetries,
	}
}
