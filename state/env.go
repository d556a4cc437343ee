// Package state defines shared program state.
package state

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"msimport/config"
	"msimport/store"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Rpt *config.Report
	Log *zap.Logger

	// CodePage is forced for non UTF-8 file names inside of archives
	CodePage encoding.Encoding

	db            *store.Store
	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, newLocalEnv())
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}

// ForceCodePage sets code page by IANA name, empty name resets it.
func (e *LocalEnv) ForceCodePage(name string) error {
	if len(name) == 0 {
		e.CodePage = nil
		return nil
	}
	cp, err := ianaindex.IANA.Encoding(name)
	if err == nil && cp == nil {
		err = fmt.Errorf("character set %q is not supported", name)
	}
	if err != nil {
		e.CodePage = nil
		return err
	}
	e.CodePage = cp
	return nil
}

// CodePageName returns IANA name of forced code page, empty when none.
func (e *LocalEnv) CodePageName() string {
	if e.CodePage == nil {
		return ""
	}
	n, _ := ianaindex.IANA.Name(e.CodePage)
	return n
}

// Store opens configured database on first use.
func (e *LocalEnv) Store() (*store.Store, error) {
	if e.db != nil {
		return e.db, nil
	}
	if e.Cfg == nil {
		return nil, fmt.Errorf("configuration is not loaded")
	}
	db, err := store.Open(e.Cfg.Store.Path, e.Log)
	if err != nil {
		return nil, fmt.Errorf("unable to open story database: %w", err)
	}
	e.db = db
	return db, nil
}

// CloseStore releases database if it was opened.
func (e *LocalEnv) CloseStore() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}
