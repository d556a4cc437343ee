package decode

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"msimport/content"
)

// Job is decoding running in background. Result becomes visible only when
// decoding completes, cancelled job never exposes it.
type Job struct {
	done      chan struct{}
	cancel    context.CancelFunc
	cancelled atomic.Bool

	m   *content.Manuscript
	err error
}

// Start begins decoding in its own goroutine. Cancelling ctx or calling
// Cancel stops decoding at the next checkpoint and discards the result.
func Start(ctx context.Context, in content.Input, opts Options, log *zap.Logger) *Job {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(j.done)
		defer cancel()

		start := time.Now()
		m, err := run(ctx, in, opts, log)
		if err == nil && ctx.Err() != nil {
			// finished after cancellation, result must not be observed
			m, err = nil, ctx.Err()
		}
		j.m, j.err = m, err
		log.Debug("Decode job finished", zap.String("source", in.Name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	}()
	return j
}

// run calls Decode turning panics into errors.
func run(ctx context.Context, in content.Input, opts Options, log *zap.Logger) (m *content.Manuscript, rerr error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Decoding ended with panic",
				zap.String("source", in.Name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			m, rerr = nil, fmt.Errorf("decoding panic: %v", r)
		}
	}()
	return Decode(ctx, in, opts, log)
}

// Cancel stops decoding and discards its result. It is safe to call more
// than once and after completion.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
	j.cancel()
}

// Done is closed when the job goroutine exits.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until decoding completes or ctx is done. Result of a
// cancelled job is always context.Canceled.
func (j *Job) Wait(ctx context.Context) (*content.Manuscript, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
	}
	if j.cancelled.Load() {
		return nil, context.Canceled
	}
	return j.m, j.err
}
