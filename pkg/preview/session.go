// Package preview keeps an interactive avatar preview consistent while
// renders complete out of order.
//
// Every submitted job gets a generation number. A finished job is applied
// only when its generation is newer than the one currently shown, so a slow
// render for an old slider position can never overwrite a newer one.
// Superseded jobs are not cancelled; they run to completion and their result
// is dropped.
package preview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/menta2k/flag-avatar/pkg/types"
)

// Job renders one preview
type Job func(ctx context.Context) (*types.RenderOutput, error)

// State is what the preview currently shows
type State struct {
	// Output is the most recent successful render, kept across failures
	Output *types.RenderOutput
	// Generation of the last applied job, successful or not
	Generation uint64
	// Err is set when the last applied job failed
	Err error
}

// Failed reports whether nothing has rendered successfully and the last job failed
func (s State) Failed() bool {
	return s.Output == nil && s.Err != nil
}

// Session tracks submitted preview jobs
type Session struct {
	next   atomic.Uint64
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	closed  bool
	onApply func(State)

	// serializes callbacks; never acquired while mu is held
	notify   sync.Mutex
	notified uint64 // guarded by notify

	wg sync.WaitGroup
}

// NewSession creates an empty session
func NewSession(logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{logger: logger}
}

// OnApply registers fn to be called after applied results. Calls are
// serialized and their generations strictly increase; a result overtaken by a
// newer one before its callback ran is skipped. fn may call State, Submit
// and Close but must not call Wait.
func (s *Session) OnApply(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onApply = fn
}

// Submit runs job in the background and returns its generation. After
// Close it returns 0 and does nothing.
func (s *Session) Submit(ctx context.Context, job Job) uint64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	gen := s.next.Add(1)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		out, err := job(ctx)
		s.apply(gen, out, err)
	}()
	return gen
}

func (s *Session) apply(gen uint64, out *types.RenderOutput, err error) {
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		s.logger.Debug("preview job cancelled", zap.Uint64("generation", gen))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if gen <= s.state.Generation {
		s.mu.Unlock()
		s.logger.Debug("stale preview discarded",
			zap.Uint64("generation", gen), zap.Uint64("applied", s.state.Generation))
		return
	}

	s.state.Generation = gen
	s.state.Err = err
	if err == nil {
		s.state.Output = out
	} else {
		s.logger.Warn("preview render failed", zap.Uint64("generation", gen), zap.Error(err))
	}
	snapshot := s.state
	fn := s.onApply
	s.mu.Unlock()

	if fn == nil {
		return
	}
	s.notify.Lock()
	defer s.notify.Unlock()
	if snapshot.Generation <= s.notified {
		return
	}
	s.notified = snapshot.Generation
	fn(snapshot)
}

// State returns what the preview currently shows
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until every submitted job has finished
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close stops applying results and rejects new jobs. Running jobs are left
// to finish; call Wait to block for them. The last state stays readable.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
