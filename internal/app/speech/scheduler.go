package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
	"github.com/PabloGalante/fiqh-assistant/internal/observability"
)

// ErrAlreadyPlaying is returned by Play while a previous call is still running.
var ErrAlreadyPlaying = errors.New("speech is already playing")

// Output is an audio sink with its own clock.
type Output interface {
	// Now is the current position of the output clock.
	Now() time.Duration
	// Start schedules buf to begin at the given clock position.
	Start(buf Buffer, at time.Duration) (Handle, error)
}

// Handle is one scheduled buffer.
type Handle interface {
	// Stop halts the buffer. Safe to call more than once.
	Stop()
	// Done is closed when the buffer has finished or was stopped.
	Done() <-chan struct{}
}

type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

// Scheduler plays one message's text as back-to-back synthesized segments.
// The output is created on first use and reused by later calls.
type Scheduler struct {
	synth     domain.Synthesizer
	newOutput func() (Output, error)

	mu      sync.Mutex
	out     Output
	current *run
}

// run is the bookkeeping of one Play call.
type run struct {
	cancel    context.CancelFunc
	cancelled bool
	live      []Handle
	stopped   chan struct{}
}

func NewScheduler(synth domain.Synthesizer, newOutput func() (Output, error)) *Scheduler {
	return &Scheduler{synth: synth, newOutput: newOutput}
}

// State reports whether a Play call is in progress.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return StatePlaying
	}
	return StateIdle
}

// Play synthesizes and schedules every segment of text, then waits for the
// audio to finish. It returns nil when playback completes or Cancel is called,
// ctx.Err() when ctx ends first, and an error wrapping
// domain.ErrSynthesisFailed when a segment cannot be synthesized or played.
func (s *Scheduler) Play(ctx context.Context, text string, voice domain.Voice) error {
	segments := Segments(text)

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrAlreadyPlaying
	}
	out, err := s.outputLocked()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: opening output: %v", domain.ErrSynthesisFailed, err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, stopped: make(chan struct{})}
	s.current = r
	s.mu.Unlock()
	defer cancel()

	log := observability.LoggerFromContext(ctx)

	if err := s.schedule(runCtx, r, out, segments, voice); err != nil {
		byCancel := s.wasCancelled(r)
		if s.abort(r) {
			log.Warn("speech playback aborted", "error", err)
		}
		if byCancel && ctx.Err() == nil {
			return nil
		}
		return err
	}

	if err := s.drain(ctx, r); err != nil {
		s.abort(r)
		return err
	}
	s.finish(r)
	return nil
}

// Cancel stops every scheduled buffer and returns to idle immediately.
// It is a no-op when nothing is playing. It is meant for a live output shared
// across requests; the HTTP and CLI renderers own one Timeline per call and
// stop through the request or signal context instead, which Play honours.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r != nil {
		s.abort(r)
	}
}

func (s *Scheduler) outputLocked() (Output, error) {
	if s.out != nil {
		return s.out, nil
	}
	out, err := s.newOutput()
	if err != nil {
		return nil, err
	}
	s.out = out
	return out, nil
}

func (s *Scheduler) schedule(ctx context.Context, r *run, out Output, segments []string, voice domain.Voice) error {
	log := observability.LoggerFromContext(ctx)
	next := out.Now()

	for i, seg := range segments {
		if s.wasCancelled(r) {
			return context.Canceled
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := s.synth.Synthesize(ctx, seg, voice)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: segment %d: %v", domain.ErrSynthesisFailed, i, err)
		}
		if payload == "" {
			log.Debug("speech segment has no audio, skipping", "segment", i)
			continue
		}

		buf, err := Decode(payload)
		if err != nil {
			return fmt.Errorf("%w: segment %d: %v", domain.ErrSynthesisFailed, i, err)
		}

		if s.wasCancelled(r) {
			return context.Canceled
		}
		at := max(next, out.Now())
		h, err := out.Start(buf, at)
		if err != nil {
			return fmt.Errorf("%w: segment %d: %v", domain.ErrSynthesisFailed, i, err)
		}
		if !s.track(r, h) {
			h.Stop()
			return context.Canceled
		}
		next = at + buf.Duration()
	}
	return nil
}

// drain waits until every scheduled buffer has finished.
func (s *Scheduler) drain(ctx context.Context, r *run) error {
	s.mu.Lock()
	live := append([]Handle(nil), r.live...)
	s.mu.Unlock()

	for _, h := range live {
		select {
		case <-h.Done():
		case <-r.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) track(r *run, h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.cancelled {
		return false
	}
	r.live = append(r.live, h)
	return true
}

func (s *Scheduler) wasCancelled(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.cancelled
}

// abort marks r cancelled, stops its handles and returns to idle.
// It reports false if r was already cancelled.
func (s *Scheduler) abort(r *run) bool {
	s.mu.Lock()
	if r.cancelled {
		s.mu.Unlock()
		return false
	}
	r.cancelled = true
	live := r.live
	r.live = nil
	if s.current == r {
		s.current = nil
	}
	close(r.stopped)
	s.mu.Unlock()

	r.cancel()
	for _, h := range live {
		h.Stop()
	}
	return true
}

func (s *Scheduler) finish(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.live = nil
	if s.current == r {
		s.current = nil
	}
}
