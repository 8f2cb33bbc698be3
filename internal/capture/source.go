package capture

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/syncx"
)

// DefaultTargetFPS caps analysis at ten frames per second.
const DefaultTargetFPS = 10

// ErrStopped is returned by Next once the source has been stopped.
var ErrStopped = stderrors.New("capture source stopped")

// Config describes the surface to acquire and the delivery rate.
type Config struct {
	Width     int
	Height    int
	Format    PixelFormat
	TargetFPS float64
}

// MinInterval is the minimum capture-timestamp gap between accepted frames.
func (c Config) MinInterval() time.Duration {
	fps := c.TargetFPS
	if fps <= 0 {
		fps = DefaultTargetFPS
	}
	return time.Duration(float64(time.Second) / fps)
}

// Stats counts frames across the lifetime of a Source.
type Stats struct {
	Captured    uint64 `json:"captured"`
	Accepted    uint64 `json:"accepted"`
	Throttled   uint64 `json:"throttled"`
	Overwritten uint64 `json:"overwritten"`
}

// run is the state of one Start..Stop cycle.
type run struct {
	handle Handle
	cancel context.CancelFunc
	done   chan struct{}
	box    *syncx.Mailbox[*Frame]
}

// Source throttles a Provider to the target rate and hands the most recent
// accepted frame to the consumer. Frames are never queued: an accepted frame
// that arrives before the previous one was taken replaces it.
type Source struct {
	provider Provider
	cfg      Config

	mu  sync.Mutex
	cur *run

	errMu sync.Mutex
	err   error

	captured  atomic.Uint64
	accepted  atomic.Uint64
	throttled atomic.Uint64
	// overwrites counted by the mailboxes of finished runs
	retired atomic.Uint64
}

func NewSource(p Provider, cfg Config) *Source {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = DefaultTargetFPS
	}
	return &Source{provider: p, cfg: cfg}
}

// Start acquires the capture surface and begins pulling frames. A failure to
// acquire is terminal for this attempt and is not retried.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		return apperrors.New(apperrors.SessionActive, "capture source already started")
	}

	h, err := s.provider.Start(ctx, s.cfg.Width, s.cfg.Height, s.cfg.Format)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CaptureUnavailable) {
			return err
		}
		return apperrors.Wrap(err, apperrors.CaptureUnavailable, "acquire capture surface")
	}

	s.setErr(nil)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		handle: h,
		cancel: cancel,
		done:   make(chan struct{}),
		box:    syncx.NewMailbox[*Frame](),
	}
	s.cur = r
	go s.captureLoop(runCtx, r)

	slog.Info("capture source started",
		"width", s.cfg.Width, "height", s.cfg.Height,
		"format", s.cfg.Format.String(), "target_fps", s.cfg.TargetFPS)
	return nil
}

func (s *Source) captureLoop(ctx context.Context, r *run) {
	defer close(r.done)

	minGap := s.cfg.MinInterval()
	var last time.Time

	for {
		f, err := s.provider.OnFrame(ctx, r.handle)
		if err != nil {
			if ctx.Err() != nil {
				r.box.Close(ErrStopped)
				return
			}
			lost := apperrors.Wrap(err, apperrors.CaptureLost, "capture surface lost")
			s.setErr(lost)
			r.box.Close(lost)
			slog.Error("capture surface lost", "error", err)
			return
		}
		if f == nil {
			continue
		}
		s.captured.Add(1)

		ts := f.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if !last.IsZero() && ts.Sub(last) < minGap {
			s.throttled.Add(1)
			continue
		}
		last = ts
		s.accepted.Add(1)

		r.box.Publish(f)
	}
}

// Next blocks for the latest accepted frame. It returns the CAPTURE_LOST
// error after a surface loss and ErrStopped once stopped.
func (s *Source) Next(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		if err := s.Err(); err != nil {
			return nil, err
		}
		return nil, ErrStopped
	}
	return r.box.Receive(ctx)
}

// Frames is the lazy, unbounded frame sequence. The channel closes when the
// source stops, faults or ctx ends; Err tells the cases apart.
func (s *Source) Frames(ctx context.Context) <-chan *Frame {
	out := make(chan *Frame)
	go func() {
		defer close(out)
		for {
			f, err := s.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Stop releases the surface. It is safe to call repeatedly, and the source
// may be started again afterwards.
func (s *Source) Stop() error {
	s.mu.Lock()
	r := s.cur
	s.cur = nil
	s.mu.Unlock()

	if r == nil {
		return nil
	}

	r.cancel()
	<-r.done
	r.box.Close(ErrStopped)
	s.retired.Add(r.box.Dropped())

	if err := s.provider.Stop(r.handle); err != nil {
		slog.Warn("failed to release capture surface", "error", err)
		return err
	}
	slog.Info("capture source stopped", "stats", s.Stats())
	return nil
}

// Running reports whether a surface is held.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Err returns the terminal fault of the current or last run, if any.
func (s *Source) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Source) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

func (s *Source) Stats() Stats {
	overwritten := s.retired.Load()
	s.mu.Lock()
	if s.cur != nil {
		overwritten += s.cur.box.Dropped()
	}
	s.mu.Unlock()

	return Stats{
		Captured:    s.captured.Load(),
		Accepted:    s.accepted.Load(),
		Throttled:   s.throttled.Load(),
		Overwritten: overwritten,
	}
}
