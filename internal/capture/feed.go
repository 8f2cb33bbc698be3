package capture

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
)

// ErrFeedIdle is returned by Push when no source holds the feed.
var ErrFeedIdle = stderrors.New("capture feed not started")

// Feed is a Provider for frames produced elsewhere: a remote capture client
// over WebSocket, or a test. Push blocks until the holding source takes the
// frame, so a slow consumer applies backpressure to the producer.
type Feed struct {
	mu      sync.Mutex
	handle  Handle
	active  bool
	frames  chan *Frame
	lost    chan error
	stopped chan struct{}
	denyErr error

	width, height int
	format        PixelFormat
}

func NewFeed() *Feed {
	return &Feed{}
}

// Deny makes the next Start fail with err, as if the user refused capture
// permission. A nil err re-allows.
func (f *Feed) Deny(err error) {
	f.mu.Lock()
	f.denyErr = err
	f.mu.Unlock()
}

func (f *Feed) Start(ctx context.Context, width, height int, format PixelFormat) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.denyErr != nil {
		return 0, apperrors.Wrap(f.denyErr, apperrors.CaptureUnavailable, "capture permission denied")
	}
	if f.active {
		return 0, apperrors.New(apperrors.CaptureUnavailable, "capture feed already in use")
	}

	f.handle++
	f.active = true
	f.frames = make(chan *Frame)
	f.lost = make(chan error, 1)
	f.stopped = make(chan struct{})
	f.width, f.height, f.format = width, height, format
	return f.handle, nil
}

func (f *Feed) OnFrame(ctx context.Context, h Handle) (*Frame, error) {
	frames, lost, stopped, err := f.channels(h)
	if err != nil {
		return nil, err
	}
	select {
	case fr := <-frames:
		return fr, nil
	case err := <-lost:
		return nil, err
	case <-stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Feed) Stop(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active || h != f.handle {
		return nil
	}
	f.active = false
	close(f.stopped)
	return nil
}

// Push hands fr to the source holding the feed, stamping it with the
// current time if it carries none.
func (f *Feed) Push(ctx context.Context, fr *Frame) error {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return ErrFeedIdle
	}
	frames, stopped := f.frames, f.stopped
	f.mu.Unlock()

	if fr.Timestamp.IsZero() {
		fr.Timestamp = time.Now()
	}

	select {
	case frames <- fr:
		return nil
	case <-stopped:
		return ErrFeedIdle
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lose simulates the capture surface going away mid-run.
func (f *Feed) Lose(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	select {
	case f.lost <- err:
	default:
	}
}

// Active reports whether a source currently holds the feed.
func (f *Feed) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Size returns the dimensions requested by the holding source.
func (f *Feed) Size() (width, height int, format PixelFormat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width, f.height, f.format
}

func (f *Feed) channels(h Handle) (chan *Frame, chan error, chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active || h != f.handle {
		return nil, nil, nil, ErrStopped
	}
	return f.frames, f.lost, f.stopped, nil
}
