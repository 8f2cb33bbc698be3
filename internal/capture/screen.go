package capture

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/image/draw"

	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
)

const (
	// DefaultPollInterval paces screenshot tool invocations.
	DefaultPollInterval = 100 * time.Millisecond
	// MaxConsecutiveFailures before the surface is considered lost.
	MaxConsecutiveFailures = 3
)

// backend implements platform-specific raw capture.
type backend interface {
	available() error
	captureRaw(ctx context.Context, tempDir string) ([]byte, error)
}

// Screen captures the primary display by shelling out to the platform
// screenshot tool. Unchanged screenshots are not delivered.
type Screen struct {
	backend      backend
	pollInterval time.Duration

	mu       sync.Mutex
	handle   Handle
	active   bool
	tempDir  string
	width    int
	height   int
	lastHash [16]byte
}

// NewScreen creates a screen provider for the current platform.
func NewScreen() *Screen {
	return &Screen{backend: platformBackend(), pollInterval: DefaultPollInterval}
}

func (s *Screen) Start(ctx context.Context, width, height int, _ PixelFormat) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return 0, apperrors.New(apperrors.CaptureUnavailable, "screen capture already in use")
	}
	if err := s.backend.available(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CaptureUnavailable, "no screenshot tool")
	}

	dir, err := os.MkdirTemp("", "screen-translator-*")
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CaptureUnavailable, "create capture dir")
	}

	s.handle++
	s.active = true
	s.tempDir = dir
	s.width, s.height = width, height
	s.lastHash = [16]byte{}
	return s.handle, nil
}

func (s *Screen) OnFrame(ctx context.Context, h Handle) (*Frame, error) {
	failures := 0
	for {
		s.mu.Lock()
		if !s.active || h != s.handle {
			s.mu.Unlock()
			return nil, ErrStopped
		}
		dir := s.tempDir
		s.mu.Unlock()

		data, err := s.backend.captureRaw(ctx, dir)
		if err == nil {
			if f, ok := s.toFrame(data); ok {
				return f, nil
			}
		} else if ctx.Err() == nil {
			failures++
			slog.Warn("screenshot failed", "error", err, "consecutive", failures)
			if failures >= MaxConsecutiveFailures {
				return nil, fmt.Errorf("screenshot failed %d times: %w", failures, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// toFrame decodes data, skipping screenshots identical to the previous one.
// The whole payload is hashed; text can change anywhere on screen.
func (s *Screen) toFrame(data []byte) (*Frame, bool) {
	ts := time.Now()
	hash := md5.Sum(data)

	s.mu.Lock()
	if hash == s.lastHash {
		s.mu.Unlock()
		return nil, false
	}
	s.lastHash = hash
	w, h := s.width, s.height
	s.mu.Unlock()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("failed to decode screenshot", "error", err)
		return nil, false
	}
	img = scaleTo(img, w, h)

	f := NewFrame(img, ts)
	f.Format = Encoded
	return f, true
}

func (s *Screen) Stop(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || h != s.handle {
		return nil
	}
	s.active = false
	if s.tempDir != "" {
		return os.RemoveAll(s.tempDir)
	}
	return nil
}

// scaleTo resizes img to width x height. Non-positive sizes keep the native size.
func scaleTo(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() == width && b.Dy() == height) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
