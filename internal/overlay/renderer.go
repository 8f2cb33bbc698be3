// Package overlay holds the translations currently on screen and paints them
// as opaque labels over the source text.
package overlay

import (
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/syncx"
)

var (
	Background = color.White
	Border     = color.Gray{Y: 0x44}
	Foreground = color.Black
)

// Surface is where the overlay is shown. Invalidate asks it to redraw from
// the renderer's current snapshot.
type Surface interface {
	Attach() error
	Detach() error
	Invalidate()
}

type Options struct {
	// Face is the label font; gg's built-in face when nil.
	Face font.Face
}

// Renderer owns the displayed translations. The pipeline replaces them with
// Update or Clear while readers take consistent snapshots.
type Renderer struct {
	shown   *syncx.RWGuard[[]model.TranslationResult]
	version atomic.Uint64
	face    font.Face

	mu      sync.Mutex
	surface Surface
}

func NewRenderer(opts Options) *Renderer {
	return &Renderer{
		shown: syncx.NewGuard([]model.TranslationResult{}),
		face:  opts.Face,
	}
}

// LoadFace loads a TrueType font for labels.
func LoadFace(path string, points float64) (font.Face, error) {
	face, err := gg.LoadFontFace(path, points)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ConfigInvalid, "load font %s", path)
	}
	return face, nil
}

// Update replaces the displayed set with batch.
func (r *Renderer) Update(batch []model.TranslationResult) {
	cp := make([]model.TranslationResult, len(batch))
	copy(cp, batch)
	r.shown.Set(cp)
	r.version.Add(1)
	r.invalidate()
}

// Clear empties the displayed set. Clearing an empty overlay changes
// nothing and does not redraw.
func (r *Renderer) Clear() {
	if prev := r.shown.Swap([]model.TranslationResult{}); len(prev) == 0 {
		return
	}
	r.version.Add(1)
	r.invalidate()
}

// Snapshot returns a copy of the displayed set.
func (r *Renderer) Snapshot() []model.TranslationResult {
	return syncx.View(r.shown, func(s []model.TranslationResult) []model.TranslationResult {
		cp := make([]model.TranslationResult, len(s))
		copy(cp, s)
		return cp
	})
}

func (r *Renderer) Len() int {
	return syncx.View(r.shown, func(s []model.TranslationResult) int { return len(s) })
}

// Version increases on every Update and on every Clear that removed something.
func (r *Renderer) Version() uint64 { return r.version.Load() }

// Attach shows the overlay on s, replacing any attached surface. Failure is
// fatal for the session.
func (r *Renderer) Attach(s Surface) error {
	r.mu.Lock()
	if r.surface != nil {
		if err := r.surface.Detach(); err != nil {
			slog.Warn("overlay detach failed", "error", err)
		}
		r.surface = nil
	}
	if err := s.Attach(); err != nil {
		r.mu.Unlock()
		return apperrors.Wrap(err, apperrors.OverlayAttachFailed, "attach overlay surface")
	}
	r.surface = s
	r.mu.Unlock()

	s.Invalidate()
	return nil
}

// Detach removes the overlay from its surface. Detaching twice is a no-op.
func (r *Renderer) Detach() error {
	r.mu.Lock()
	s := r.surface
	r.surface = nil
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Detach(); err != nil {
		return apperrors.Wrap(err, apperrors.OverlayAttachFailed, "detach overlay surface")
	}
	return nil
}

func (r *Renderer) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface != nil
}

func (r *Renderer) invalidate() {
	r.mu.Lock()
	s := r.surface
	r.mu.Unlock()
	if s != nil {
		s.Invalidate()
	}
}

// Draw paints every displayed translation onto dc.
func (r *Renderer) Draw(dc *gg.Context) {
	if r.face != nil {
		dc.SetFontFace(r.face)
	}
	for _, res := range r.shown.Get() {
		if l, ok := Layout(res, dc); ok {
			paint(dc, l)
		}
	}
}

// Render paints the overlay onto a transparent w×h canvas.
func (r *Renderer) Render(w, h int) image.Image {
	dc := gg.NewContext(w, h)
	r.Draw(dc)
	return dc.Image()
}

func paint(dc *gg.Context, l Label) {
	dc.Push()
	defer dc.Pop()

	if l.Angle != 0 {
		dc.RotateAbout(gg.Radians(l.Angle), l.CX, l.CY)
	}

	dc.DrawRoundedRectangle(l.BgX, l.BgY, l.BgW, l.BgH, CornerRadius)
	dc.SetColor(Background)
	dc.FillPreserve()
	dc.SetColor(Border)
	dc.SetLineWidth(BorderWidth)
	dc.Stroke()

	dc.SetColor(Foreground)
	x := float64(l.Box.Left) + float64(l.Box.Width())/2
	y := float64(l.Box.Top)
	for _, line := range l.Lines {
		dc.DrawStringAnchored(line, x, y, 0.5, 1)
		y += l.LineHeight
	}
}
