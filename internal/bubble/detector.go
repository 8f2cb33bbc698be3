// Package bubble finds closed outlines in a frame and classifies them as
// speech bubble shapes by vertex count.
package bubble

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
	"github.com/GriffinCanCode/screen-translator/internal/vision"
)

const (
	MinArea          = 100.0
	MaxFrameFraction = 0.5
	ApproxEpsilon    = 0.02 // fraction of the perimeter
	MinVertices      = 4

	// areaNorm is the contour area that earns a full area score.
	areaNorm = 100000.0
)

// ErrGocvUnavailable is returned by NewGocvExtractor in builds without the
// gocv tag.
var ErrGocvUnavailable = stderrors.New("gocv support not compiled in (build with -tags gocv)")

// Extractor produces the contour tree of a frame's edge map.
type Extractor interface {
	Contours(img image.Image) ([]vision.Contour, error)
}

// VisionExtractor is the pure Go extractor: gray, 5×5 Gaussian, inverse
// threshold, Canny 50/150, border following.
type VisionExtractor struct{}

func (VisionExtractor) Contours(img image.Image) ([]vision.Contour, error) {
	gray := vision.Gray(img)
	blurred := vision.GaussianBlur(gray, 5, 0)
	// The binary image only mirrors the text preprocessing; contours come
	// from the edge map.
	_ = vision.Threshold(blurred, 100, 255, true)
	edges := vision.Canny(blurred, 50, 150)
	return vision.FindContours(edges), nil
}

// NewExtractor returns the extractor for a configured backend name.
func NewExtractor(backend string) (Extractor, error) {
	switch backend {
	case "", "vision":
		return VisionExtractor{}, nil
	case "gocv":
		return NewGocvExtractor()
	default:
		return nil, apperrors.Newf(apperrors.ConfigInvalid, "unknown bubble backend %q", backend)
	}
}

// Detector never fails: extractor errors and panics yield an empty result.
type Detector struct {
	ext Extractor
}

func NewDetector(ext Extractor) *Detector {
	if ext == nil {
		ext = VisionExtractor{}
	}
	return &Detector{ext: ext}
}

// Detect returns bubble candidates in contour discovery order.
func (d *Detector) Detect(ctx context.Context, f *capture.Frame) (bubbles []model.SpeechBubble) {
	log := trace.Logger(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error("bubble detection panicked", "error", apperrors.New(apperrors.DetectionFailed, fmt.Sprint(r)))
			bubbles = []model.SpeechBubble{}
		}
	}()

	if f == nil || f.Image == nil {
		return []model.SpeechBubble{}
	}

	contours, err := d.ext.Contours(f.Image)
	if err != nil {
		log.Warn("bubble detection failed", "error", apperrors.Wrap(err, apperrors.DetectionFailed, "extract contours"))
		return []model.SpeechBubble{}
	}

	size := f.Image.Bounds().Size()
	maxArea := float64(size.X*size.Y) * MaxFrameFraction

	bubbles = make([]model.SpeechBubble, 0)
	for _, c := range contours {
		if ctx.Err() != nil {
			return []model.SpeechBubble{}
		}
		if b, ok := Classify(c.Points, maxArea); ok {
			bubbles = append(bubbles, b)
		}
	}
	log.Debug("bubbles detected", "contours", len(contours), "bubbles", len(bubbles))
	return bubbles
}

// Classify turns one contour into a bubble, or reports false when its area is
// outside [MinArea, maxArea] or its approximation has fewer than MinVertices.
func Classify(pts []image.Point, maxArea float64) (model.SpeechBubble, bool) {
	area := vision.Area(pts)
	if area < MinArea || area > maxArea {
		return model.SpeechBubble{}, false
	}

	approx := vision.Approx(pts, ApproxEpsilon*vision.Perimeter(pts, true), true)
	n := len(approx)
	if n < MinVertices {
		return model.SpeechBubble{}, false
	}

	r := vision.Bounds(pts)
	return model.SpeechBubble{
		Box:        model.Rect{Left: r.Min.X, Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y},
		Kind:       KindOf(n),
		Confidence: Confidence(area, n),
	}, true
}

// KindOf buckets a polygon vertex count.
func KindOf(vertices int) model.BubbleKind {
	switch {
	case vertices > 8:
		return model.Thought
	case vertices > 6:
		return model.Shout
	case vertices > 4:
		return model.Narrative
	default:
		return model.Speech
	}
}

// Confidence averages an area score and a shape score.
func Confidence(area float64, vertices int) float64 {
	areaScore := min(max(area/areaNorm, 0), 1)
	shapeScore := 0.7
	if vertices >= 4 && vertices <= 8 {
		shapeScore = 1
	}
	return (areaScore + shapeScore) / 2
}
