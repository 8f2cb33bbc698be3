// Package textdetect turns OCR engine output into positioned, orientation
// tagged text blocks.
package textdetect

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
)

const (
	// DefaultConfidence is used when the engine reports none.
	DefaultConfidence = 0.95
	// DefaultLanguage is assumed when the engine reports no language.
	DefaultLanguage = "en"
)

// ErrTesseractUnavailable is returned by NewTesseract in builds without the
// tesseract tag.
var ErrTesseractUnavailable = stderrors.New("tesseract support not compiled in (build with -tags tesseract)")

// Point is a corner of a detected region in frame pixels.
type Point struct {
	X, Y float64
}

// Region is one text region as reported by an OCR engine. Corners, when
// present, start at the top-left of the text baseline and run clockwise.
type Region struct {
	Text          string
	Box           model.Rect
	Corners       []Point
	Confidence    float64
	HasConfidence bool
	Language      string
}

// Recognizer is an OCR engine.
type Recognizer interface {
	Recognize(ctx context.Context, f *capture.Frame) ([]Region, error)
}

type languageKey struct{}

// WithLanguage attaches an engine language hint ("eng", "jpn+eng") to ctx.
// Recognizers that support several languages use it for that call.
func WithLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, languageKey{}, lang)
}

// LanguageFrom returns the hint attached by WithLanguage, or "".
func LanguageFrom(ctx context.Context) string {
	lang, _ := ctx.Value(languageKey{}).(string)
	return lang
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, f *capture.Frame) ([]Region, error)

func (fn RecognizerFunc) Recognize(ctx context.Context, f *capture.Frame) ([]Region, error) {
	return fn(ctx, f)
}

type Options struct {
	// DetectOrientation enables angle inference from region corners.
	// When false every block is horizontal.
	DetectOrientation bool
}

// Detector wraps a Recognizer. It never fails: engine errors produce an
// empty result so one bad frame cannot stop the pipeline.
type Detector struct {
	rec  Recognizer
	opts Options
}

func NewDetector(rec Recognizer, opts Options) *Detector {
	return &Detector{rec: rec, opts: opts}
}

// Detect returns the text blocks in f in engine order.
func (d *Detector) Detect(ctx context.Context, f *capture.Frame) (blocks []model.TextBlock) {
	log := trace.Logger(ctx)
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.New(apperrors.DetectionFailed, fmt.Sprint(r))
			log.Error("text detection panicked", "error", err)
			blocks = []model.TextBlock{}
		}
	}()

	if f == nil || f.Image == nil {
		return []model.TextBlock{}
	}

	regions, err := d.rec.Recognize(ctx, f)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("text detection failed", "error", apperrors.Wrap(err, apperrors.DetectionFailed, "recognize"), "frame", f.Seq)
		}
		return []model.TextBlock{}
	}

	blocks = make([]model.TextBlock, 0, len(regions))
	for _, r := range regions {
		if strings.TrimSpace(r.Text) == "" || r.Box.Empty() {
			continue
		}

		angle := 0.0
		if d.opts.DetectOrientation {
			angle = Angle(r.Corners)
		}
		conf := DefaultConfidence
		if r.HasConfidence {
			conf = r.Confidence
		}
		lang := r.Language
		if lang == "" {
			lang = DefaultLanguage
		}

		blocks = append(blocks, model.TextBlock{
			Text:       r.Text,
			Box:        r.Box,
			Confidence: conf,
			Angle:      angle,
			Vertical:   model.IsVertical(angle),
			Language:   lang,
		})
		slog.Debug("detected text", "text", r.Text, "angle", angle, "vertical", model.IsVertical(angle))
	}
	return blocks
}

// Angle is the direction of the first region edge in degrees, measured from
// the horizontal. Fewer than two corners yield 0.
func Angle(corners []Point) float64 {
	if len(corners) < 2 {
		return 0
	}
	dx := corners[1].X - corners[0].X
	dy := corners[1].Y - corners[0].Y
	return math.Atan2(dy, dx) * 180 / math.Pi
}

// BoxCorners returns the four corners of an axis-aligned box, clockwise from
// the top-left.
func BoxCorners(r model.Rect) []Point {
	return []Point{
		{float64(r.Left), float64(r.Top)},
		{float64(r.Right), float64(r.Top)},
		{float64(r.Right), float64(r.Bottom)},
		{float64(r.Left), float64(r.Bottom)},
	}
}
