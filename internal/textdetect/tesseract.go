//go:build tesseract

package textdetect

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	"github.com/GriffinCanCode/screen-translator/internal/model"
)

// Tesseract recognizes text lines with a local Tesseract engine. The
// underlying client is not safe for concurrent use, so calls are serialized.
type Tesseract struct {
	mu       sync.Mutex
	client   *gosseract.Client
	language string
	current  string
}

// NewTesseract creates a recognizer for the given Tesseract language ("eng").
func NewTesseract(language string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(strings.Split(language, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	return &Tesseract{client: client, language: language, current: language}, nil
}

func (t *Tesseract) Recognize(ctx context.Context, f *capture.Frame) ([]Region, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, f.Image); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang := LanguageFrom(ctx)
	if lang == "" {
		lang = t.language
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if lang != t.current {
		if err := t.client.SetLanguage(strings.Split(lang, "+")...); err != nil {
			return nil, fmt.Errorf("set OCR language %q: %w", lang, err)
		}
		t.current = lang
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set OCR image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("get bounding boxes: %w", err)
	}

	regions := make([]Region, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		box := model.Rect{Left: b.Box.Min.X, Top: b.Box.Min.Y, Right: b.Box.Max.X, Bottom: b.Box.Max.Y}
		regions = append(regions, Region{
			Text:          text,
			Box:           box,
			Corners:       BoxCorners(box),
			Confidence:    b.Confidence / 100,
			HasConfidence: b.Confidence > 0,
		})
	}
	return regions, nil
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
