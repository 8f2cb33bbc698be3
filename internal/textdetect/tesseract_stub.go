//go:build !tesseract

package textdetect

import (
	"context"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
)

// Tesseract is unavailable in this build.
type Tesseract struct{}

func NewTesseract(string) (*Tesseract, error) {
	return nil, ErrTesseractUnavailable
}

func (*Tesseract) Recognize(context.Context, *capture.Frame) ([]Region, error) {
	return nil, ErrTesseractUnavailable
}

func (*Tesseract) Close() error { return nil }
