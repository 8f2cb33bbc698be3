package overlay

import (
	"github.com/GriffinCanCode/screen-translator/internal/model"
)

const (
	Padding      = 8.0
	CornerRadius = 6.0
	LineSpacing  = 1.1
	BorderWidth  = 2.0
)

// Measurer wraps and measures text in the current font. *gg.Context
// satisfies it.
type Measurer interface {
	WordWrap(s string, width float64) []string
	FontHeight() float64
}

// Label is the painted geometry of one translation.
type Label struct {
	Text  string
	Lines []string

	// Box is the source text's bounding box; lines are centred across its
	// width starting at its top.
	Box model.Rect

	// Background rectangle, padded around the wrapped text.
	BgX, BgY, BgW, BgH float64

	TextHeight float64
	LineHeight float64

	// Angle in degrees applied about (CX, CY).
	Angle  float64
	CX, CY float64
}

// Layout computes a label for r. It reports false for results with nothing to
// draw.
func Layout(r model.TranslationResult, m Measurer) (Label, bool) {
	if r.TranslatedText == "" || r.Box.Empty() {
		return Label{}, false
	}

	width := float64(r.Box.Width())
	lines := m.WordWrap(r.TranslatedText, width)
	if len(lines) == 0 {
		return Label{}, false
	}
	fh := m.FontHeight()
	textHeight := float64(len(lines))*fh*LineSpacing - (LineSpacing-1)*fh

	angle := 0.0
	if r.Vertical {
		angle = r.Angle
	}
	cx, cy := r.Box.Center()

	left, top, right := float64(r.Box.Left), float64(r.Box.Top), float64(r.Box.Right)
	return Label{
		Text:       r.TranslatedText,
		Lines:      lines,
		Box:        r.Box,
		BgX:        left - Padding,
		BgY:        top - Padding,
		BgW:        right - left + 2*Padding,
		BgH:        textHeight + 2*Padding,
		TextHeight: textHeight,
		LineHeight: fh * LineSpacing,
		Angle:      angle,
		CX:         cx,
		CY:         cy,
	}, true
}
