// Package model holds the value types that flow between pipeline stages.
// All of them are immutable once produced.
package model

import (
	"math"
	"time"
)

// Rect is an axis-aligned box in frame pixel coordinates.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Empty reports whether the box has no area.
func (r Rect) Empty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Center returns the box centre in floating point pixels.
func (r Rect) Center() (x, y float64) {
	return float64(r.Left+r.Right) / 2, float64(r.Top+r.Bottom) / 2
}

// IsVertical reports whether a text angle (degrees) reads vertically.
// Both bounds are exclusive: 45 and 135 are horizontal.
func IsVertical(angle float64) bool {
	a := math.Abs(angle)
	return a > 45 && a < 135
}

// TextBlock is one recognized text region.
type TextBlock struct {
	Text       string  `json:"text"`
	Box        Rect    `json:"box"`
	Confidence float64 `json:"confidence"`
	Angle      float64 `json:"angle"`
	Vertical   bool    `json:"vertical"`
	Language   string  `json:"language"`
}

// BubbleKind classifies a bubble by outline complexity.
type BubbleKind int

const (
	Speech BubbleKind = iota
	Thought
	Narrative
	Shout
)

func (k BubbleKind) String() string {
	switch k {
	case Thought:
		return "thought"
	case Narrative:
		return "narrative"
	case Shout:
		return "shout"
	default:
		return "speech"
	}
}

// MarshalText encodes the kind by name for JSON payloads.
func (k BubbleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// SpeechBubble is a closed outline likely to contain dialogue. Advisory only:
// bubbles are not merged with text blocks.
type SpeechBubble struct {
	Box        Rect       `json:"box"`
	Kind       BubbleKind `json:"kind"`
	Confidence float64    `json:"confidence"`
}

// TranslationResult is a text block after translation. Box is always the
// originating block's box.
type TranslationResult struct {
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	Box            Rect      `json:"box"`
	Confidence     float64   `json:"confidence"`
	Angle          float64   `json:"angle"`
	Vertical       bool      `json:"vertical"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewTranslationResult builds the result for block, keeping its geometry.
func NewTranslationResult(block TextBlock, translated, source, target string) TranslationResult {
	return TranslationResult{
		OriginalText:   block.Text,
		TranslatedText: translated,
		SourceLanguage: source,
		TargetLanguage: target,
		Box:            block.Box,
		Confidence:     block.Confidence,
		Angle:          block.Angle,
		Vertical:       block.Vertical,
		CreatedAt:      time.Now(),
	}
}
