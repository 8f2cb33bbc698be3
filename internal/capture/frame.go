// Package capture supplies screen frames to the pipeline at a capped rate.
package capture

import (
	"image"
	"time"
)

// PixelFormat is the layout a provider captures in.
type PixelFormat int

const (
	RGBA8888 PixelFormat = iota
	RGB565
	Gray8
	Encoded // PNG or JPEG bytes
)

func (f PixelFormat) String() string {
	switch f {
	case RGB565:
		return "rgb565"
	case Gray8:
		return "gray8"
	case Encoded:
		return "encoded"
	default:
		return "rgba8888"
	}
}

// ParsePixelFormat accepts the names produced by String.
func ParsePixelFormat(s string) (PixelFormat, bool) {
	switch s {
	case "rgba8888", "rgba", "":
		return RGBA8888, true
	case "rgb565":
		return RGB565, true
	case "gray8", "gray":
		return Gray8, true
	case "encoded", "png", "jpeg", "jpg":
		return Encoded, true
	default:
		return RGBA8888, false
	}
}

// Frame is one captured screen image. It is never mutated after a provider
// hands it to a Source.
type Frame struct {
	Seq       uint64
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp time.Time
	Image     image.Image
	TraceID   string
}

// NewFrame wraps img, taking its dimensions from the image bounds.
func NewFrame(img image.Image, ts time.Time) *Frame {
	b := img.Bounds()
	return &Frame{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    RGBA8888,
		Timestamp: ts,
		Image:     img,
	}
}

// Area returns the frame area in pixels.
func (f *Frame) Area() int {
	return f.Width * f.Height
}
