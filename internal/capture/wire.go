package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// WireFrame is the msgpack message remote capture clients stream to the
// server, one frame per binary WebSocket message.
type WireFrame struct {
	Seq       uint64 `msgpack:"seq"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Format    string `msgpack:"format"`
	Timestamp int64  `msgpack:"timestamp"` // unix milliseconds
	TraceID   string `msgpack:"trace_id,omitempty"`
	Data      []byte `msgpack:"data"`
}

// DecodeWireFrame unmarshals and decodes one message.
func DecodeWireFrame(msg []byte) (*Frame, error) {
	var w WireFrame
	if err := msgpack.Unmarshal(msg, &w); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return w.Frame()
}

// EncodeWireFrame is the client side of DecodeWireFrame.
func EncodeWireFrame(w WireFrame) ([]byte, error) {
	return msgpack.Marshal(&w)
}

// Frame converts the raw payload into an image.
func (w WireFrame) Frame() (*Frame, error) {
	format, ok := ParsePixelFormat(w.Format)
	if !ok {
		return nil, fmt.Errorf("unknown pixel format %q", w.Format)
	}

	img, err := decodePixels(format, w.Width, w.Height, w.Data)
	if err != nil {
		return nil, err
	}

	ts := time.Now()
	if w.Timestamp > 0 {
		ts = time.UnixMilli(w.Timestamp)
	}
	f := NewFrame(img, ts)
	f.Seq = w.Seq
	f.Format = format
	f.TraceID = w.TraceID
	return f, nil
}

func decodePixels(format PixelFormat, width, height int, data []byte) (image.Image, error) {
	if format == Encoded {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return img, nil
	}

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	bpp := map[PixelFormat]int{RGBA8888: 4, RGB565: 2, Gray8: 1}[format]
	if want := width * height * bpp; len(data) != want {
		return nil, fmt.Errorf("%s frame %dx%d needs %d bytes, got %d", format, width, height, want, len(data))
	}

	rect := image.Rect(0, 0, width, height)
	switch format {
	case Gray8:
		img := image.NewGray(rect)
		copy(img.Pix, data)
		return img, nil
	case RGB565:
		img := image.NewRGBA(rect)
		for i := 0; i < width*height; i++ {
			v := uint16(data[2*i]) | uint16(data[2*i+1])<<8 // little endian
			r := uint8(v>>11) & 0x1f
			g := uint8(v>>5) & 0x3f
			b := uint8(v) & 0x1f
			img.Set(i%width, i/width, color.RGBA{R: r<<3 | r>>2, G: g<<2 | g>>4, B: b<<3 | b>>2, A: 0xff})
		}
		return img, nil
	default:
		img := image.NewRGBA(rect)
		copy(img.Pix, data)
		return img, nil
	}
}
