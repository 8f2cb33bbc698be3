package bubble

import (
	"context"
	stderrors "errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/vision"
)

type fakeExtractor struct {
	contours []vision.Contour
	err      error
	panicMsg string
}

func (f fakeExtractor) Contours(image.Image) ([]vision.Contour, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.contours, f.err
}

func rect(x0, y0, x1, y1 int) vision.Contour {
	return vision.Contour{Points: []image.Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}, Parent: -1}
}

// polygon returns a regular n-gon of radius r centred at (cx, cy).
func polygon(n int, cx, cy, r float64) vision.Contour {
	pts := make([]image.Point, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = image.Pt(int(math.Round(cx+r*math.Cos(a))), int(math.Round(cy+r*math.Sin(a))))
	}
	return vision.Contour{Points: pts, Parent: -1}
}

func frame(w, h int) *capture.Frame {
	return capture.NewFrame(image.NewGray(image.Rect(0, 0, w, h)), time.Now())
}

func TestDetectFiltersByArea(t *testing.T) {
	tests := []struct {
		name    string
		contour vision.Contour
		want    int
	}{
		{"area 50 rejected", rect(0, 0, 10, 5), 0},
		{"60 percent of frame rejected", rect(0, 0, 60, 100), 0},
		{"exactly half accepted", rect(0, 0, 50, 100), 1},
		{"minimum area accepted", rect(0, 0, 10, 10), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(fakeExtractor{contours: []vision.Contour{tt.contour}})
			got := d.Detect(context.Background(), frame(100, 100))
			if len(got) != tt.want {
				t.Errorf("Detect() = %d bubbles, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDetectRejectsFewVertices(t *testing.T) {
	tri := vision.Contour{Points: []image.Point{{0, 0}, {40, 0}, {0, 40}}}
	d := NewDetector(fakeExtractor{contours: []vision.Contour{tri}})
	if got := d.Detect(context.Background(), frame(100, 100)); len(got) != 0 {
		t.Errorf("triangle accepted: %+v", got)
	}
}

func TestDetectKeepsDiscoveryOrder(t *testing.T) {
	d := NewDetector(fakeExtractor{contours: []vision.Contour{
		rect(300, 300, 400, 400),
		rect(0, 0, 20, 20),
		polygon(12, 200, 200, 80),
	}})

	got := d.Detect(context.Background(), frame(1000, 1000))
	if len(got) != 3 {
		t.Fatalf("Detect() = %d bubbles, want 3", len(got))
	}
	if got[0].Box != (model.Rect{Left: 300, Top: 300, Right: 401, Bottom: 401}) {
		t.Errorf("first box = %+v", got[0].Box)
	}
	if got[1].Box.Left != 0 || got[1].Kind != model.Speech {
		t.Errorf("second = %+v", got[1])
	}
	if got[2].Kind != model.Thought {
		t.Errorf("12-gon kind = %v, want thought", got[2].Kind)
	}
}

func TestDetectFailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name string
		ext  fakeExtractor
	}{
		{"error", fakeExtractor{err: stderrors.New("boom")}},
		{"panic", fakeExtractor{panicMsg: "bad mat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDetector(tt.ext).Detect(context.Background(), frame(10, 10))
			if got == nil || len(got) != 0 {
				t.Errorf("Detect() = %v, want empty slice", got)
			}
		})
	}
	if got := NewDetector(nil).Detect(context.Background(), nil); len(got) != 0 {
		t.Errorf("nil frame = %v", got)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		vertices int
		want     model.BubbleKind
	}{
		{4, model.Speech},
		{5, model.Narrative},
		{6, model.Narrative},
		{7, model.Shout},
		{8, model.Shout},
		{9, model.Thought},
		{20, model.Thought},
	}
	for _, tt := range tests {
		if got := KindOf(tt.vertices); got != tt.want {
			t.Errorf("KindOf(%d) = %v, want %v", tt.vertices, got, tt.want)
		}
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		area     float64
		vertices int
		want     float64
	}{
		{40000, 4, 0.7},
		{200000, 8, 1},
		{100000, 9, 0.85},
		{0, 3, 0.35},
	}
	for _, tt := range tests {
		if got := Confidence(tt.area, tt.vertices); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Confidence(%v, %d) = %v, want %v", tt.area, tt.vertices, got, tt.want)
		}
	}
}

func TestVisionExtractorShapes(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 240, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 240; x++ {
			dx, dy := float64(x-120)/90, float64(y-100)/60
			if dx*dx+dy*dy > 1 {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	f := capture.NewFrame(img, time.Now())

	got := NewDetector(VisionExtractor{}).Detect(context.Background(), f)
	if len(got) == 0 {
		t.Fatal("no bubbles found around the ellipse")
	}
	b := got[0]
	if b.Kind != model.Thought {
		t.Errorf("kind = %v, want thought", b.Kind)
	}
	if b.Box.Left < 28 || b.Box.Left > 32 || b.Box.Right < 209 || b.Box.Right > 213 {
		t.Errorf("box = %+v", b.Box)
	}
}

func TestNewExtractor(t *testing.T) {
	if ext, err := NewExtractor("vision"); err != nil || ext == nil {
		t.Errorf("vision backend: %v", err)
	}
	if _, err := NewExtractor("hough"); err == nil {
		t.Error("unknown backend should fail")
	}
}
