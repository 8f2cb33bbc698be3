//go:build gocv

package bubble

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/GriffinCanCode/screen-translator/internal/vision"
)

// GocvExtractor runs the contour extraction through OpenCV.
type GocvExtractor struct{}

func NewGocvExtractor() (Extractor, error) {
	return GocvExtractor{}, nil
}

func (GocvExtractor) Contours(img image.Image) ([]vision.Contour, error) {
	src, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBAToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blurred, &binary, 100, 255, gocv.ThresholdBinaryInv)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, 50, 150)

	hierarchy := gocv.NewMat()
	defer hierarchy.Close()
	pvs := gocv.FindContoursWithParams(edges, &hierarchy, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer pvs.Close()

	out := make([]vision.Contour, 0, pvs.Size())
	for i := 0; i < pvs.Size(); i++ {
		// hierarchy rows are [next, previous, first child, parent]
		parent := -1
		if !hierarchy.Empty() {
			parent = int(hierarchy.GetVeciAt(0, i)[3])
		}
		out = append(out, vision.Contour{
			Points: pvs.At(i).ToPoints(),
			Parent: parent,
		})
	}
	for i := range out {
		depth := 0
		for p := out[i].Parent; p >= 0 && p < len(out) && depth <= len(out); p = out[p].Parent {
			depth++
		}
		out[i].Hole = depth%2 == 1
	}
	return out, nil
}
