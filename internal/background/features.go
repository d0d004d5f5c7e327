package background

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"icpquery/internal/services"
)

const (
	featureWidth  = 50
	featureHeight = 20
)

// Canvas is the expected size of a challenge image.
type Canvas struct {
	Width  int
	Height int
}

// Matches reports whether img has exactly the canvas dimensions.
func (c Canvas) Matches(img gocv.Mat) bool {
	return img.Cols() == c.Width && img.Rows() == c.Height
}

// ExtractFeatures reduces img to a blurred 50x20 thumbnail flattened into a
// vector. Images that are not canvas-sized are rejected.
func ExtractFeatures(img gocv.Mat, canvas Canvas) ([]float64, error) {
	if img.Empty() || !canvas.Matches(img) {
		return nil, services.Wrap(
			services.ErrDimensionMismatch,
			"background",
			"extract features",
			dimensionDetail(img, canvas),
			nil,
		)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(img, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	thumb := gocv.NewMat()
	defer thumb.Close()
	gocv.Resize(blurred, &thumb, image.Pt(featureWidth, featureHeight), 0, 0, gocv.InterpolationArea)

	raw := thumb.ToBytes()
	features := make([]float64, len(raw))
	for i, b := range raw {
		features[i] = float64(b)
	}
	return features, nil
}

func dimensionDetail(img gocv.Mat, canvas Canvas) string {
	if img.Empty() {
		return "image is empty"
	}
	return fmt.Sprintf("got %dx%d, want %dx%d", img.Cols(), img.Rows(), canvas.Width, canvas.Height)
}
