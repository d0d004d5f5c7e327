package solver

import (
	"image"

	"gocv.io/x/gocv"

	"icpquery/internal/detect"
)

// Prompt strip geometry.
const (
	glyphTop    = 11
	glyphHeight = 28
	glyphWidth  = 26
	// boxBleed widens each detected box on the right and bottom edges.
	boxBleed = 2
)

// glyphRect returns the strip region holding the glyph that starts at x.
func glyphRect(x int, bounds image.Rectangle) image.Rectangle {
	return image.Rect(x, glyphTop, x+glyphWidth, glyphTop+glyphHeight).Intersect(bounds)
}

// boxRect returns the full-image region for box, bled and clamped to bounds.
func boxRect(box detect.Box, bounds image.Rectangle) image.Rectangle {
	return image.Rect(box.X, box.Y, box.X+box.Width+boxBleed, box.Y+box.Height+boxBleed).Intersect(bounds)
}

func matBounds(m gocv.Mat) image.Rectangle {
	return image.Rect(0, 0, m.Cols(), m.Rows())
}

// cropBlob cuts r out of img and normalizes it for the scorer. An empty
// region yields ok == false.
func cropBlob(img gocv.Mat, r image.Rectangle, normalize func(gocv.Mat) gocv.Mat) (gocv.Mat, bool) {
	if r.Empty() {
		return gocv.Mat{}, false
	}
	region := img.Region(r)
	defer region.Close()
	return normalize(region), true
}
