package testsupport

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

// SolidImage returns a BGR Mat of the given size filled with c. The caller
// owns the Mat.
func SolidImage(width, height int, c color.RGBA) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		height, width, gocv.MatTypeCV8UC3,
	)
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(t testing.TB, img gocv.Mat) []byte {
	t.Helper()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out
}

// WriteTemplates writes one solid PNG per color into dir, named 00.png,
// 01.png and so on, and returns the paths in order.
func WriteTemplates(t testing.TB, dir string, width, height int, colors ...color.RGBA) []string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	paths := make([]string, 0, len(colors))
	for i, c := range colors {
		img := SolidImage(width, height, c)
		path := filepath.Join(dir, fmt.Sprintf("%02d.png", i))
		ok := gocv.IMWrite(path, img)
		img.Close()
		if !ok {
			t.Fatalf("write template %s", path)
		}
		paths = append(paths, path)
	}
	return paths
}
