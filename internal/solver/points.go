package solver

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"icpquery/internal/detect"
	"icpquery/internal/services"
)

// clickOffset moves each point from a box corner into the glyph body.
const clickOffset = 20

// Point is one click position in full-image pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ClickPoints maps assigned boxes to click positions.
func ClickPoints(boxes []detect.Box, assigned []int) []Point {
	points := make([]Point, 0, len(assigned))
	for _, idx := range assigned {
		box := boxes[idx]
		points = append(points, Point{X: box.X + clickOffset, Y: box.Y + clickOffset})
	}
	return points
}

// EncryptPoints serializes points as compact JSON, pads with PKCS#7, encrypts
// each block with AES in ECB mode keyed by secret and returns base64.
func EncryptPoints(points []Point, secret string) (string, error) {
	if points == nil {
		points = []Point{}
	}
	plain, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("encode points: %w", err)
	}
	block, err := aes.NewCipher([]byte(secret))
	if err != nil {
		return "", services.Wrap(services.ErrRemote, "solver", "encrypt points", "unusable secret key", err)
	}
	size := block.BlockSize()
	padded := pkcs7Pad(plain, size)
	out := make([]byte, len(padded))
	for start := 0; start < len(padded); start += size {
		block.Encrypt(out[start:start+size], padded[start:start+size])
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}
