package similarity

import (
	"fmt"
	"image"
	"math"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"icpquery/internal/services"
)

// InputSize is the square edge length the network expects.
const InputSize = 105

const (
	inputCandidate = "input"
	inputGlyph     = "input.53"
)

// Scorer returns the probability that two normalized crops match.
type Scorer interface {
	Score(candidate, glyph gocv.Mat) (float64, error)
}

// Normalize converts a BGR crop into a 1x3x105x105 float blob in RGB order
// with values scaled to [0, 1]. The caller owns the returned Mat.
func Normalize(crop gocv.Mat) gocv.Mat {
	return gocv.BlobFromImage(crop, 1.0/255.0, image.Pt(InputSize, InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
}

// Sigmoid maps a logit to (0, 1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// ONNXScorer evaluates the siamese model. The underlying network is not safe
// for concurrent use, so calls are serialized.
type ONNXScorer struct {
	mu  sync.Mutex
	net gocv.Net
}

// LoadONNX reads the model at path and selects the execution backend
// ("cpu" or "cuda").
func LoadONNX(path, backend string) (*ONNXScorer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "similarity", "load model", path, err)
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, services.Wrap(services.ErrConfiguration, "similarity", "load model", path, nil)
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "cuda":
		_ = net.SetPreferableBackend(gocv.NetBackendCUDA)
		_ = net.SetPreferableTarget(gocv.NetTargetCUDA)
	default:
		_ = net.SetPreferableBackend(gocv.NetBackendDefault)
		_ = net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	return &ONNXScorer{net: net}, nil
}

// Score runs the network on two blobs produced by Normalize.
func (s *ONNXScorer) Score(candidate, glyph gocv.Mat) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.net.SetInput(candidate, inputCandidate)
	s.net.SetInput(glyph, inputGlyph)
	out := s.net.Forward("")
	defer out.Close()
	if out.Empty() || out.Total() < 1 {
		return 0, fmt.Errorf("similarity: model produced no output")
	}
	return Sigmoid(float64(out.GetFloatAt(0, 0))), nil
}

// Close releases the network.
func (s *ONNXScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}

// Func adapts a function to the Scorer interface.
type Func func(candidate, glyph gocv.Mat) (float64, error)

func (f Func) Score(candidate, glyph gocv.Mat) (float64, error) { return f(candidate, glyph) }
