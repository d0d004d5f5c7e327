package background

import (
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"

	"icpquery/internal/services"
)

// Result is the outcome of matching a challenge image.
type Result struct {
	// Template is the index of the nearest background in the store.
	Template int
	Distance float64
	// Diff is the inverted absolute difference. The caller owns it and must
	// Close it.
	Diff gocv.Mat
}

// Matcher finds the stock background behind a challenge image.
type Matcher struct {
	store *Store
}

// NewMatcher returns a matcher over store.
func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Nearest returns the index of the template whose features have the smallest
// Euclidean distance to img. Ties resolve to the earliest template.
func (m *Matcher) Nearest(img gocv.Mat) (int, float64, error) {
	if m.store.Len() == 0 {
		return 0, 0, services.Wrap(services.ErrTemplateStoreEmpty, "background", "nearest", "no templates loaded", nil)
	}
	features, err := ExtractFeatures(img, m.store.canvas)
	if err != nil {
		return 0, 0, err
	}
	best := 0
	bestDistance := floats.Distance(features, m.store.templates[0].Features, 2)
	for i := 1; i < len(m.store.templates); i++ {
		d := floats.Distance(features, m.store.templates[i].Features, 2)
		if d < bestDistance {
			best, bestDistance = i, d
		}
	}
	return best, bestDistance, nil
}

// Difference matches img and returns the inverted absolute difference against
// the selected template.
func (m *Matcher) Difference(img gocv.Mat) (Result, error) {
	idx, distance, err := m.Nearest(img)
	if err != nil {
		return Result{}, err
	}
	tpl := m.store.templates[idx].Image
	if tpl.Rows() != img.Rows() || tpl.Cols() != img.Cols() || tpl.Channels() != img.Channels() {
		return Result{}, services.Wrap(services.ErrShapeMismatch, "background", "difference", m.store.templates[idx].Name, nil)
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(img, tpl, &diff)

	inverted := gocv.NewMat()
	gocv.BitwiseNot(diff, &inverted)
	return Result{Template: idx, Distance: distance, Diff: inverted}, nil
}
