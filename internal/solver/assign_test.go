package solver_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"icpquery/internal/solver"
)

func table(scores [][]float64) solver.ScoreFunc {
	return func(g, b int) (float64, error) { return scores[g][b], nil }
}

func TestAssignTakesFirstBoxAboveThreshold(t *testing.T) {
	scores := [][]float64{
		{0.1, 0.8, 0.9, 0.0, 0.0},
		{0.1, 0.95, 0.2, 0.0, 0.0},
		{0.0, 0.0, 0.0, 0.71, 0.0},
		{0.0, 0.0, 0.0, 0.0, 0.7},
	}
	got, err := solver.Assign(4, 5, 0.7, table(scores))
	require.NoError(t, err)
	// Glyph 1 prefers box 1 but glyph 0 already took it.
	assert.Equal(t, []int{1, 3, 4}, got)
}

func TestAssignSkipsTakenBoxes(t *testing.T) {
	scores := [][]float64{
		{0.9, 0.9, 0, 0, 0},
		{0.9, 0.9, 0, 0, 0},
		{0, 0, 0.9, 0, 0},
		{0, 0, 0, 0.9, 0},
	}
	got, err := solver.Assign(4, 5, 0.7, table(scores))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestAssignStopsAtMaxAssignments(t *testing.T) {
	calls := 0
	score := func(g, b int) (float64, error) {
		calls++
		return 1, nil
	}
	got, err := solver.Assign(6, 6, 0.7, score)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
	assert.Equal(t, 4, calls)
}

func TestAssignPropagatesScoreError(t *testing.T) {
	boom := errors.New("inference failed")
	_, err := solver.Assign(4, 5, 0.7, func(int, int) (float64, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
}

func TestAssignProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		glyphs := rapid.IntRange(0, 6).Draw(t, "glyphs")
		boxes := rapid.IntRange(0, 7).Draw(t, "boxes")
		threshold := rapid.Float64Range(0, 1).Draw(t, "threshold")
		scores := make([][]float64, glyphs)
		for g := range scores {
			scores[g] = rapid.SliceOfN(rapid.Float64Range(0, 1), boxes, boxes).Draw(t, "row")
		}

		got, err := solver.Assign(glyphs, boxes, threshold, table(scores))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) > solver.MaxAssignments || len(got) > glyphs || len(got) > boxes {
			t.Fatalf("too many assignments: %v", got)
		}
		seen := make(map[int]bool, len(got))
		for _, b := range got {
			if b < 0 || b >= boxes {
				t.Fatalf("box %d out of range", b)
			}
			if seen[b] {
				t.Fatalf("box %d assigned twice: %v", b, got)
			}
			seen[b] = true
		}

		// Replaying the greedy scan must give the same answer.
		taken := make(map[int]bool)
		var want []int
		for g := 0; g < glyphs && len(want) < solver.MaxAssignments; g++ {
			for b := 0; b < boxes; b++ {
				if !taken[b] && scores[g][b] >= threshold {
					taken[b] = true
					want = append(want, b)
					break
				}
			}
		}
		if len(want) != len(got) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})
}
