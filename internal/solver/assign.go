package solver

// MaxAssignments is the number of click points a challenge asks for.
const MaxAssignments = 4

// ScoreFunc reports how likely glyph g and box b show the same character.
type ScoreFunc func(glyph, box int) (float64, error)

// Assign pairs glyphs with boxes greedily. Glyphs are visited in order; for
// each one the unassigned boxes are scanned in detector order and the first
// whose score reaches threshold is taken and removed from consideration.
// Scanning stops once MaxAssignments pairs exist. The result lists the
// chosen box index for every matched glyph, in glyph order; glyphs with no
// match are skipped.
func Assign(glyphs, boxes int, threshold float64, score ScoreFunc) ([]int, error) {
	remaining := make([]int, boxes)
	for i := range remaining {
		remaining[i] = i
	}
	assigned := make([]int, 0, MaxAssignments)
	for g := 0; g < glyphs; g++ {
		if len(assigned) == MaxAssignments {
			break
		}
		for pos, b := range remaining {
			s, err := score(g, b)
			if err != nil {
				return nil, err
			}
			if s >= threshold {
				assigned = append(assigned, b)
				remaining = append(remaining[:pos], remaining[pos+1:]...)
				break
			}
		}
	}
	return assigned, nil
}
