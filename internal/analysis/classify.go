package analysis

// Classification labels a move by the evaluation swing it caused.
type Classification string

const (
	Blunder    Classification = "BLUNDER"
	Mistake    Classification = "MISTAKE"
	Inaccuracy Classification = "INACCURACY"
	Good       Classification = "GOOD"
)

// Swing thresholds in centipawns. Each bound is exclusive.
const (
	BlunderThreshold    = 180
	MistakeThreshold    = 90
	InaccuracyThreshold = 45
)

// Classify maps an absolute centipawn swing to a label.
func Classify(delta int) Classification {
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta > BlunderThreshold:
		return Blunder
	case delta > MistakeThreshold:
		return Mistake
	case delta > InaccuracyThreshold:
		return Inaccuracy
	}
	return Good
}
