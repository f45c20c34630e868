package scoring

import "math"

// Tier labels shown next to a score award so clients can display the speed bonus.
const (
	TierFastest  = "FASTEST"
	TierFast     = "FAST"
	TierSteady   = "STEADY"
	TierBuzzer   = "BUZZER_BEATER"
	TierNoPoints = "NO_POINTS"
)

// Award converts correctness and the elapsed fraction of the round's time
// budget into a point award. The bucketed 25/50/75% table is an observable
// contract; do not replace it with a continuous decay.
func Award(basePoints int, correct bool, timeRatio float64) int {
	if !correct {
		return 0
	}

	timeRatio = clamp(timeRatio)

	switch {
	case timeRatio <= 0.25:
		return basePoints
	case timeRatio <= 0.50:
		return int(math.Round(float64(basePoints) * 0.75))
	case timeRatio <= 0.75:
		return int(math.Round(float64(basePoints) * 0.50))
	default:
		return int(math.Round(float64(basePoints) * 0.25))
	}
}

// TierLabel returns the display label for the tier a correct answer landed in.
func TierLabel(correct bool, timeRatio float64) string {
	if !correct {
		return TierNoPoints
	}

	timeRatio = clamp(timeRatio)

	switch {
	case timeRatio <= 0.25:
		return TierFastest
	case timeRatio <= 0.50:
		return TierFast
	case timeRatio <= 0.75:
		return TierSteady
	default:
		return TierBuzzer
	}
}

// clamp bounds the ratio to [0, 1], defending against clock-estimate overshoot.
func clamp(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
