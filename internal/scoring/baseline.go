package scoring

import "math"

// Baseline drift tuning. Drift toward sustained good behavior is faster than
// the degradation toward strain, and both are clamped to a bounded excursion
// from the calibrated original, so every drift is reversible.
const (
	driftRate       = 0.02 // per second, toward sustained good behavior
	strainRate      = 0.01 // per second, toward sustained strained behavior
	minGoodStreak   = 5    // seconds of good form before drifting
	minStrainStreak = 10   // seconds of strain before degrading
)

// Baseline slowly adapts a reference's notion of "ideal" toward what the user
// actually sustains. It reads the smoothed observation stream and writes back
// into the reference values the scorer consumes, closing a slow feedback loop
// that is independent of the per-frame path.
type Baseline struct {
	original map[string]float64
	current  map[string]float64
	maxDrift float64

	goodStreak   int
	strainStreak int
}

// NewBaseline captures the calibrated values and the maximum excursion each
// is allowed to drift from its original.
func NewBaseline(values map[string]float64, maxDrift float64) *Baseline {
	orig := make(map[string]float64, len(values))
	cur := make(map[string]float64, len(values))
	for k, v := range values {
		orig[k] = v
		cur[k] = v
	}
	return &Baseline{original: orig, current: cur, maxDrift: maxDrift}
}

// Tick feeds one second of observed values plus whether the second was spent
// in good form. Sustained good behavior pulls the reference toward the
// observation at driftRate; sustained strain pulls at the slower strainRate.
// Either way the result is clamped to maxDrift from the original.
func (b *Baseline) Tick(observed map[string]float64, goodForm bool) {
	rate := 0.0
	if goodForm {
		b.goodStreak++
		b.strainStreak = 0
		if b.goodStreak >= minGoodStreak {
			rate = driftRate
		}
	} else {
		b.strainStreak++
		b.goodStreak = 0
		if b.strainStreak >= minStrainStreak {
			rate = strainRate
		}
	}
	if rate == 0 {
		return
	}
	for k, cur := range b.current {
		obs, ok := observed[k]
		if !ok {
			continue
		}
		next := cur + (obs-cur)*rate
		orig := b.original[k]
		next = math.Max(orig-b.maxDrift, math.Min(orig+b.maxDrift, next))
		b.current[k] = next
	}
}

// Values returns the live reference values for the scorer. The returned map
// is the baseline's own state; callers must not retain it across sessions.
func (b *Baseline) Values() map[string]float64 { return b.current }

// Reset snaps the baseline back to the calibrated original.
func (b *Baseline) Reset() {
	for k, v := range b.original {
		b.current[k] = v
	}
	b.goodStreak = 0
	b.strainStreak = 0
}
