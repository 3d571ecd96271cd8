// Package scoring reduces extracted pose features to a single comparable
// number and classifies it into discrete quality tiers.
package scoring

import (
	"errors"
	"math"

	"github.com/bij27/hohm.studio/internal/pose"
)

// Leniency is the average angle error (degrees) that maps to a score of 0.
// Deliberately generous so a 20 degree average error still scores ~87%,
// keeping sessions usable across flexibility levels. Tuned, not derived.
const Leniency = 150.0

var ErrNoAngles = errors.New("scoring: reference defines no angles")

// Target is one acceptable body configuration: its reference angles plus the
// landmark frame they were computed from (used for transition overlays).
type Target struct {
	Name      string
	Angles    map[string]float64
	Landmarks pose.Frame
}

// Reference is the body configuration a user's frame is compared against.
// A pose with acceptable variations carries one Target per variation; a
// plain pose is the degenerate single-element case and flows through the
// same code path.
type Reference struct {
	Targets []Target
}

// NewReference builds a reference, rejecting configurations that could never
// produce a score.
func NewReference(targets ...Target) (*Reference, error) {
	if len(targets) == 0 {
		return nil, ErrNoAngles
	}
	for _, t := range targets {
		if len(t.Angles) == 0 {
			return nil, ErrNoAngles
		}
	}
	return &Reference{Targets: targets}, nil
}

// foldDiff reduces an angle difference to the shortest angular distance.
func foldDiff(d float64) float64 {
	d = math.Abs(d)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// matchOne averages folded angle differences across the reference's defined
// angles and maps the result onto [0,100]. Angles absent from the observed
// set are skipped.
func matchOne(target Target, observed map[string]float64) float64 {
	sum := 0.0
	n := 0
	for name, ref := range target.Angles {
		got, ok := observed[name]
		if !ok {
			continue
		}
		sum += foldDiff(got - ref)
		n++
	}
	if n == 0 {
		return 0
	}
	avg := sum / float64(n)
	return math.Max(0, 100-avg/Leniency*100)
}

// Score compares observed joint angles against every target and returns the
// best match percentage with the winning target index.
func (r *Reference) Score(observed map[string]float64) (score float64, best int) {
	for i, t := range r.Targets {
		if s := matchOne(t, observed); s > score || i == 0 {
			score = s
			best = i
		}
	}
	return score, best
}

// VariationTally tracks, over a held pose, which variation was most often the
// best match. Ties break toward whichever variation first reached the current
// maximum count, so the session-long label is stable.
type VariationTally struct {
	counts []int
	label  int
	max    int
}

func NewVariationTally(n int) *VariationTally {
	return &VariationTally{counts: make([]int, n)}
}

// Record tallies one frame's best-matching variation.
func (t *VariationTally) Record(best int) {
	if best < 0 || best >= len(t.counts) {
		return
	}
	t.counts[best]++
	if t.counts[best] > t.max {
		t.max = t.counts[best]
		t.label = best
	}
}

// Label returns the index of the variation the user actually performed.
func (t *VariationTally) Label() int {
	return t.label
}
