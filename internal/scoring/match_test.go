package scoring

import (
	"math"
	"testing"
)

func refAngles(v float64) map[string]float64 {
	return map[string]float64{
		"left_elbow_angle":  v,
		"right_elbow_angle": v,
		"left_knee_angle":   v,
		"right_knee_angle":  v,
	}
}

func TestNewReferenceRejectsEmpty(t *testing.T) {
	if _, err := NewReference(); err == nil {
		t.Errorf("reference with no targets must be rejected")
	}
	if _, err := NewReference(Target{Name: "a"}); err == nil {
		t.Errorf("target with no angles must be rejected")
	}
}

func TestScorePerfectMatch(t *testing.T) {
	ref, err := NewReference(Target{Name: "classic", Angles: refAngles(120)})
	if err != nil {
		t.Fatalf("NewReference: %v", err)
	}
	score, _ := ref.Score(refAngles(120))
	if score != 100 {
		t.Errorf("zero angle difference must score 100, got %.2f", score)
	}
}

func TestScoreLeniency(t *testing.T) {
	ref, _ := NewReference(Target{Name: "classic", Angles: refAngles(100)})
	score, _ := ref.Score(refAngles(120)) // 20 degree average error
	want := 100 - 20.0/Leniency*100        // ~86.7
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("20 degree error: got %.2f, want %.2f", score, want)
	}
}

func TestScoreMonotonicInError(t *testing.T) {
	ref, _ := NewReference(Target{Name: "classic", Angles: refAngles(90)})
	prev := 101.0
	for diff := 0.0; diff <= 150; diff += 5 {
		score, _ := ref.Score(refAngles(90 + diff))
		if score > prev {
			t.Fatalf("decreasing error must never decrease score: diff=%v score=%v prev=%v", diff, score, prev)
		}
		prev = score
	}
}

func TestScoreFoldsAcross180(t *testing.T) {
	ref, _ := NewReference(Target{Name: "classic", Angles: map[string]float64{"left_elbow_angle": 350}})
	score, _ := ref.Score(map[string]float64{"left_elbow_angle": 10})
	// Shortest angular distance is 20, not 340.
	want := 100 - 20.0/Leniency*100
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("folding: got %.2f, want %.2f", score, want)
	}
}

func TestScoreFloorsAtZero(t *testing.T) {
	ref, _ := NewReference(Target{Name: "classic", Angles: refAngles(0)})
	score, _ := ref.Score(refAngles(180))
	if score != 0 {
		t.Errorf("180 degree error with 150 leniency must floor at 0, got %.2f", score)
	}
}

func TestScoreSkipsUndefinedAngles(t *testing.T) {
	ref, _ := NewReference(Target{Name: "classic", Angles: map[string]float64{
		"left_elbow_angle": 90,
		"left_knee_angle":  170,
	}})
	// Observed set has extra angles the reference does not define, plus is
	// missing one the reference does define; only the overlap counts.
	score, _ := ref.Score(map[string]float64{
		"left_elbow_angle":  90,
		"right_elbow_angle": 10,
	})
	if score != 100 {
		t.Errorf("only overlapping defined angles should be averaged, got %.2f", score)
	}
}

func TestScorePicksBestVariation(t *testing.T) {
	ref, _ := NewReference(
		Target{Name: "arms-up", Angles: refAngles(170)},
		Target{Name: "arms-out", Angles: refAngles(90)},
	)
	score, best := ref.Score(refAngles(92))
	if best != 1 {
		t.Errorf("closest variation must win, got index %d", best)
	}
	if score < 98 {
		t.Errorf("best-variation score too low: %.2f", score)
	}
}

func TestVariationTallyFirstToMaxWins(t *testing.T) {
	tally := NewVariationTally(2)
	tally.Record(0)
	tally.Record(1)
	if tally.Label() != 0 {
		t.Errorf("on a tie the first variation to reach the max keeps the label")
	}
	tally.Record(1)
	if tally.Label() != 1 {
		t.Errorf("new strict maximum must take the label")
	}
	tally.Record(0)
	if tally.Label() != 1 {
		t.Errorf("re-tying must not steal the label back")
	}
}
