package session

import "github.com/bij27/hohm.studio/internal/scoring"

// Grade weights per form tier. A session held entirely at the top tier
// grades 100, entirely at the bottom tier grades 40.
var tierWeights = [scoring.NumTiers]float64{
	scoring.NeedsWork: 40,
	scoring.Okay:      70,
	scoring.Good:      85,
	scoring.Perfect:   100,
}

// FormLedger accumulates hold time per form tier in whole seconds.
// Fractional tick remainders carry forward so no time is lost to rounding;
// the published counters only ever advance by whole seconds.
type FormLedger struct {
	seconds   [scoring.NumTiers]int
	remainder float64
}

// Add credits dt seconds of hold time to the given tier and returns the
// number of whole seconds that crossed the boundary on this call.
func (l *FormLedger) Add(tier scoring.Tier, dt float64) int {
	if dt <= 0 {
		return 0
	}
	l.remainder += dt
	whole := int(l.remainder)
	if whole > 0 {
		l.remainder -= float64(whole)
		l.seconds[tier] += whole
	}
	return whole
}

// Seconds returns the whole seconds accumulated in tier.
func (l *FormLedger) Seconds(tier scoring.Tier) int { return l.seconds[tier] }

// Total returns the whole seconds accumulated across all tiers.
func (l *FormLedger) Total() int {
	t := 0
	for _, s := range l.seconds {
		t += s
	}
	return t
}

// Grade is the time-weighted form grade in [40, 100], or 0 when no hold
// time was recorded at all.
func (l *FormLedger) Grade() float64 {
	total := l.Total()
	if total == 0 {
		return 0
	}
	sum := 0.0
	for tier, secs := range l.seconds {
		sum += tierWeights[tier] * float64(secs)
	}
	return sum / float64(total)
}

var letterBands = []struct {
	min    float64
	letter string
}{
	{95, "A+"}, {90, "A"}, {85, "A-"}, {80, "B+"},
	{75, "B"}, {70, "B-"}, {65, "C+"}, {60, "C"},
}

// LetterGrade maps a numeric grade onto a report-card letter.
func LetterGrade(grade float64) string {
	for _, b := range letterBands {
		if grade >= b.min {
			return b.letter
		}
	}
	return "F"
}
