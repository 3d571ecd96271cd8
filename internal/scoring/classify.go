package scoring

// Tier is the pose-hold quality bucket. Only Perfect and Good count as good
// form for timer gating.
type Tier int

const (
	NeedsWork Tier = iota
	Okay
	Good
	Perfect

	NumTiers = int(Perfect) + 1
)

var tierNames = [...]string{"needsWork", "okay", "good", "perfect"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return "unknown"
	}
	return tierNames[t]
}

// GoodForm reports whether the tier gates the hold timer forward.
func (t Tier) GoodForm() bool { return t >= Good }

// Fixed score bands for pose-hold matching.
const (
	perfectScore = 65.0
	goodScore    = 45.0
	okayScore    = 25.0
)

// ClassifyTier maps a match score onto a tier. Pure given the current score:
// all hysteresis lives in the upstream smoothing, never duplicated here.
func ClassifyTier(score float64) Tier {
	switch {
	case score >= perfectScore:
		return Perfect
	case score >= goodScore:
		return Good
	case score >= okayScore:
		return Okay
	default:
		return NeedsWork
	}
}

// Zone is the posture-monitoring quality bucket.
type Zone int

const (
	ZoneGood Zone = iota
	ZoneWarning
	ZoneBad
)

var zoneNames = [...]string{"good", "warning", "bad"}

func (z Zone) String() string {
	if z < 0 || int(z) >= len(zoneNames) {
		return "unknown"
	}
	return zoneNames[z]
}

// Deviation bands for posture monitoring, applied to the smoothed severity.
const (
	goodSeverity    = 0.8
	warningSeverity = 1.5
)

// ClassifyZone maps a smoothed severity onto a zone. Pure, like ClassifyTier.
func ClassifyZone(severity float64) Zone {
	switch {
	case severity < goodSeverity:
		return ZoneGood
	case severity < warningSeverity:
		return ZoneWarning
	default:
		return ZoneBad
	}
}
