package scoring

import (
	"errors"
	"math"

	"github.com/bij27/hohm.studio/internal/pose"
)

// The seven posture deviation metrics, each measured as the change in a raw
// geometric quantity relative to the calibrated reference. The relative
// framing makes the tracker self-calibrating per body instead of needing
// universal absolute thresholds.
type Metric int

const (
	ShoulderDrop Metric = iota // vertical: shoulder line sinking
	NoseDrop                   // vertical: head sinking
	LateralShift               // horizontal: body center drifting sideways
	NoseLateral                // horizontal: head drifting sideways
	ForwardHead                // depth: head creeping toward the screen
	DepthChange                // depth: whole body moving closer/farther
	ShoulderTwist              // depth: shoulder line rotating
	NumMetrics
)

var metricNames = [NumMetrics]string{
	"shoulderDrop", "noseDrop", "lateralShift", "noseLateral",
	"forwardHead", "depthChange", "shoulderTwist",
}

func (m Metric) String() string { return metricNames[m] }

// Deviations holds the per-metric absolute change from the reference.
type Deviations [NumMetrics]float64

// Limits carries the per-metric tolerance (change ignored entirely) and
// normalization constant (change mapping to severity 1.0). Empirically tuned
// configuration, not algorithmic constants.
type Limits struct {
	Tolerance Deviations
	Norm      Deviations
}

// DefaultLimits returns the tuned production limits.
func DefaultLimits() Limits {
	return Limits{
		Tolerance: Deviations{0.02, 0.03, 0.03, 0.03, 0.08, 0.10, 0.05},
		Norm:      Deviations{0.05, 0.06, 0.08, 0.08, 0.15, 0.20, 0.10},
	}
}

var ErrDegenerateReference = errors.New("scoring: degenerate posture reference")

// PostureReference is the calibrated "ideal" posture, stored as the raw
// geometric quantities the deviations are measured against. Owned by one
// monitoring session; mutated in place by the adaptive baseline.
type PostureReference struct {
	ShoulderY   float64 // mean shoulder height
	NoseY       float64
	CenterX     float64 // mean x of shoulders and hips
	NoseX       float64
	ForwardHead float64 // nose z relative to shoulder midline z
	MeanZ       float64 // mean z of shoulders and hips
	Twist       float64 // left minus right shoulder z
}

// Quantities computes the raw posture quantities for a frame. Calibration
// aggregates these across frames; Deviations compares them per frame.
func Quantities(f pose.Frame) (PostureReference, error) {
	ls, rs := f[pose.LeftShoulder], f[pose.RightShoulder]
	lh, rh := f[pose.LeftHip], f[pose.RightHip]
	nose := f[pose.Nose]
	if nose.Missing() || ls.Missing() || rs.Missing() {
		return PostureReference{}, ErrDegenerateReference
	}
	if pose.Distance(ls, rs) < 0.05 {
		// Shoulder width collapsed: sideways or broken detection.
		return PostureReference{}, ErrDegenerateReference
	}

	centerX := (ls.X + rs.X) / 2
	meanZ := (ls.Z + rs.Z) / 2
	if !lh.Missing() && !rh.Missing() {
		centerX = (ls.X + rs.X + lh.X + rh.X) / 4
		meanZ = (ls.Z + rs.Z + lh.Z + rh.Z) / 4
	}
	shoulderMid := pose.Midpoint(ls, rs)

	return PostureReference{
		ShoulderY:   shoulderMid.Y(),
		NoseY:       nose.Y,
		CenterX:     centerX,
		NoseX:       nose.X,
		ForwardHead: nose.Z - (ls.Z+rs.Z)/2,
		MeanZ:       meanZ,
		Twist:       ls.Z - rs.Z,
	}, nil
}

// NewPostureReference captures the calibrated reference from an ideal frame.
func NewPostureReference(f pose.Frame) (*PostureReference, error) {
	if !f.Valid() {
		return nil, ErrDegenerateReference
	}
	q, err := Quantities(f)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Deviations measures the current frame's change in each tracked quantity
// relative to the reference.
func (r *PostureReference) Deviations(f pose.Frame) (Deviations, error) {
	var d Deviations
	if !f.Valid() {
		return d, ErrDegenerateReference
	}
	q, err := Quantities(f)
	if err != nil {
		return d, err
	}
	d[ShoulderDrop] = math.Abs(q.ShoulderY - r.ShoulderY)
	d[NoseDrop] = math.Abs(q.NoseY - r.NoseY)
	d[LateralShift] = math.Abs(q.CenterX - r.CenterX)
	d[NoseLateral] = math.Abs(q.NoseX - r.NoseX)
	d[ForwardHead] = math.Abs(q.ForwardHead - r.ForwardHead)
	d[DepthChange] = math.Abs(q.MeanZ - r.MeanZ)
	d[ShoulderTwist] = math.Abs(q.Twist - r.Twist)
	return d, nil
}

// Severity maps deviations onto a single scalar: per metric, subtract the
// tolerance, floor at zero, divide by the normalization constant; the overall
// result is the MAXIMUM across metrics, not an average. One badly-off axis
// (say, forward head) must dominate even when every other metric is fine;
// averaging would mask acute single-axis problems.
func Severity(d Deviations, lim Limits) (worst float64, metric Metric) {
	for m := Metric(0); m < NumMetrics; m++ {
		v := math.Max(0, d[m]-lim.Tolerance[m]) / lim.Norm[m]
		if v > worst {
			worst = v
			metric = m
		}
	}
	return worst, metric
}

// SeveritySmoother EMA-filters the raw severity, only folding in changes that
// exceed a small deadband so the displayed bar does not twitch on
// sub-threshold noise. This is the only place posture hysteresis lives; the
// zone classifier downstream stays pure.
type SeveritySmoother struct {
	alpha    float64
	deadband float64
	value    float64
	seeded   bool
}

func NewSeveritySmoother(alpha, deadband float64) *SeveritySmoother {
	return &SeveritySmoother{alpha: alpha, deadband: deadband}
}

// Update folds a raw severity into the smoothed value and returns it.
func (s *SeveritySmoother) Update(raw float64) float64 {
	if !s.seeded {
		s.value = raw
		s.seeded = true
		return s.value
	}
	if math.Abs(raw-s.value) <= s.deadband {
		return s.value
	}
	s.value = s.value*(1-s.alpha) + raw*s.alpha
	return s.value
}

// Value returns the current smoothed severity.
func (s *SeveritySmoother) Value() float64 { return s.value }

func (s *SeveritySmoother) Reset() { s.seeded = false; s.value = 0 }
