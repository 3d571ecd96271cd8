package pose

// Smoothing factors for the two display paths. The skeleton overlay follows
// the user closely; the target overlay is damped harder so it stays steady
// even when the primary skeleton jitters.
const (
	DisplayAlpha = 0.25
	OverlayAlpha = 0.15
)

// Smoother removes per-frame jitter with an exponential moving average over
// consecutive keypoint frames. It owns exactly one SmoothedFrame; Reset
// discards it so the next raw frame reseeds the state.
type Smoother struct {
	alpha  float64
	cur    Frame
	seeded bool
}

func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Reset discards the smoothed state. Call whenever the active reference
// changes (new held pose, recalibration) so stale motion is not carried into
// the new target.
func (s *Smoother) Reset() {
	s.seeded = false
}

// Smooth folds a raw frame into the smoothed state and returns a copy of it.
// The first frame after a reset seeds the state exactly, so the average never
// gets pulled toward the origin by a zeroed default pose. Missing keypoints
// leave the prior smoothed value for that index untouched. Visibility is a
// confidence signal, not a position, and passes through unsmoothed.
func (s *Smoother) Smooth(raw Frame) Frame {
	if !s.seeded {
		s.cur = raw
		s.seeded = true
		return s.cur
	}
	a := s.alpha
	for i := range raw {
		if raw[i].Missing() {
			continue
		}
		s.cur[i].X = s.cur[i].X*(1-a) + raw[i].X*a
		s.cur[i].Y = s.cur[i].Y*(1-a) + raw[i].Y*a
		s.cur[i].Z = s.cur[i].Z*(1-a) + raw[i].Z*a
		s.cur[i].Visibility = raw[i].Visibility
	}
	return s.cur
}

// Current returns the smoothed frame and whether it has been seeded.
func (s *Smoother) Current() (Frame, bool) {
	return s.cur, s.seeded
}
