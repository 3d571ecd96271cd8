// Package posture runs the desk-posture variant: a short seated calibration
// followed by continuous zone monitoring against the calibrated reference.
package posture

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/bij27/hohm.studio/internal/pose"
	"github.com/bij27/hohm.studio/internal/scoring"
)

// Calibration collection sizing. Frames are collected first and filtered
// later: every usable frame is kept with a quality score, and finalization
// takes the median over the best ones rather than rejecting frames upfront.
const (
	requiredFrames = 20
	usableFrames   = 10

	calMinVisibility = 0.1
	minShoulderWidth = 0.05
)

var ErrNoCalibrationData = errors.New("posture: no calibration data collected")

type sample struct {
	q       scoring.PostureReference
	quality float64
}

// Calibrator accumulates seated frames and distills them into a posture
// reference. Webcam users rarely hold still, so the filter is statistical:
// quality-ranked frames, per-quantity medians.
type Calibrator struct {
	samples []sample
}

func NewCalibrator() *Calibrator { return &Calibrator{} }

// features are the scale-normalized values used only for quality scoring and
// coaching instructions, never for the final reference.
type features struct {
	headForward  float64
	headLateral  float64
	shoulderTilt float64
	headTilt     float64
}

// estimateShoulders fills in shoulder keypoints from head width when the
// camera crops them out. Desk cameras often frame only the head; shoulders
// sit roughly 2.2 head-widths apart just below the jawline.
func estimateShoulders(f pose.Frame) (pose.Frame, bool) {
	if f[pose.LeftShoulder].Visible(calMinVisibility) && f[pose.RightShoulder].Visible(calMinVisibility) {
		return f, true
	}
	le, re := f[pose.LeftEar], f[pose.RightEar]
	if !le.Visible(calMinVisibility) {
		le = f[pose.LeftEyeOuter]
	}
	if !re.Visible(calMinVisibility) {
		re = f[pose.RightEyeOuter]
	}
	nose := f[pose.Nose]
	if !le.Visible(calMinVisibility) || !re.Visible(calMinVisibility) || !nose.Visible(calMinVisibility) {
		return f, false
	}

	headWidth := math.Abs(le.X - re.X)
	centerX := (le.X + re.X) / 2
	shoulderY := nose.Y + headWidth*1.2
	f[pose.LeftShoulder] = pose.Keypoint{X: centerX + headWidth*1.1, Y: shoulderY, Z: nose.Z, Visibility: 0.5}
	f[pose.RightShoulder] = pose.Keypoint{X: centerX - headWidth*1.1, Y: shoulderY, Z: nose.Z, Visibility: 0.5}
	return f, true
}

func extractFeatures(f pose.Frame) (features, bool) {
	ls, rs := f[pose.LeftShoulder], f[pose.RightShoulder]
	nose := f[pose.Nose]
	le, re := f[pose.LeftEar], f[pose.RightEar]
	if !le.Visible(calMinVisibility) {
		le = f[pose.LeftEyeOuter]
	}
	if !re.Visible(calMinVisibility) {
		re = f[pose.RightEyeOuter]
	}
	width := math.Abs(ls.X - rs.X)
	if width < minShoulderWidth {
		return features{}, false
	}
	centerX := (ls.X + rs.X) / 2
	centerY := (ls.Y + rs.Y) / 2
	return features{
		headForward:  (nose.Y - centerY) / width,
		headLateral:  (nose.X - centerX) / width,
		shoulderTilt: (ls.Y - rs.Y) / width,
		headTilt:     (le.Y - re.Y) / width,
	}, true
}

// frameQuality scores how stable and centered a calibration frame is, in
// (0, 1]. Sloppy frames are still collected, just ranked down.
func frameQuality(ft features) float64 {
	q := 1.0
	if math.Abs(ft.headLateral) > 0.3 {
		q *= 0.7
	}
	if ft.headForward > 0.5 {
		q *= 0.7
	}
	if math.Abs(ft.shoulderTilt) > 0.15 {
		q *= 0.8
	}
	if math.Abs(ft.headTilt) > 0.15 {
		q *= 0.8
	}
	return q
}

// AddFrame collects one frame. It returns whether the frame was usable and
// a coaching instruction for the client to display.
func (c *Calibrator) AddFrame(f pose.Frame) (ok bool, instruction string) {
	f, found := estimateShoulders(f)
	if !found || !f.Valid() {
		return false, "Position yourself so your head and shoulders are visible"
	}
	ft, found := extractFeatures(f)
	if !found {
		return false, "Position yourself so your head and shoulders are visible"
	}
	q, err := scoring.Quantities(f)
	if err != nil {
		return false, "Position yourself so your head and shoulders are visible"
	}

	quality := frameQuality(ft)
	c.samples = append(c.samples, sample{q: q, quality: quality})
	return true, c.instruction(ft, quality)
}

func (c *Calibrator) instruction(ft features, quality float64) string {
	if quality > 0.85 {
		return fmt.Sprintf("Perfect! Hold still... (%d/%d)", len(c.samples), requiredFrames)
	}
	switch {
	case math.Abs(ft.headLateral) > 0.2:
		if ft.headLateral > 0 {
			return "Center your head (move left)"
		}
		return "Center your head (move right)"
	case ft.headForward > 0.3:
		return "Sit up straighter"
	case math.Abs(ft.shoulderTilt) > 0.1:
		if ft.shoulderTilt > 0 {
			return "Level your shoulders (right is higher)"
		}
		return "Level your shoulders (left is higher)"
	case math.Abs(ft.headTilt) > 0.1:
		return "Straighten your head"
	}
	return fmt.Sprintf("Good! Keep still... (%d/%d)", len(c.samples), requiredFrames)
}

// Complete reports whether enough frames have been collected.
func (c *Calibrator) Complete() bool { return len(c.samples) >= requiredFrames }

// Progress returns collection progress as a percentage in [0, 100].
func (c *Calibrator) Progress() int {
	p := len(c.samples) * 100 / requiredFrames
	if p > 100 {
		p = 100
	}
	return p
}

// Finalize distills the collected frames into a posture reference: the
// highest-quality frames are kept and each reference quantity is the median
// across them.
func (c *Calibrator) Finalize() (*scoring.PostureReference, error) {
	if len(c.samples) == 0 {
		return nil, ErrNoCalibrationData
	}
	best := make([]sample, len(c.samples))
	copy(best, c.samples)
	sort.SliceStable(best, func(i, j int) bool { return best[i].quality > best[j].quality })
	if len(best) > usableFrames {
		best = best[:usableFrames]
	}

	pick := func(get func(scoring.PostureReference) float64) float64 {
		xs := make([]float64, len(best))
		for i, s := range best {
			xs[i] = get(s.q)
		}
		sort.Float64s(xs)
		return stat.Quantile(0.5, stat.Empirical, xs, nil)
	}

	ref := &scoring.PostureReference{
		ShoulderY:   pick(func(q scoring.PostureReference) float64 { return q.ShoulderY }),
		NoseY:       pick(func(q scoring.PostureReference) float64 { return q.NoseY }),
		CenterX:     pick(func(q scoring.PostureReference) float64 { return q.CenterX }),
		NoseX:       pick(func(q scoring.PostureReference) float64 { return q.NoseX }),
		ForwardHead: pick(func(q scoring.PostureReference) float64 { return q.ForwardHead }),
		MeanZ:       pick(func(q scoring.PostureReference) float64 { return q.MeanZ }),
		Twist:       pick(func(q scoring.PostureReference) float64 { return q.Twist }),
	}
	c.samples = nil
	return ref, nil
}
