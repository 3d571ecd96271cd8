package session

import "github.com/bij27/hohm.studio/internal/pose"

// Calibration gate tuning. A good frame must show every required keypoint
// confidently inside the camera margin; bad frames bleed progress twice as
// fast as good frames earn it, so flicker cannot creep past the gate.
const (
	DefaultCalibrationTarget = 30
	calibrationMinVisibility = 0.5
	calibrationMargin        = 0.05
)

var calibrationKeypoints = []int{
	pose.Nose,
	pose.LeftShoulder, pose.RightShoulder,
	pose.LeftElbow, pose.RightElbow,
	pose.LeftWrist, pose.RightWrist,
	pose.LeftHip, pose.RightHip,
	pose.LeftKnee, pose.RightKnee,
	pose.LeftAnkle, pose.RightAnkle,
}

// VisibilityGate holds the session in calibration until the full body has
// been framed steadily enough.
type VisibilityGate struct {
	progress int
	target   int
}

func NewVisibilityGate(target int) *VisibilityGate {
	if target <= 0 {
		target = DefaultCalibrationTarget
	}
	return &VisibilityGate{target: target}
}

// Observe scores one frame against the gate and reports whether the gate
// has opened.
func (g *VisibilityGate) Observe(f pose.Frame) bool {
	if g.frameOK(f) {
		g.progress++
	} else {
		g.progress -= 2
		if g.progress < 0 {
			g.progress = 0
		}
	}
	return g.progress >= g.target
}

func (g *VisibilityGate) frameOK(f pose.Frame) bool {
	for _, i := range calibrationKeypoints {
		kp := f[i]
		if !kp.Visible(calibrationMinVisibility) {
			return false
		}
		if kp.X < calibrationMargin || kp.X > 1-calibrationMargin {
			return false
		}
		if kp.Y < calibrationMargin || kp.Y > 1-calibrationMargin {
			return false
		}
	}
	return true
}

// Progress returns gate progress as a percentage in [0, 100].
func (g *VisibilityGate) Progress() int {
	p := g.progress * 100 / g.target
	if p > 100 {
		p = 100
	}
	return p
}

// Reset returns the gate to zero progress.
func (g *VisibilityGate) Reset() { g.progress = 0 }
