package pose

import (
	"math"
	"testing"
)

func kp(x, y float64) Keypoint {
	return Keypoint{X: x, Y: y, Visibility: 1}
}

func TestAngleRightAngle(t *testing.T) {
	got := Angle(kp(0, 1), kp(0, 0), kp(1, 0))
	if math.Abs(got-90) > 1e-9 {
		t.Errorf("right angle: got %.4f, want 90", got)
	}
}

func TestAngleStraightLimb(t *testing.T) {
	got := Angle(kp(0, 0), kp(0.5, 0), kp(1, 0))
	if math.Abs(got-180) > 1e-9 {
		t.Errorf("straight limb: got %.4f, want 180", got)
	}
}

func TestAngleDegenerateIsFinite(t *testing.T) {
	p := kp(0.5, 0.5)
	got := Angle(p, p, p)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("degenerate triple produced non-finite angle %v", got)
	}
	if got < 0 || got > 180 {
		t.Errorf("degenerate angle %v outside [0,180]", got)
	}
}

func TestAngleReflection(t *testing.T) {
	// Triple whose raw atan2 difference exceeds 180 must be reflected back.
	got := Angle(kp(1, 0.1), kp(0, 0), kp(1, -0.1))
	if got < 0 || got > 180 {
		t.Errorf("angle %v outside [0,180]", got)
	}
}

func TestExtractAnglesOmitsMissing(t *testing.T) {
	var f Frame
	for i := range f {
		f[i] = Keypoint{X: 0.5 + float64(i)*0.01, Y: 0.3 + float64(i)*0.01, Visibility: 1}
	}
	f[LeftWrist] = Keypoint{}

	angles := ExtractAngles(f)
	if _, ok := angles["left_elbow_angle"]; ok {
		t.Errorf("angle with missing wrist must be omitted")
	}
	if _, ok := angles["right_elbow_angle"]; !ok {
		t.Errorf("unrelated angles must still be extracted")
	}
}

func TestMirrorSwapsAndFlips(t *testing.T) {
	var f Frame
	for i := range f {
		f[i] = Keypoint{X: 0.3, Y: 0.5, Visibility: 1}
	}
	f[LeftShoulder] = kp(0.2, 0.4)
	f[RightShoulder] = kp(0.8, 0.45)

	m := Mirror(f)
	if math.Abs(m[RightShoulder].X-0.8) > 1e-9 || m[RightShoulder].Y != 0.4 {
		t.Errorf("left shoulder should land mirrored on right slot, got %+v", m[RightShoulder])
	}
	if math.Abs(m[LeftShoulder].X-0.2) > 1e-9 || m[LeftShoulder].Y != 0.45 {
		t.Errorf("right shoulder should land mirrored on left slot, got %+v", m[LeftShoulder])
	}

	// Mirroring twice restores the original.
	back := Mirror(m)
	for i := range f {
		if math.Abs(back[i].X-f[i].X) > 1e-9 || back[i].Y != f[i].Y {
			t.Fatalf("double mirror not identity at index %d", i)
		}
	}
}

func TestMirrorAngles(t *testing.T) {
	in := map[string]float64{"left_knee_angle": 120, "right_knee_angle": 90}
	out := MirrorAngles(in)
	if out["left_knee_angle"] != 90 || out["right_knee_angle"] != 120 {
		t.Errorf("angle keys not swapped: %v", out)
	}
}

func TestInterpolateEndpoints(t *testing.T) {
	from := testFrame(0, 0)
	to := testFrame(1, 1)

	if got := Interpolate(from, to, 0, EaseInOut); got != from {
		t.Errorf("t=0 must return the from frame")
	}
	if got := Interpolate(from, to, 1, EaseInOut); got != to {
		t.Errorf("t=1 must return the to frame")
	}

	mid := Interpolate(from, to, 0.5, EaseLinear)
	if math.Abs(mid[Nose].X-0.5) > 1e-9 {
		t.Errorf("linear midpoint: got %.4f, want 0.5", mid[Nose].X)
	}
}

func TestEaseInOutMonotonic(t *testing.T) {
	prev := -1.0
	for i := 0; i <= 20; i++ {
		v := ease(EaseInOut, float64(i)/20)
		if v < prev {
			t.Fatalf("easing not monotonic at step %d", i)
		}
		prev = v
	}
	if ease(EaseInOut, 0) != 0 || ease(EaseInOut, 1) != 1 {
		t.Errorf("easing endpoints must be 0 and 1")
	}
}
