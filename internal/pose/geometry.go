package pose

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Angle computes the angle in degrees at the middle joint b between the limb
// segments b->a and b->c, reflected into [0,180]. The degenerate case
// (coincident points) resolves to 0, never NaN.
func Angle(a, b, c Keypoint) float64 {
	ang := (math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)) * 180 / math.Pi
	ang = math.Abs(ang)
	if ang > 180 {
		ang = 360 - ang
	}
	return ang
}

// The eight joint angles used for pose-hold matching, each defined by an
// (outer, joint, outer) landmark triple.
var angleTriples = map[string][3]int{
	"left_elbow_angle":     {LeftShoulder, LeftElbow, LeftWrist},
	"right_elbow_angle":    {RightShoulder, RightElbow, RightWrist},
	"left_shoulder_angle":  {LeftElbow, LeftShoulder, LeftHip},
	"right_shoulder_angle": {RightElbow, RightShoulder, RightHip},
	"left_hip_angle":       {LeftShoulder, LeftHip, LeftKnee},
	"right_hip_angle":      {RightShoulder, RightHip, RightKnee},
	"left_knee_angle":      {LeftHip, LeftKnee, LeftAnkle},
	"right_knee_angle":     {RightHip, RightKnee, RightAnkle},
}

// AngleNames lists the joint angle keys produced by ExtractAngles.
func AngleNames() []string {
	names := make([]string, 0, len(angleTriples))
	for name := range angleTriples {
		names = append(names, name)
	}
	return names
}

// ExtractAngles computes the joint angles for a frame. Angles whose triple
// includes a missing keypoint are omitted rather than reported as zero.
func ExtractAngles(f Frame) map[string]float64 {
	angles := make(map[string]float64, len(angleTriples))
	for name, t := range angleTriples {
		a, b, c := f[t[0]], f[t[1]], f[t[2]]
		if a.Missing() || b.Missing() || c.Missing() {
			continue
		}
		angles[name] = Angle(a, b, c)
	}
	return angles
}

// Landmark pairs swapped when mirroring a frame left<->right.
var swapPairs = [][2]int{
	{LeftEyeInner, RightEyeInner},
	{LeftEye, RightEye},
	{LeftEyeOuter, RightEyeOuter},
	{LeftEar, RightEar},
	{MouthLeft, MouthRight},
	{LeftShoulder, RightShoulder},
	{LeftElbow, RightElbow},
	{LeftWrist, RightWrist},
	{LeftPinky, RightPinky},
	{LeftIndex, RightIndex},
	{LeftThumb, RightThumb},
	{LeftHip, RightHip},
	{LeftKnee, RightKnee},
	{LeftAnkle, RightAnkle},
	{LeftHeel, RightHeel},
	{LeftFootIndex, RightFootIndex},
}

var angleSwap = map[string]string{
	"left_elbow_angle":     "right_elbow_angle",
	"right_elbow_angle":    "left_elbow_angle",
	"left_shoulder_angle":  "right_shoulder_angle",
	"right_shoulder_angle": "left_shoulder_angle",
	"left_hip_angle":       "right_hip_angle",
	"right_hip_angle":      "left_hip_angle",
	"left_knee_angle":      "right_knee_angle",
	"right_knee_angle":     "left_knee_angle",
}

// Mirror flips a frame across the vertical axis (x -> 1-x) and swaps the
// left/right landmark pairs, producing the opposite-side version of a pose.
func Mirror(f Frame) Frame {
	m := f
	for i := range m {
		if !m[i].Missing() {
			m[i].X = 1.0 - m[i].X
		}
	}
	for _, p := range swapPairs {
		m[p[0]], m[p[1]] = m[p[1]], m[p[0]]
	}
	return m
}

// MirrorAngles swaps left/right angle keys for the mirrored side of a
// bilateral pose.
func MirrorAngles(angles map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(angles))
	for k, v := range angles {
		if swapped, ok := angleSwap[k]; ok {
			out[swapped] = v
		} else {
			out[k] = v
		}
	}
	return out
}

// Midpoint returns the 2D midpoint of two keypoints.
func Midpoint(a, b Keypoint) mgl64.Vec2 {
	return mgl64.Vec2{a.X, a.Y}.Add(mgl64.Vec2{b.X, b.Y}).Mul(0.5)
}

// Distance returns the 2D distance between two keypoints.
func Distance(a, b Keypoint) float64 {
	return mgl64.Vec2{a.X, a.Y}.Sub(mgl64.Vec2{b.X, b.Y}).Len()
}
