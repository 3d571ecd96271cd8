package pose

import "math"

// NumLandmarks is the number of body keypoints delivered per frame by the
// client-side pose model. The index layout is a fixed contract with MediaPipe.
const NumLandmarks = 33

// MediaPipe pose landmark indices.
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
)

// Keypoint is one body landmark in normalized frame space. X/Y are roughly
// [0,1], Z is relative depth, Visibility is the model's confidence in [0,1].
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame is one timestamped set of 33 keypoints, index-addressed by the
// landmark constants above.
type Frame [NumLandmarks]Keypoint

// Missing reports whether the keypoint was not delivered for this frame.
// The model emits all-zero entries for landmarks it could not place.
func (k Keypoint) Missing() bool {
	return k.X == 0 && k.Y == 0 && k.Z == 0 && k.Visibility == 0
}

// Visible reports whether the keypoint is present with at least min confidence.
func (k Keypoint) Visible(min float64) bool {
	return !k.Missing() && k.Visibility >= min
}

func (k Keypoint) finite() bool {
	for _, v := range [4]float64{k.X, k.Y, k.Z, k.Visibility} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Valid reports whether every keypoint in the frame carries finite
// coordinates. Frames failing this guard must not reach the scorer or the
// smoothed state.
func (f *Frame) Valid() bool {
	for i := range f {
		if !f[i].finite() {
			return false
		}
	}
	return true
}

// BodyHeight estimates the vertical extent of the body from nose to ankles.
// A near-zero result marks a degenerate detection.
func (f *Frame) BodyHeight() float64 {
	ankleY := 0.0
	n := 0
	for _, idx := range [2]int{LeftAnkle, RightAnkle} {
		if !f[idx].Missing() {
			ankleY += f[idx].Y
			n++
		}
	}
	if n == 0 || f[Nose].Missing() {
		return 0
	}
	return math.Abs(ankleY/float64(n) - f[Nose].Y)
}

const degenerateHeight = 1e-3

// Degenerate reports whether the frame is unusable as a scoring reference.
func (f *Frame) Degenerate() bool {
	return !f.Valid() || f.BodyHeight() < degenerateHeight
}
