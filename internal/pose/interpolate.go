package pose

import "github.com/go-gl/mathgl/mgl64"

// Easing names match the manifest's interpolation.easing field.
type Easing string

const (
	EaseLinear Easing = "linear"
	EaseIn     Easing = "easeIn"
	EaseOut    Easing = "easeOut"
	EaseInOut  Easing = "easeInOut"
)

func ease(e Easing, t float64) float64 {
	switch e {
	case EaseIn:
		return t * t
	case EaseOut:
		return 1 - (1-t)*(1-t)
	case EaseInOut:
		if t < 0.5 {
			return 2 * t * t
		}
		return 1 - 2*(1-t)*(1-t)
	default:
		return t
	}
}

// Interpolate blends two reference frames at progress t in [0,1] with the
// given easing curve. Used for the skeleton transition overlay between a
// completed item's pose and the next item's pose; it runs on the display
// path and never blocks the state machine.
func Interpolate(from, to Frame, t float64, e Easing) Frame {
	if t <= 0 {
		return from
	}
	if t >= 1 {
		return to
	}
	t = ease(e, t)
	var out Frame
	for i := range out {
		a := mgl64.Vec3{from[i].X, from[i].Y, from[i].Z}
		b := mgl64.Vec3{to[i].X, to[i].Y, to[i].Z}
		v := a.Add(b.Sub(a).Mul(t))
		out[i] = Keypoint{
			X:          v.X(),
			Y:          v.Y(),
			Z:          v.Z(),
			Visibility: from[i].Visibility*(1-t) + to[i].Visibility*t,
		}
	}
	return out
}
