// Package manifest builds session manifests: ordered pose segments with
// bilateral sets, bridge injection, style-based timing and interpolation
// links between consecutive segments.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/bij27/hohm.studio/internal/pose"
)

// Traits describe a pose's character; they modulate hold and transition
// timing per session style.
type Traits struct {
	Intensity   string `json:"intensity"`
	Stillness   string `json:"stillness"`
	BreathFocus string `json:"breathFocus"`
}

// Variation is an alternate acceptable body configuration for a pose.
type Variation struct {
	Name   string             `json:"name"`
	Angles map[string]float64 `json:"reference_angles"`
}

// Pose is one library entry. Bilateral poses store their right-side
// reference; the left side is derived by mirroring.
type Pose struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Sanskrit        string             `json:"sanskrit"`
	Category        string             `json:"category"`
	Focus           []string           `json:"focus"`
	Difficulty      string             `json:"difficulty"`
	SymmetryType    string             `json:"symmetryType"`
	DurationSeconds []int              `json:"duration_seconds"`
	Traits          Traits             `json:"traits"`
	Instructions    []string           `json:"instructions"`
	Landmarks       pose.Frame         `json:"reference_landmarks"`
	Angles          map[string]float64 `json:"reference_angles"`
	Variations      []Variation        `json:"variations,omitempty"`
}

// Bilateral reports whether the pose is held once per side.
func (p Pose) Bilateral() bool { return p.SymmetryType == "bilateral" }

// BaseHoldSeconds is the pose's default hold duration before style and trait
// scaling.
func (p Pose) BaseHoldSeconds() int {
	if len(p.DurationSeconds) == 0 {
		return 30
	}
	return p.DurationSeconds[0]
}

// Library is the pose catalog, preserving file order for sequencing.
type Library struct {
	poses map[string]Pose
	order []string
}

// ParseLibrary reads a poses.json document.
func ParseLibrary(data []byte) (*Library, error) {
	var doc struct {
		Poses []Pose `json:"poses"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parsing pose library: %w", err)
	}
	if len(doc.Poses) == 0 {
		return nil, fmt.Errorf("manifest: pose library is empty")
	}
	lib := &Library{poses: make(map[string]Pose, len(doc.Poses))}
	for _, p := range doc.Poses {
		if p.ID == "" {
			return nil, fmt.Errorf("manifest: pose with empty id")
		}
		if _, dup := lib.poses[p.ID]; dup {
			return nil, fmt.Errorf("manifest: duplicate pose id %q", p.ID)
		}
		lib.poses[p.ID] = p
		lib.order = append(lib.order, p.ID)
	}
	return lib, nil
}

// Get looks up a pose by ID.
func (l *Library) Get(id string) (Pose, bool) {
	p, ok := l.poses[id]
	return p, ok
}

// All returns the poses in file order.
func (l *Library) All() []Pose {
	out := make([]Pose, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.poses[id])
	}
	return out
}

// Len returns the number of poses in the library.
func (l *Library) Len() int { return len(l.order) }

// Style is a session pacing profile.
type Style struct {
	Name                  string  `json:"name"`
	Description           string  `json:"description"`
	InstructionDurationMs int     `json:"instructionDurationMs"`
	TransitionDurationMs  int     `json:"transitionDurationMs"`
	EstablishingTimeoutMs int     `json:"establishingTimeoutMs"`
	FormMatchThreshold    float64 `json:"formMatchThreshold"`
	HoldMultiplier        float64 `json:"holdMultiplier"`
	BreathCues            bool    `json:"breathCues"`
}

var styles = map[string]Style{
	"power": {
		Name:                  "Power Flow",
		Description:           "Efficient workout with quick transitions",
		InstructionDurationMs: 4000,
		TransitionDurationMs:  2000,
		EstablishingTimeoutMs: 6000,
		FormMatchThreshold:    0.40,
		HoldMultiplier:        0.8,
		BreathCues:            false,
	},
	"vinyasa": {
		Name:                  "Mindful Vinyasa",
		Description:           "Breath-centered meditative practice",
		InstructionDurationMs: 6000,
		TransitionDurationMs:  4000,
		EstablishingTimeoutMs: 12000,
		FormMatchThreshold:    0.45,
		HoldMultiplier:        1.2,
		BreathCues:            true,
	},
}

// StyleFor resolves a style name, falling back to vinyasa.
func StyleFor(name string) Style {
	if s, ok := styles[name]; ok {
		return s
	}
	return styles["vinyasa"]
}

func traitLevel(s string) float64 {
	switch s {
	case "low":
		return 0.0
	case "high":
		return 1.0
	default:
		return 0.5
	}
}

// traitTimingModifier scales hold and transition durations by a pose's
// traits. Power flows shorten intense or restless poses; vinyasa stretches
// breath-focused, still ones.
func traitTimingModifier(p Pose, styleName string) (hold, transition float64) {
	intensity := traitLevel(p.Traits.Intensity)
	stillness := traitLevel(p.Traits.Stillness)
	breath := traitLevel(p.Traits.BreathFocus)

	if styleName == "power" {
		hold = 1.0 - intensity*0.15 - (1-stillness)*0.1
		transition = 0.9
	} else {
		hold = 1.0 + breath*0.2 + stillness*0.15 - intensity*0.1
		transition = 1.0 + breath*0.2
	}

	hold = clamp(hold, 0.7, 1.5)
	transition = clamp(transition, 0.8, 1.4)
	return hold, transition
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SideFrames pairs the active skeleton with its mirror for overlay display.
type SideFrames struct {
	Active   pose.Frame `json:"active"`
	Mirrored pose.Frame `json:"mirrored"`
}

// SideAngles pairs the active reference angles with their mirror.
type SideAngles struct {
	Active   map[string]float64 `json:"active"`
	Mirrored map[string]float64 `json:"mirrored"`
}

// Interpolation links a segment to the one the skeleton morphs in from.
type Interpolation struct {
	FromIndex  *int        `json:"fromIndex"`
	DurationMs int         `json:"durationMs"`
	Easing     pose.Easing `json:"easing"`
}

// Segment is one entry in the session flow.
type Segment struct {
	Index           int           `json:"index"`
	Type            string        `json:"type"`
	PoseID          string        `json:"poseId"`
	Side            string        `json:"side,omitempty"`
	SetID           string        `json:"setId,omitempty"`
	HoldDurationMs  int           `json:"holdDurationMs"`
	IsBridge        bool          `json:"isBridge"`
	IsRotationStart bool          `json:"isRotationStart"`
	RotationSide    string        `json:"rotationSide,omitempty"`
	Landmarks       SideFrames    `json:"landmarks"`
	Angles          SideAngles    `json:"angles"`
	Interpolation   Interpolation `json:"interpolation"`
	Name            string        `json:"name"`
	Sanskrit        string        `json:"sanskrit,omitempty"`
	Instructions    []string      `json:"instructions,omitempty"`
	Traits          Traits        `json:"traits"`
}

// SetInfo groups the segments of one side of a bilateral set.
type SetInfo struct {
	Name     string `json:"name"`
	Side     string `json:"side"`
	Segments []int  `json:"segments"`
}

// Timing is the manifest-level pacing block the session engine consumes.
type Timing struct {
	InstructionDurationMs int     `json:"instructionDurationMs"`
	TransitionDurationMs  int     `json:"transitionDurationMs"`
	EstablishingTimeoutMs int     `json:"establishingTimeoutMs"`
	FormMatchThreshold    float64 `json:"formMatchThreshold"`
	BreathCues            bool    `json:"breathCues"`
	SessionStyle          string  `json:"sessionStyle"`
}

// Manifest is the complete session plan sent to the client.
type Manifest struct {
	Version         string             `json:"version"`
	SessionID       string             `json:"sessionId"`
	TotalDurationMs int                `json:"totalDurationMs"`
	Timing          Timing             `json:"timing"`
	Segments        []Segment          `json:"segments"`
	Sets            map[string]SetInfo `json:"sets"`
}
