package manifest

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/bij27/hohm.studio/internal/pose"
)

// Bridge poses never hold longer than this.
const maxBridgeHoldMs = 15000

var ErrEmptySequence = errors.New("manifest: no usable poses in sequence")

// Options parameterizes manifest generation.
type Options struct {
	DurationMins int
	Focus        string // "all", "balance", "flexibility", "strength", "relaxation"
	Difficulty   string
	PoseIDs      []string // explicit sequence, overrides auto-generation
	Style        string   // "power" or "vinyasa"
	Seed         int64    // 0 means non-deterministic
}

// Generator builds manifests from a pose library and a transition graph.
type Generator struct {
	lib   *Library
	graph *Graph
}

func NewGenerator(lib *Library, graph *Graph) *Generator {
	if graph == nil {
		graph = EmptyGraph()
	}
	return &Generator{lib: lib, graph: graph}
}

// Generate builds a full session manifest: auto or explicit sequence, bridge
// injection, bilateral right-then-left flow, style timing.
func (g *Generator) Generate(opts Options) (*Manifest, error) {
	styleName := opts.Style
	if _, ok := styles[styleName]; !ok {
		styleName = "vinyasa"
	}
	style := styles[styleName]

	raw := opts.PoseIDs
	if len(raw) == 0 {
		raw = g.autoSequence(opts)
	}
	optimized := g.graph.OptimizeSequence(raw)

	segments, sets, err := g.buildSegments(optimized, styleName)
	if err != nil {
		return nil, err
	}

	order := make([]string, len(segments))
	total := 0
	for i, seg := range segments {
		order[i] = seg.PoseID
		total += seg.HoldDurationMs
	}
	total += g.graph.TotalTransitionMs(order)

	return &Manifest{
		Version:         "2.0",
		SessionID:       uuid.NewString(),
		TotalDurationMs: total,
		Timing: Timing{
			InstructionDurationMs: style.InstructionDurationMs,
			TransitionDurationMs:  style.TransitionDurationMs,
			EstablishingTimeoutMs: style.EstablishingTimeoutMs,
			FormMatchThreshold:    style.FormMatchThreshold,
			BreathCues:            style.BreathCues,
			SessionStyle:          styleName,
		},
		Segments: segments,
		Sets:     sets,
	}, nil
}

// FromQueue builds a degenerate manifest for the legacy queue mode: one
// symmetric segment per pose, vinyasa timing, no sides or sets.
func (g *Generator) FromQueue(poseIDs []string) (*Manifest, error) {
	return g.Generate(Options{PoseIDs: poseIDs, Style: "vinyasa"})
}

// autoSequence builds a pose order for the target duration: a beginner
// warmup (20%), a mixed main phase (60%), and a relaxation cooldown (20%).
func (g *Generator) autoSequence(opts Options) []string {
	totalSeconds := opts.DurationMins * 60
	if totalSeconds <= 0 {
		totalSeconds = 15 * 60
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	if opts.Seed == 0 {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	available := g.lib.All()
	if opts.Focus != "" && opts.Focus != "all" {
		focused := available[:0:0]
		for _, p := range available {
			for _, f := range p.Focus {
				if f == opts.Focus {
					focused = append(focused, p)
					break
				}
			}
		}
		if len(focused) > 0 {
			available = focused
		}
	}

	byDifficulty := func(level string) []Pose {
		var out []Pose
		for _, p := range available {
			if p.Difficulty == level {
				out = append(out, p)
			}
		}
		return out
	}
	beginner := byDifficulty("beginner")
	main := append(append(byDifficulty("intermediate"), byDifficulty("advanced")...), beginner...)

	var cooldown []Pose
	for _, p := range available {
		if p.Category == "seated" {
			cooldown = append(cooldown, p)
			continue
		}
		for _, f := range p.Focus {
			if f == "relaxation" {
				cooldown = append(cooldown, p)
				break
			}
		}
	}

	var sequence []string
	seen := make(map[string]bool)
	current := 0
	fill := func(pool []Pose, target int) {
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		for _, p := range pool {
			if current >= target {
				return
			}
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			sequence = append(sequence, p.ID)
			current += p.BaseHoldSeconds()
		}
	}
	fill(beginner, totalSeconds*20/100)
	fill(main, totalSeconds*80/100)
	fill(cooldown, totalSeconds)
	return sequence
}

// buildSegments lays out the flow: every bilateral pose right side first,
// then the same poses left side, then symmetric poses as the closing block.
func (g *Generator) buildSegments(seq []SequenceEntry, styleName string) ([]Segment, map[string]SetInfo, error) {
	type entry struct {
		p      Pose
		bridge bool
	}
	var bilateral, symmetric []entry
	for _, e := range seq {
		p, ok := g.lib.Get(e.PoseID)
		if !ok {
			continue
		}
		if p.Bilateral() {
			bilateral = append(bilateral, entry{p, e.Bridge})
		} else {
			symmetric = append(symmetric, entry{p, e.Bridge})
		}
	}
	if len(bilateral)+len(symmetric) == 0 {
		return nil, nil, ErrEmptySequence
	}

	var segments []Segment
	sets := make(map[string]SetInfo)
	index := 0

	for _, side := range []string{"right", "left"} {
		for i, e := range bilateral {
			setID := fmt.Sprintf("set_%d_%s", i, side)
			seg := g.sidedSegment(e.p, index, side, styleName)
			seg.SetID = setID
			seg.RotationSide = side
			seg.IsRotationStart = side == "left" && i == 0
			segments = append(segments, seg)

			sets[setID] = SetInfo{
				Name:     fmt.Sprintf("%s (%s)", e.p.Name, side),
				Side:     side,
				Segments: []int{index},
			}
			index++
		}
	}
	for _, e := range symmetric {
		seg := g.plainSegment(e.p, index, e.bridge, styleName)
		segments = append(segments, seg)
		index++
	}

	g.linkInterpolation(segments)
	return segments, sets, nil
}

// sidedSegment builds one side of a bilateral pose. The library stores the
// right-side reference; the left side is its mirror.
func (g *Generator) sidedSegment(p Pose, index int, side, styleName string) Segment {
	active, activeAngles := p.Landmarks, p.Angles
	if side == "left" {
		active = pose.Mirror(p.Landmarks)
		activeAngles = pose.MirrorAngles(p.Angles)
	}
	holdMs, transMs := g.segmentTiming(p, styleName, false)

	return Segment{
		Index:          index,
		Type:           "pose",
		PoseID:         p.ID,
		Side:           side,
		HoldDurationMs: holdMs,
		Landmarks:      SideFrames{Active: active, Mirrored: pose.Mirror(active)},
		Angles:         SideAngles{Active: activeAngles, Mirrored: pose.MirrorAngles(activeAngles)},
		Interpolation:  Interpolation{DurationMs: transMs, Easing: pose.EaseInOut},
		Name:           p.Name,
		Sanskrit:       p.Sanskrit,
		Instructions:   p.Instructions,
		Traits:         p.Traits,
	}
}

func (g *Generator) plainSegment(p Pose, index int, isBridge bool, styleName string) Segment {
	holdMs, transMs := g.segmentTiming(p, styleName, isBridge)
	segType := "pose"
	if isBridge {
		segType = "bridge"
	}
	return Segment{
		Index:          index,
		Type:           segType,
		PoseID:         p.ID,
		HoldDurationMs: holdMs,
		IsBridge:       isBridge,
		Landmarks:      SideFrames{Active: p.Landmarks, Mirrored: pose.Mirror(p.Landmarks)},
		Angles:         SideAngles{Active: p.Angles, Mirrored: pose.MirrorAngles(p.Angles)},
		Interpolation:  Interpolation{DurationMs: transMs, Easing: pose.EaseInOut},
		Name:           p.Name,
		Sanskrit:       p.Sanskrit,
		Instructions:   p.Instructions,
		Traits:         p.Traits,
	}
}

func (g *Generator) segmentTiming(p Pose, styleName string, isBridge bool) (holdMs, transMs int) {
	style := styles[styleName]
	holdMod, transMod := traitTimingModifier(p, styleName)
	holdMs = int(float64(p.BaseHoldSeconds()*1000) * style.HoldMultiplier * holdMod)
	if isBridge && holdMs > maxBridgeHoldMs {
		holdMs = maxBridgeHoldMs
	}
	transMs = int(float64(style.TransitionDurationMs) * transMod)
	return holdMs, transMs
}

// linkInterpolation points each segment at its predecessor and takes the
// morph duration from the transition graph where an edge exists.
func (g *Generator) linkInterpolation(segments []Segment) {
	for i := 1; i < len(segments); i++ {
		if segments[i].Interpolation.FromIndex != nil {
			continue
		}
		from := segments[i-1].Index
		segments[i].Interpolation.FromIndex = &from
		if ms := g.graph.TransitionDurationMs(segments[i-1].PoseID, segments[i].PoseID); ms > 0 {
			segments[i].Interpolation.DurationMs = ms
		}
	}
}
