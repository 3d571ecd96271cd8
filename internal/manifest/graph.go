package manifest

import (
	"encoding/json"
	"fmt"
)

// Default costs and durations for transitions absent from the graph.
const (
	defaultTransitionCost = 10
	defaultTransitionMs   = 3000
)

// Transition is one directed edge in the pose flow graph.
type Transition struct {
	Cost         int    `json:"cost"`
	Bridge       string `json:"bridge,omitempty"`
	TransitionMs int    `json:"transitionMs"`
}

// Graph holds the pose transition graph: per-edge durations and costs plus
// bridge poses that smooth awkward transitions.
type Graph struct {
	transitions map[string]map[string]Transition
	categories  map[string][]string
	idMapping   map[string]string // full pose id -> short graph name
	reverse     map[string]string
}

// ParseGraph reads a transitions.json document.
func ParseGraph(data []byte) (*Graph, error) {
	var doc struct {
		Categories  map[string][]string              `json:"categories"`
		IDMapping   map[string]string                `json:"poseIdMapping"`
		Transitions map[string]map[string]Transition `json:"transitions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parsing transition graph: %w", err)
	}
	g := &Graph{
		transitions: doc.Transitions,
		categories:  doc.Categories,
		idMapping:   doc.IDMapping,
		reverse:     make(map[string]string, len(doc.IDMapping)),
	}
	if g.transitions == nil {
		g.transitions = map[string]map[string]Transition{}
	}
	for full, short := range g.idMapping {
		g.reverse[short] = full
	}
	for from, targets := range g.transitions {
		for to, tr := range targets {
			if tr.TransitionMs <= 0 {
				tr.TransitionMs = defaultTransitionMs
				g.transitions[from][to] = tr
			}
		}
	}
	return g, nil
}

// EmptyGraph returns a graph with no edges; every lookup falls back to
// defaults and no bridges are injected.
func EmptyGraph() *Graph {
	return &Graph{
		transitions: map[string]map[string]Transition{},
		idMapping:   map[string]string{},
		reverse:     map[string]string{},
	}
}

// shortName maps a full pose ID onto its graph node name.
func (g *Graph) shortName(poseID string) string {
	if short, ok := g.idMapping[poseID]; ok {
		return short
	}
	return poseID
}

// fullID maps a graph node name back onto its full pose ID.
func (g *Graph) fullID(short string) string {
	if full, ok := g.reverse[short]; ok {
		return full
	}
	return short
}

// Category returns the flow category of a pose, or "".
func (g *Graph) Category(poseID string) string {
	short := g.shortName(poseID)
	for category, poses := range g.categories {
		for _, p := range poses {
			if p == short {
				return category
			}
		}
	}
	return ""
}

func (g *Graph) edge(from, to string) (Transition, bool) {
	targets, ok := g.transitions[g.shortName(from)]
	if !ok {
		return Transition{}, false
	}
	tr, ok := targets[g.shortName(to)]
	return tr, ok
}

// TransitionCost returns the flow cost of an edge, high when unknown.
func (g *Graph) TransitionCost(from, to string) int {
	if tr, ok := g.edge(from, to); ok {
		return tr.Cost
	}
	return defaultTransitionCost
}

// TransitionDurationMs returns the skeleton morph duration for an edge.
func (g *Graph) TransitionDurationMs(from, to string) int {
	if tr, ok := g.edge(from, to); ok {
		return tr.TransitionMs
	}
	return defaultTransitionMs
}

// Bridge returns the bridge pose smoothing an edge, or "" when the
// transition flows directly.
func (g *Graph) Bridge(from, to string) string {
	if tr, ok := g.edge(from, to); ok && tr.Bridge != "" {
		return g.fullID(tr.Bridge)
	}
	return ""
}

// SequenceEntry is one pose in an optimized sequence.
type SequenceEntry struct {
	PoseID string
	Bridge bool
}

// OptimizeSequence injects bridge poses into a raw sequence wherever the
// graph marks a transition as needing one.
func (g *Graph) OptimizeSequence(poseIDs []string) []SequenceEntry {
	if len(poseIDs) == 0 {
		return nil
	}
	out := []SequenceEntry{{PoseID: poseIDs[0]}}
	for i := 1; i < len(poseIDs); i++ {
		if bridge := g.Bridge(poseIDs[i-1], poseIDs[i]); bridge != "" {
			out = append(out, SequenceEntry{PoseID: bridge, Bridge: true})
		}
		out = append(out, SequenceEntry{PoseID: poseIDs[i]})
	}
	return out
}

// TotalTransitionMs sums the transition durations across a segment order.
func (g *Graph) TotalTransitionMs(poseIDs []string) int {
	total := 0
	for i := 1; i < len(poseIDs); i++ {
		total += g.TransitionDurationMs(poseIDs[i-1], poseIDs[i])
	}
	return total
}
