package manifest

import (
	"math"
	"testing"
)

func testGenerator(t *testing.T) (*Generator, *Library) {
	t.Helper()
	lib, err := DefaultLibrary()
	if err != nil {
		t.Fatalf("DefaultLibrary: %v", err)
	}
	graph, err := DefaultGraph()
	if err != nil {
		t.Fatalf("DefaultGraph: %v", err)
	}
	return NewGenerator(lib, graph), lib
}

func TestDefaultLibrary(t *testing.T) {
	lib, err := DefaultLibrary()
	if err != nil {
		t.Fatalf("DefaultLibrary: %v", err)
	}
	if lib.Len() < 5 {
		t.Fatalf("library has %d poses", lib.Len())
	}
	tree, ok := lib.Get("tree")
	if !ok {
		t.Fatal("tree missing from library")
	}
	if !tree.Bilateral() {
		t.Fatal("tree should be bilateral")
	}
	if len(tree.Variations) == 0 {
		t.Fatal("tree should carry a variation")
	}
	if len(tree.Angles) != 8 {
		t.Fatalf("tree has %d reference angles", len(tree.Angles))
	}
}

func TestGenerateExplicitSequence(t *testing.T) {
	g, _ := testGenerator(t)
	m, err := g.Generate(Options{
		PoseIDs: []string{"warrior-2", "tree", "butterfly"},
		Style:   "power",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Two bilateral poses give right+right then left+left, plus the bridge
	// that tree->butterfly inserts and butterfly itself as symmetric tail.
	wantOrder := []struct {
		poseID string
		side   string
	}{
		{"warrior-2", "right"}, {"tree", "right"},
		{"warrior-2", "left"}, {"tree", "left"},
		{"downward-dog", ""}, {"butterfly", ""},
	}
	if len(m.Segments) != len(wantOrder) {
		t.Fatalf("got %d segments, want %d", len(m.Segments), len(wantOrder))
	}
	for i, want := range wantOrder {
		seg := m.Segments[i]
		if seg.PoseID != want.poseID || seg.Side != want.side {
			t.Errorf("segment %d = %s/%s, want %s/%s", i, seg.PoseID, seg.Side, want.poseID, want.side)
		}
		if seg.Index != i {
			t.Errorf("segment %d carries index %d", i, seg.Index)
		}
	}

	if !m.Segments[2].IsRotationStart {
		t.Error("first left-side segment not marked as rotation start")
	}
	if m.Segments[0].IsRotationStart {
		t.Error("first right-side segment wrongly marked as rotation start")
	}
	if !m.Segments[4].IsBridge || m.Segments[4].Type != "bridge" {
		t.Error("injected downward-dog not marked as bridge")
	}

	if m.Timing.SessionStyle != "power" || m.Timing.InstructionDurationMs != 4000 {
		t.Errorf("timing = %+v", m.Timing)
	}
	if m.Timing.FormMatchThreshold != 0.40 {
		t.Errorf("form threshold = %v", m.Timing.FormMatchThreshold)
	}
	if m.TotalDurationMs <= 0 {
		t.Error("total duration not computed")
	}
	if m.SessionID == "" {
		t.Error("missing session id")
	}
}

func TestMirroredLeftSide(t *testing.T) {
	g, _ := testGenerator(t)
	m, err := g.Generate(Options{PoseIDs: []string{"tree"}, Style: "vinyasa"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	right, left := m.Segments[0], m.Segments[1]

	// Tree's bent leg is the right one in the stored reference; mirrored to
	// the left side the small knee angle must swap legs.
	if right.Angles.Active["right_knee_angle"] != 48.0 {
		t.Fatalf("right side right_knee = %v", right.Angles.Active["right_knee_angle"])
	}
	if left.Angles.Active["left_knee_angle"] != 48.0 {
		t.Fatalf("left side left_knee = %v", left.Angles.Active["left_knee_angle"])
	}
	if left.Angles.Active["right_knee_angle"] != 177.0 {
		t.Fatalf("left side right_knee = %v", left.Angles.Active["right_knee_angle"])
	}
}

func TestInterpolationLinking(t *testing.T) {
	g, _ := testGenerator(t)
	m, err := g.Generate(Options{PoseIDs: []string{"mountain", "downward-dog"}, Style: "vinyasa"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if m.Segments[0].Interpolation.FromIndex != nil {
		t.Error("first segment should not interpolate from anywhere")
	}
	second := m.Segments[1]
	if second.Interpolation.FromIndex == nil || *second.Interpolation.FromIndex != 0 {
		t.Fatalf("second segment fromIndex = %v", second.Interpolation.FromIndex)
	}
	// mountain -> downward-dog is a graph edge with a 3500ms morph.
	if second.Interpolation.DurationMs != 3500 {
		t.Fatalf("transition duration = %d", second.Interpolation.DurationMs)
	}
}

func TestBridgeHoldCap(t *testing.T) {
	g, _ := testGenerator(t)
	m, err := g.Generate(Options{PoseIDs: []string{"tree", "butterfly"}, Style: "vinyasa"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, seg := range m.Segments {
		if seg.IsBridge && seg.HoldDurationMs > maxBridgeHoldMs {
			t.Fatalf("bridge hold = %dms", seg.HoldDurationMs)
		}
	}
}

func TestTraitModifierClamps(t *testing.T) {
	calm := Pose{Traits: Traits{Intensity: "low", Stillness: "high", BreathFocus: "high"}}
	hold, trans := traitTimingModifier(calm, "vinyasa")
	if math.Abs(hold-1.35) > 1e-9 {
		t.Fatalf("vinyasa calm hold mod = %v", hold)
	}
	if math.Abs(trans-1.2) > 1e-9 {
		t.Fatalf("vinyasa calm transition mod = %v", trans)
	}

	frantic := Pose{Traits: Traits{Intensity: "high", Stillness: "low", BreathFocus: "low"}}
	hold, trans = traitTimingModifier(frantic, "power")
	if hold < 0.7 || hold > 1.5 {
		t.Fatalf("power hold mod out of range: %v", hold)
	}
	if trans != 0.9 {
		t.Fatalf("power transition mod = %v", trans)
	}
}

func TestAutoSequenceDeterministicWithSeed(t *testing.T) {
	g, _ := testGenerator(t)
	a, err := g.Generate(Options{DurationMins: 15, Style: "vinyasa", Seed: 42})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := g.Generate(Options{DurationMins: 15, Style: "vinyasa", Seed: 42})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(a.Segments) == 0 {
		t.Fatal("auto sequence produced no segments")
	}
	if len(a.Segments) != len(b.Segments) {
		t.Fatalf("same seed produced %d vs %d segments", len(a.Segments), len(b.Segments))
	}
	for i := range a.Segments {
		if a.Segments[i].PoseID != b.Segments[i].PoseID {
			t.Fatalf("segment %d differs: %s vs %s", i, a.Segments[i].PoseID, b.Segments[i].PoseID)
		}
	}
}

func TestAutoSequenceFocusFilter(t *testing.T) {
	g, _ := testGenerator(t)
	m, err := g.Generate(Options{DurationMins: 5, Focus: "relaxation", Style: "vinyasa", Seed: 7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	lib, _ := DefaultLibrary()
	for _, seg := range m.Segments {
		if seg.IsBridge {
			continue
		}
		p, _ := lib.Get(seg.PoseID)
		found := false
		for _, f := range p.Focus {
			if f == "relaxation" {
				found = true
			}
		}
		if !found {
			t.Fatalf("pose %s leaked past the relaxation focus filter", seg.PoseID)
		}
	}
}

func TestFromQueue(t *testing.T) {
	g, _ := testGenerator(t)
	m, err := g.FromQueue([]string{"mountain", "butterfly"})
	if err != nil {
		t.Fatalf("FromQueue: %v", err)
	}
	if len(m.Segments) != 2 {
		t.Fatalf("got %d segments", len(m.Segments))
	}
	for _, seg := range m.Segments {
		if seg.Side != "" {
			t.Fatalf("queue mode produced sided segment %s/%s", seg.PoseID, seg.Side)
		}
	}
	if len(m.Sets) != 0 {
		t.Fatalf("queue mode produced %d sets", len(m.Sets))
	}
}

func TestGenerateRejectsUnknownOnlySequence(t *testing.T) {
	g, _ := testGenerator(t)
	if _, err := g.Generate(Options{PoseIDs: []string{"nonexistent"}}); err == nil {
		t.Fatal("unknown-only sequence accepted")
	}
}

func TestSessionItemsFromManifest(t *testing.T) {
	g, lib := testGenerator(t)
	m, err := g.Generate(Options{PoseIDs: []string{"tree", "mountain"}, Style: "power"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	items, err := m.SessionItems(lib)
	if err != nil {
		t.Fatalf("SessionItems: %v", err)
	}
	if len(items) != len(m.Segments) {
		t.Fatalf("%d items for %d segments", len(items), len(m.Segments))
	}

	// Tree carries a variation, so its items score against two targets.
	if got := len(items[0].Reference.Targets); got != 2 {
		t.Fatalf("tree reference has %d targets", got)
	}
	// The left-side variation mirrors too.
	leftVar := items[1].Reference.Targets[1]
	if leftVar.Angles["left_knee_angle"] != 90.0 {
		t.Fatalf("left-side variation left_knee = %v", leftVar.Angles["left_knee_angle"])
	}

	for _, it := range items {
		if it.HoldSeconds <= 0 {
			t.Fatalf("item %s has hold %d", it.PoseID, it.HoldSeconds)
		}
	}

	timing := m.SessionTiming()
	if timing.FormThreshold != 0.40 {
		t.Fatalf("form threshold = %v", timing.FormThreshold)
	}
	if timing.InstructionTimeout.Milliseconds() != 4000 {
		t.Fatalf("instruction timeout = %v", timing.InstructionTimeout)
	}
}
