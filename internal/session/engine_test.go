package session

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bij27/hohm.studio/internal/pose"
	"github.com/bij27/hohm.studio/internal/scoring"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1000, 0)} }

// standingFrame is a full-body upright pose with every keypoint confidently
// visible and inside the camera margin.
func standingFrame() pose.Frame {
	var f pose.Frame
	set := func(i int, x, y float64) {
		f[i] = pose.Keypoint{X: x, Y: y, Z: 0.1, Visibility: 0.9}
	}
	for i := pose.Nose; i <= pose.MouthRight; i++ {
		set(i, 0.5, 0.12)
	}
	set(pose.LeftShoulder, 0.58, 0.25)
	set(pose.RightShoulder, 0.42, 0.25)
	set(pose.LeftElbow, 0.62, 0.40)
	set(pose.RightElbow, 0.38, 0.40)
	set(pose.LeftWrist, 0.63, 0.54)
	set(pose.RightWrist, 0.37, 0.54)
	for _, i := range []int{pose.LeftPinky, pose.LeftIndex, pose.LeftThumb} {
		set(i, 0.64, 0.57)
	}
	for _, i := range []int{pose.RightPinky, pose.RightIndex, pose.RightThumb} {
		set(i, 0.36, 0.57)
	}
	set(pose.LeftHip, 0.55, 0.55)
	set(pose.RightHip, 0.45, 0.55)
	set(pose.LeftKnee, 0.55, 0.72)
	set(pose.RightKnee, 0.45, 0.72)
	set(pose.LeftAnkle, 0.55, 0.88)
	set(pose.RightAnkle, 0.45, 0.88)
	set(pose.LeftHeel, 0.56, 0.90)
	set(pose.RightHeel, 0.44, 0.90)
	set(pose.LeftFootIndex, 0.57, 0.92)
	set(pose.RightFootIndex, 0.43, 0.92)
	return f
}

// tuckFrame is a crouched, arms-overhead pose whose joint angles sit far from
// the standing reference on every limb, scoring well below the match gate.
func tuckFrame() pose.Frame {
	f := standingFrame()
	set := func(i int, x, y float64) {
		f[i] = pose.Keypoint{X: x, Y: y, Z: 0.1, Visibility: 0.9}
	}
	set(pose.LeftShoulder, 0.58, 0.50)
	set(pose.RightShoulder, 0.42, 0.50)
	set(pose.LeftElbow, 0.58, 0.35)
	set(pose.RightElbow, 0.42, 0.35)
	set(pose.LeftWrist, 0.57, 0.48)
	set(pose.RightWrist, 0.43, 0.48)
	set(pose.LeftHip, 0.55, 0.60)
	set(pose.RightHip, 0.45, 0.60)
	set(pose.LeftKnee, 0.63, 0.62)
	set(pose.RightKnee, 0.37, 0.62)
	set(pose.LeftAnkle, 0.55, 0.70)
	set(pose.RightAnkle, 0.45, 0.70)
	return f
}

func refFromFrame(t *testing.T, name string, f pose.Frame) *scoring.Reference {
	t.Helper()
	ref, err := scoring.NewReference(scoring.Target{
		Name:      name,
		Angles:    pose.ExtractAngles(f),
		Landmarks: f,
	})
	if err != nil {
		t.Fatalf("building reference: %v", err)
	}
	return ref
}

func newTestEngine(t *testing.T, clk *fakeClock, cfg Config) *Engine {
	t.Helper()
	cfg.Clock = clk.Now
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func standingItem(t *testing.T, hold int) Item {
	return Item{
		PoseID:      "mountain",
		Name:        "Mountain",
		HoldSeconds: hold,
		Reference:   refFromFrame(t, "base", standingFrame()),
	}
}

// calibrate drives the engine from loading through calibration and countdown
// into the first item's instructions phase.
func calibrate(t *testing.T, e *Engine, clk *fakeClock) {
	t.Helper()
	e.Apply(CmdStart)
	e.OnTick()
	if e.Phase() != PhaseCalibrating {
		t.Fatalf("after start: phase %v", e.Phase())
	}
	f := standingFrame()
	for i := 0; i < DefaultCalibrationTarget; i++ {
		e.OnFrame(f, true)
	}
	if e.Phase() != PhaseCountdown {
		t.Fatalf("after calibration frames: phase %v", e.Phase())
	}
	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
		e.OnTick()
	}
	if e.Phase() != PhaseInstructions {
		t.Fatalf("after countdown: phase %v", e.Phase())
	}
}

// pumpFrames feeds n copies of a frame with no time passing, letting the
// landmark and score smoothing settle.
func pumpFrames(e *Engine, f pose.Frame, n int) {
	for i := 0; i < n; i++ {
		e.OnFrame(f, true)
	}
}

// step advances one second of wall time and ticks.
func step(e *Engine, clk *fakeClock) {
	clk.Advance(time.Second)
	e.OnTick()
}

// enterHold drives instructions and establishing with matching frames. A
// frame that matches in establishing advances it immediately, so the
// midpoint may already be active_hold.
func enterHold(t *testing.T, e *Engine, clk *fakeClock, f pose.Frame) {
	t.Helper()
	e.VoiceDone()
	pumpFrames(e, f, 3)
	if p := e.Phase(); p != PhaseEstablishing && p != PhaseActiveHold {
		t.Fatalf("after voice+match: phase %v", p)
	}
	pumpFrames(e, f, 3)
	if e.Phase() != PhaseActiveHold {
		t.Fatalf("after establishing match: phase %v", e.Phase())
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrEmptyManifest) {
		t.Fatalf("empty manifest: %v", err)
	}
	if _, err := New(Config{Items: []Item{{PoseID: "x", HoldSeconds: 30}}}); !errors.Is(err, ErrNilReference) {
		t.Fatalf("nil reference: %v", err)
	}
	bad := Item{PoseID: "x", Reference: refFromFrame(t, "base", standingFrame())}
	if _, err := New(Config{Items: []Item{bad}}); err == nil {
		t.Fatal("zero hold duration accepted")
	}
}

func TestPerfectSessionGradesAPlus(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30)}})
	calibrate(t, e, clk)
	enterHold(t, e, clk, standingFrame())

	for i := 0; i < 30; i++ {
		pumpFrames(e, standingFrame(), 1)
		step(e, clk)
	}
	if e.Phase() != PhaseComplete {
		t.Fatalf("phase after 30 perfect seconds: %v", e.Phase())
	}
	rep := e.Report()
	if rep.TotalSeconds != 30 || rep.PerfectSeconds != 30 {
		t.Fatalf("ledger: total=%d perfect=%d", rep.TotalSeconds, rep.PerfectSeconds)
	}
	if rep.Grade != 100 || rep.Letter != "A+" {
		t.Fatalf("grade=%v letter=%q", rep.Grade, rep.Letter)
	}
	if rep.Items[0].Seconds != 30 {
		t.Fatalf("item seconds = %d", rep.Items[0].Seconds)
	}
	if rep.Items[0].AvgScore < 99 {
		t.Fatalf("item avg score = %v", rep.Items[0].AvgScore)
	}
}

func TestEstablishingTimeoutAutoStarts(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30)}})
	calibrate(t, e, clk)

	// Never matches and voice never finishes: both gates must fall back to
	// their timeouts.
	for i := 0; i < 10; i++ {
		pumpFrames(e, tuckFrame(), 1)
		step(e, clk)
	}
	if e.Phase() != PhaseEstablishing {
		t.Fatalf("after instruction timeout: phase %v", e.Phase())
	}
	for i := 0; i < 10; i++ {
		pumpFrames(e, tuckFrame(), 1)
		step(e, clk)
	}
	if e.Phase() != PhaseActiveHold {
		t.Fatalf("after establishing timeout: phase %v", e.Phase())
	}
	if got := e.Snapshot().RemainingSeconds; got != 30 {
		t.Fatalf("hold timer moved without good form: remaining %d", got)
	}
}

func TestAlertFiresOnceOnDipEdge(t *testing.T) {
	clk := newFakeClock()
	var alerts []Alert
	e := newTestEngine(t, clk, Config{
		Items:       []Item{standingItem(t, 60)},
		AlertPreset: AlertsModerate,
		OnAlert:     func(a Alert) { alerts = append(alerts, a) },
	})
	calibrate(t, e, clk)
	enterHold(t, e, clk, standingFrame())

	// Establish the hold in good form first.
	for i := 0; i < 5; i++ {
		pumpFrames(e, standingFrame(), 1)
		step(e, clk)
	}
	if len(alerts) != 0 {
		t.Fatalf("alerts during good form: %d", len(alerts))
	}

	// Dip: smoothing settles well into the worst tier, then one tick lands.
	pumpFrames(e, tuckFrame(), 30)
	step(e, clk)
	if len(alerts) != 1 {
		t.Fatalf("alerts after dip = %d, want 1", len(alerts))
	}
	step(e, clk)
	if len(alerts) != 1 {
		t.Fatalf("sustained worst tier re-fired: %d alerts", len(alerts))
	}

	// Recover, then dip again inside the 30s cooldown: swallowed.
	pumpFrames(e, standingFrame(), 30)
	step(e, clk)
	pumpFrames(e, tuckFrame(), 30)
	step(e, clk)
	if len(alerts) != 1 {
		t.Fatalf("cooldown did not swallow re-entry: %d alerts", len(alerts))
	}

	// Recover, wait out the cooldown, dip once more: fires again.
	pumpFrames(e, standingFrame(), 30)
	step(e, clk)
	clk.Advance(31 * time.Second)
	e.OnTick()
	pumpFrames(e, tuckFrame(), 30)
	step(e, clk)
	if len(alerts) != 2 {
		t.Fatalf("alerts after cooldown expiry = %d, want 2", len(alerts))
	}
}

func TestPauseFreezesHoldTimer(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30)}})
	calibrate(t, e, clk)
	enterHold(t, e, clk, standingFrame())

	for i := 0; i < 5; i++ {
		pumpFrames(e, standingFrame(), 1)
		step(e, clk)
	}
	before := e.Snapshot().RemainingSeconds

	e.Apply(CmdPause)
	e.OnTick()
	if e.Phase() != PhasePaused {
		t.Fatalf("phase after pause: %v", e.Phase())
	}
	for i := 0; i < 10; i++ {
		step(e, clk)
	}
	if got := e.Snapshot().RemainingSeconds; got != before {
		t.Fatalf("remaining moved while paused: %d -> %d", before, got)
	}

	e.Apply(CmdResume)
	e.OnTick()
	if e.Phase() != PhaseActiveHold {
		t.Fatalf("phase after resume: %v", e.Phase())
	}
	pumpFrames(e, standingFrame(), 1)
	step(e, clk)
	if got := e.Snapshot().RemainingSeconds; got != before-1 {
		t.Fatalf("remaining after resume tick = %d, want %d", got, before-1)
	}
}

func TestSkipAndTransition(t *testing.T) {
	clk := newFakeClock()
	second := standingItem(t, 30)
	second.PoseID = "tuck"
	second.Name = "Tuck"
	second.Reference = refFromFrame(t, "base", tuckFrame())
	second.TransitionMs = 2000
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30), second}})
	calibrate(t, e, clk)

	e.Apply(CmdSkip)
	e.OnTick()
	if e.Phase() != PhaseTransitioning {
		t.Fatalf("after skip: phase %v", e.Phase())
	}

	// Midway through the transition the overlay blends the two references.
	clk.Advance(time.Second)
	mid := e.OverlayFrame()
	fromX := standingFrame()[pose.LeftWrist].X
	toX := tuckFrame()[pose.LeftWrist].X
	wantX := (fromX + toX) / 2
	if math.Abs(mid[pose.LeftWrist].X-wantX) > 1e-9 {
		t.Fatalf("overlay midpoint x = %v, want %v", mid[pose.LeftWrist].X, wantX)
	}

	clk.Advance(time.Second)
	e.OnTick()
	if e.Phase() != PhaseInstructions {
		t.Fatalf("after transition: phase %v", e.Phase())
	}
	if got := e.Snapshot().ItemIndex; got != 1 {
		t.Fatalf("item index = %d, want 1", got)
	}

	// Skipping the last item completes the session.
	e.Apply(CmdSkip)
	e.OnTick()
	if e.Phase() != PhaseComplete {
		t.Fatalf("after final skip: phase %v", e.Phase())
	}
}

func TestSmoothingReseedsOnNewItem(t *testing.T) {
	clk := newFakeClock()
	second := standingItem(t, 30)
	second.PoseID = "tuck"
	second.Name = "Tuck"
	second.Reference = refFromFrame(t, "base", tuckFrame())
	second.TransitionMs = 2000
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30), second}})
	calibrate(t, e, clk)

	// Settle the smoothed state deep into the first pose.
	pumpFrames(e, standingFrame(), 30)

	e.Apply(CmdSkip)
	e.OnTick()
	clk.Advance(2 * time.Second)
	e.OnTick()
	if e.Phase() != PhaseInstructions {
		t.Fatalf("after transition: phase %v", e.Phase())
	}

	// The first frame of the new item must come back exactly, not blended
	// with the previous pose's smoothed position.
	raw := tuckFrame()
	e.OnFrame(raw, true)
	got := e.OverlayFrame()
	for _, i := range []int{pose.LeftShoulder, pose.LeftAnkle} {
		if got[i] != raw[i] {
			t.Fatalf("keypoint %d carried stale motion: got %+v, want %+v", i, got[i], raw[i])
		}
	}
}

func TestEndCommandFromAnyPhase(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30)}})
	e.Apply(CmdStart)
	e.OnTick()
	e.Apply(CmdEnd)
	e.OnTick()
	if e.Phase() != PhaseComplete {
		t.Fatalf("end from calibrating: phase %v", e.Phase())
	}
}

func TestSkipEstablishing(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30)}})
	calibrate(t, e, clk)
	e.Apply(CmdSkipEstablishing)
	e.OnTick()
	if e.Phase() != PhaseActiveHold {
		t.Fatalf("after skip_establishing: phase %v", e.Phase())
	}
}

func TestToggles(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30)}})
	snap := e.Snapshot()
	if !snap.VoiceEnabled || !snap.AmbientEnabled {
		t.Fatal("voice and ambient should start enabled")
	}
	e.Apply(CmdToggleVoice)
	e.Apply(CmdToggleAmbient)
	e.OnTick()
	snap = e.Snapshot()
	if snap.VoiceEnabled || snap.AmbientEnabled {
		t.Fatal("toggles did not flip")
	}
}

func TestNoPersonAfterMissStreak(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(t, clk, Config{
		Items:         []Item{standingItem(t, 30)},
		NoPersonAfter: 5,
	})
	calibrate(t, e, clk)

	for i := 0; i < 4; i++ {
		e.OnFrame(pose.Frame{}, false)
	}
	if e.Snapshot().NoPerson {
		t.Fatal("noPerson set before streak threshold")
	}
	e.OnFrame(pose.Frame{}, false)
	if !e.Snapshot().NoPerson {
		t.Fatal("noPerson not set after streak threshold")
	}
	e.OnFrame(standingFrame(), true)
	if e.Snapshot().NoPerson {
		t.Fatal("noPerson not cleared by a detected frame")
	}
}

func TestVariationLabelInReport(t *testing.T) {
	clk := newFakeClock()
	ref, err := scoring.NewReference(
		scoring.Target{Name: "upright", Angles: pose.ExtractAngles(standingFrame()), Landmarks: standingFrame()},
		scoring.Target{Name: "folded", Angles: pose.ExtractAngles(tuckFrame()), Landmarks: tuckFrame()},
	)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	e := newTestEngine(t, clk, Config{Items: []Item{{
		PoseID: "forward-fold", Name: "Forward Fold", HoldSeconds: 30, Reference: ref,
	}}})
	calibrate(t, e, clk)
	enterHold(t, e, clk, tuckFrame())

	pumpFrames(e, tuckFrame(), 10)
	e.Apply(CmdSkip)
	e.OnTick()
	if e.Phase() != PhaseComplete {
		t.Fatalf("phase %v", e.Phase())
	}
	if got := e.Report().Items[0].Variation; got != "folded" {
		t.Fatalf("variation = %q, want %q", got, "folded")
	}
}

func TestInvalidFrameIgnored(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(t, clk, Config{Items: []Item{standingItem(t, 30)}})
	calibrate(t, e, clk)
	enterHold(t, e, clk, standingFrame())

	before := e.Snapshot().Score
	bad := standingFrame()
	bad[pose.Nose].X = math.NaN()
	e.OnFrame(bad, true)
	if got := e.Snapshot().Score; got != before {
		t.Fatalf("NaN frame changed score: %v -> %v", before, got)
	}
}
