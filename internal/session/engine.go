package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bij27/hohm.studio/internal/pose"
	"github.com/bij27/hohm.studio/internal/scoring"
)

// Engine defaults, overridable per session through Config.
const (
	DefaultInstructionTimeout  = 10 * time.Second
	DefaultEstablishingTimeout = 10 * time.Second
	DefaultCountdown           = 3 * time.Second
	DefaultFormThreshold       = 0.45
	DefaultNoPersonAfter       = 30 // consecutive empty frames
	DefaultBaselineMaxDrift    = 8.0

	// Display-score smoothing. No deadband: the score readout should track,
	// only the tier boundaries need the smoothing.
	scoreAlpha = 0.3

	// Ticks longer than this are treated as a stall, not elapsed hold time.
	maxTickSeconds = 2.0
)

var (
	ErrEmptyManifest = errors.New("session: manifest has no items")
	ErrNilReference  = errors.New("session: item has no reference")
)

// Item is one pose to hold, in order.
type Item struct {
	PoseID      string
	Name        string
	Side        string
	HoldSeconds int
	Reference   *scoring.Reference

	// Skeleton interpolation leading into this item.
	TransitionMs     int
	TransitionEasing pose.Easing
}

// Timing carries the pace knobs a manifest style resolves to.
type Timing struct {
	InstructionTimeout  time.Duration
	EstablishingTimeout time.Duration
	Countdown           time.Duration
	FormThreshold       float64 // fraction of a perfect score, (0,1]
}

func (t *Timing) applyDefaults() {
	if t.InstructionTimeout <= 0 {
		t.InstructionTimeout = DefaultInstructionTimeout
	}
	if t.EstablishingTimeout <= 0 {
		t.EstablishingTimeout = DefaultEstablishingTimeout
	}
	if t.Countdown <= 0 {
		t.Countdown = DefaultCountdown
	}
	if t.FormThreshold <= 0 || t.FormThreshold > 1 {
		t.FormThreshold = DefaultFormThreshold
	}
}

// Config assembles one session. OnAlert, when set, is called synchronously
// from OnTick while the engine lock is held; it must not call back in.
type Config struct {
	Items       []Item
	Timing      Timing
	AlertPreset AlertPreset

	CalibrationTarget int
	NoPersonAfter     int
	BaselineMaxDrift  float64

	Clock   func() time.Time
	OnAlert func(Alert)
}

// ItemReport is the per-pose slice of the final report.
type ItemReport struct {
	PoseID    string  `json:"poseId"`
	Name      string  `json:"name"`
	Side      string  `json:"side,omitempty"`
	Seconds   int     `json:"seconds"`
	AvgScore  float64 `json:"avgScore"`
	Variation string  `json:"variation,omitempty"`
}

// Report is the end-of-session summary.
type Report struct {
	TotalSeconds   int          `json:"totalSeconds"`
	PerfectSeconds int          `json:"perfectSeconds"`
	GoodSeconds    int          `json:"goodSeconds"`
	OkaySeconds    int          `json:"okaySeconds"`
	NeedsWorkSecs  int          `json:"needsWorkSeconds"`
	Grade          float64      `json:"grade"`
	Letter         string       `json:"letter"`
	Items          []ItemReport `json:"items"`
}

// Snapshot is the engine state mirrored to clients.
type Snapshot struct {
	Phase               string  `json:"phase"`
	ItemIndex           int     `json:"itemIndex"`
	TotalItems          int     `json:"totalItems"`
	ItemName            string  `json:"itemName,omitempty"`
	Score               float64 `json:"score"`
	Tier                string  `json:"tier"`
	RemainingSeconds    int     `json:"remainingSeconds"`
	ElapsedSeconds      int     `json:"elapsedSeconds"`
	CalibrationProgress int     `json:"calibrationProgress"`
	NoPerson            bool    `json:"noPerson"`
	VoiceEnabled        bool    `json:"voiceEnabled"`
	AmbientEnabled      bool    `json:"ambientEnabled"`
}

type itemState struct {
	seconds   int
	scoreSum  float64
	samples   int
	variation string
}

// Engine runs one coaching session. All mutation happens under a single
// mutex; queued commands are drained at frame/tick boundaries so a command
// can never interleave with a half-applied frame.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	phase        Phase
	phaseEntered time.Time
	lastTick     time.Time
	elapsed      float64

	itemIdx int
	stats   []itemState

	display  *pose.Smoother
	overlay  *pose.Smoother
	scoreEMA *scoring.SeveritySmoother
	gate     *VisibilityGate
	throttle *Throttle
	baseline *scoring.Baseline
	tally    *scoring.VariationTally
	ledger   FormLedger

	score       float64
	smoothScore float64
	tier        scoring.Tier
	lastAngles  map[string]float64

	remaining   float64
	holdStarted bool
	voiceDone   bool
	matched     bool

	voiceEnabled   bool
	ambientEnabled bool
	missStreak     int
	noPerson       bool

	pending []Command
}

// New validates the config and builds an engine in the loading phase.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Items) == 0 {
		return nil, ErrEmptyManifest
	}
	for i, it := range cfg.Items {
		if it.Reference == nil || len(it.Reference.Targets) == 0 {
			return nil, fmt.Errorf("%w: item %d (%s)", ErrNilReference, i, it.PoseID)
		}
		if it.HoldSeconds <= 0 {
			return nil, fmt.Errorf("session: item %d (%s) has no hold duration", i, it.PoseID)
		}
	}
	cfg.Timing.applyDefaults()
	if cfg.AlertPreset == "" {
		cfg.AlertPreset = AlertsModerate
	}
	if _, ok := presetCooldowns[cfg.AlertPreset]; !ok {
		return nil, fmt.Errorf("session: unknown alert preset %q", cfg.AlertPreset)
	}
	if cfg.NoPersonAfter <= 0 {
		cfg.NoPersonAfter = DefaultNoPersonAfter
	}
	if cfg.BaselineMaxDrift <= 0 {
		cfg.BaselineMaxDrift = DefaultBaselineMaxDrift
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	items := make([]Item, len(cfg.Items))
	copy(items, cfg.Items)
	cfg.Items = items

	return &Engine{
		cfg:            cfg,
		phase:          PhaseLoading,
		display:        pose.NewSmoother(pose.DisplayAlpha),
		overlay:        pose.NewSmoother(pose.OverlayAlpha),
		scoreEMA:       scoring.NewSeveritySmoother(scoreAlpha, 0),
		gate:           NewVisibilityGate(cfg.CalibrationTarget),
		throttle:       NewThrottle(cfg.AlertPreset),
		stats:          make([]itemState, len(cfg.Items)),
		voiceEnabled:   true,
		ambientEnabled: true,
	}, nil
}

// Apply queues a command for the next frame/tick boundary.
func (e *Engine) Apply(cmd Command) {
	e.mu.Lock()
	e.pending = append(e.pending, cmd)
	e.mu.Unlock()
}

// VoiceDone marks the current item's spoken instruction as finished.
func (e *Engine) VoiceDone() {
	e.mu.Lock()
	e.voiceDone = true
	e.mu.Unlock()
}

// OnFrame feeds one landmark frame. detected is false when the estimator
// found no person at all this frame.
func (e *Engine) OnFrame(f pose.Frame, detected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drain()

	switch e.phase {
	case PhaseLoading, PhasePaused, PhaseComplete, PhaseCountdown, PhaseTransitioning:
		return
	}

	if !detected {
		e.missStreak++
		if e.missStreak >= e.cfg.NoPersonAfter {
			e.noPerson = true
		}
		return
	}
	e.missStreak = 0
	e.noPerson = false
	if !f.Valid() {
		return
	}

	disp := e.display.Smooth(f)
	e.overlay.Smooth(f)

	switch e.phase {
	case PhaseCalibrating:
		if e.gate.Observe(disp) {
			e.enterPhase(PhaseCountdown)
		}
	case PhaseInstructions, PhaseEstablishing, PhaseActiveHold:
		e.scoreFrame(disp)
	}
}

func (e *Engine) scoreFrame(disp pose.Frame) {
	angles := pose.ExtractAngles(disp)
	if len(angles) == 0 {
		return
	}
	e.lastAngles = angles

	ref := e.cfg.Items[e.itemIdx].Reference
	score, best := ref.Score(angles)
	e.score = score
	e.smoothScore = e.scoreEMA.Update(score)
	e.tier = scoring.ClassifyTier(e.smoothScore)
	if score >= e.cfg.Timing.FormThreshold*100 {
		e.matched = true
	}

	switch e.phase {
	case PhaseInstructions:
		if e.voiceDone && e.matched {
			e.enterEstablishing()
		}
	case PhaseEstablishing:
		if e.matched {
			e.enterPhase(PhaseActiveHold)
		}
	case PhaseActiveHold:
		e.tally.Record(best)
		st := &e.stats[e.itemIdx]
		st.scoreSum += score
		st.samples++
	}
}

// OnTick advances time-based state. Call once per second.
func (e *Engine) OnTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drain()

	now := e.cfg.Clock()
	dt := 0.0
	if !e.lastTick.IsZero() {
		dt = now.Sub(e.lastTick).Seconds()
	}
	e.lastTick = now
	if dt <= 0 || dt > maxTickSeconds {
		dt = 0
	}

	switch e.phase {
	case PhaseLoading, PhasePaused, PhaseComplete:
		return
	}
	e.elapsed += dt

	switch e.phase {
	case PhaseCountdown:
		if now.Sub(e.phaseEntered) >= e.cfg.Timing.Countdown {
			e.loadItem(0)
		}
	case PhaseInstructions:
		if (e.voiceDone && e.matched) || now.Sub(e.phaseEntered) >= e.cfg.Timing.InstructionTimeout {
			e.enterEstablishing()
		}
	case PhaseEstablishing:
		if e.matched || now.Sub(e.phaseEntered) >= e.cfg.Timing.EstablishingTimeout {
			e.enterPhase(PhaseActiveHold)
		}
	case PhaseActiveHold:
		e.tickHold(now, dt)
	case PhaseTransitioning:
		item := e.cfg.Items[e.itemIdx]
		if now.Sub(e.phaseEntered) >= transitionDuration(item) {
			e.loadItem(e.itemIdx)
		}
	}
}

func (e *Engine) tickHold(now time.Time, dt float64) {
	if dt == 0 {
		return
	}
	whole := e.ledger.Add(e.tier, dt)
	e.stats[e.itemIdx].seconds += whole

	if e.lastAngles != nil {
		e.baseline.Tick(e.lastAngles, e.tier.GoodForm())
	}

	// Observe every hold tick so the throttle sees recoveries too; the edge
	// detector would otherwise latch on the first dip.
	worst := e.holdStarted && e.tier == scoring.NeedsWork
	if e.throttle.Observe(now, worst) && e.cfg.OnAlert != nil {
		e.cfg.OnAlert(Alert{
			Message:  "Form slipping, reset your alignment",
			Tier:     e.tier.String(),
			Score:    math.Round(e.smoothScore),
			ItemName: e.cfg.Items[e.itemIdx].Name,
		})
	}

	if e.tier.GoodForm() {
		e.holdStarted = true
		e.remaining -= dt
		if e.remaining <= 0 {
			e.completeItem(now)
		}
	}
}

// enterEstablishing resets the match latch so establishing requires a fresh
// match (or its own timeout) rather than inheriting the instructions one.
func (e *Engine) enterEstablishing() {
	e.matched = false
	e.enterPhase(PhaseEstablishing)
}

func (e *Engine) enterPhase(p Phase) {
	e.phase = p
	e.phaseEntered = e.cfg.Clock()
}

// loadItem makes item i current and enters its instructions phase. The
// item's primary target angles are re-pointed at the adaptive baseline, so
// slow drift written by the baseline is what the scorer reads.
func (e *Engine) loadItem(i int) {
	e.itemIdx = i
	item := &e.cfg.Items[i]

	e.baseline = scoring.NewBaseline(item.Reference.Targets[0].Angles, e.cfg.BaselineMaxDrift)
	item.Reference.Targets[0].Angles = e.baseline.Values()
	e.tally = scoring.NewVariationTally(len(item.Reference.Targets))

	e.remaining = float64(item.HoldSeconds)
	e.holdStarted = false
	e.voiceDone = false
	e.matched = false
	e.score = 0
	e.smoothScore = 0
	e.tier = scoring.NeedsWork
	e.scoreEMA.Reset()
	e.throttle.ClearEdge()
	e.display.Reset()
	e.overlay.Reset()

	e.enterPhase(PhaseInstructions)
}

func (e *Engine) completeItem(now time.Time) {
	st := &e.stats[e.itemIdx]
	item := e.cfg.Items[e.itemIdx]
	if len(item.Reference.Targets) > 1 && e.tally != nil {
		st.variation = item.Reference.Targets[e.tally.Label()].Name
	}

	if e.itemIdx+1 >= len(e.cfg.Items) {
		e.enterPhase(PhaseComplete)
		return
	}
	e.itemIdx++
	e.phase = PhaseTransitioning
	e.phaseEntered = now
}

func transitionDuration(item Item) time.Duration {
	if item.TransitionMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(item.TransitionMs) * time.Millisecond
}

func (e *Engine) drain() {
	for _, cmd := range e.pending {
		e.applyLocked(cmd)
	}
	e.pending = e.pending[:0]
}

func (e *Engine) applyLocked(cmd Command) {
	switch cmd {
	case CmdStart:
		if e.phase == PhaseLoading {
			e.gate.Reset()
			e.lastTick = e.cfg.Clock()
			e.enterPhase(PhaseCalibrating)
		}
	case CmdPause:
		if e.phase == PhaseActiveHold {
			e.enterPhase(PhasePaused)
		}
	case CmdResume:
		if e.phase == PhasePaused {
			e.lastTick = e.cfg.Clock()
			e.enterPhase(PhaseActiveHold)
		}
	case CmdSkip:
		switch e.phase {
		case PhaseInstructions, PhaseEstablishing, PhaseActiveHold:
			e.completeItem(e.cfg.Clock())
		}
	case CmdEnd:
		if e.phase != PhaseComplete {
			e.enterPhase(PhaseComplete)
		}
	case CmdToggleVoice:
		e.voiceEnabled = !e.voiceEnabled
	case CmdToggleAmbient:
		e.ambientEnabled = !e.ambientEnabled
	case CmdSkipEstablishing:
		switch e.phase {
		case PhaseInstructions, PhaseEstablishing:
			e.enterPhase(PhaseActiveHold)
		}
	}
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Snapshot returns the client-facing state mirror.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	item := e.cfg.Items[e.itemIdx]
	return Snapshot{
		Phase:               e.phase.String(),
		ItemIndex:           e.itemIdx,
		TotalItems:          len(e.cfg.Items),
		ItemName:            item.Name,
		Score:               math.Round(e.smoothScore),
		Tier:                e.tier.String(),
		RemainingSeconds:    int(math.Ceil(math.Max(0, e.remaining))),
		ElapsedSeconds:      int(e.elapsed),
		CalibrationProgress: e.gate.Progress(),
		NoPerson:            e.noPerson,
		VoiceEnabled:        e.voiceEnabled,
		AmbientEnabled:      e.ambientEnabled,
	}
}

// OverlayFrame returns the skeleton to draw this instant: the interpolated
// reference during transitions, the smoothed live body otherwise.
func (e *Engine) OverlayFrame() pose.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseTransitioning {
		item := e.cfg.Items[e.itemIdx]
		from := e.cfg.Items[e.itemIdx-1].Reference.Targets[0].Landmarks
		to := item.Reference.Targets[0].Landmarks
		t := e.cfg.Clock().Sub(e.phaseEntered).Seconds() / transitionDuration(item).Seconds()
		return pose.Interpolate(from, to, t, item.TransitionEasing)
	}
	f, _ := e.overlay.Current()
	return f
}

// Report summarizes the session. Valid at any point; final after complete.
func (e *Engine) Report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	grade := e.ledger.Grade()
	rep := Report{
		TotalSeconds:   e.ledger.Total(),
		PerfectSeconds: e.ledger.Seconds(scoring.Perfect),
		GoodSeconds:    e.ledger.Seconds(scoring.Good),
		OkaySeconds:    e.ledger.Seconds(scoring.Okay),
		NeedsWorkSecs:  e.ledger.Seconds(scoring.NeedsWork),
		Grade:          grade,
		Letter:         LetterGrade(grade),
	}
	for i, it := range e.cfg.Items {
		st := e.stats[i]
		ir := ItemReport{
			PoseID:    it.PoseID,
			Name:      it.Name,
			Side:      it.Side,
			Seconds:   st.seconds,
			Variation: st.variation,
		}
		if st.samples > 0 {
			ir.AvgScore = st.scoreSum / float64(st.samples)
		}
		rep.Items = append(rep.Items, ir)
	}
	return rep
}
