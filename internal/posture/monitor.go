package posture

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bij27/hohm.studio/internal/pose"
	"github.com/bij27/hohm.studio/internal/scoring"
)

// Monitor tuning.
const (
	severityAlpha    = 0.3
	severityDeadband = 0.05

	// Normalized-coordinate excursion the adaptive baseline may drift from
	// the calibrated reference.
	baselineMaxDrift = 0.05

	// Ticks longer than this count as a stall, not monitored time.
	maxTickSeconds = 2.0
)

// State is the monitor's phase.
type State int

const (
	StateCalibrating State = iota
	StateMonitoring
)

func (s State) String() string {
	if s == StateCalibrating {
		return "calibrating"
	}
	return "monitoring"
}

// Status is the per-frame result mirrored to the client.
type Status struct {
	State               string  `json:"state"`
	Zone                string  `json:"zone"`
	Severity            float64 `json:"severity"`
	Score               float64 `json:"score"`
	WorstMetric         string  `json:"worstMetric,omitempty"`
	Instruction         string  `json:"instruction,omitempty"`
	CalibrationProgress int     `json:"calibrationProgress"`
}

// Summary is the end-of-session report.
type Summary struct {
	SessionID       string   `json:"sessionId"`
	DurationMinutes float64  `json:"durationMinutes"`
	GoodMinutes     float64  `json:"goodMinutes"`
	WarningMinutes  float64  `json:"warningMinutes"`
	BadMinutes      float64  `json:"badMinutes"`
	GoodPercentage  float64  `json:"goodPercentage"`
	Grade           float64  `json:"grade"`
	CommonIssues    []string `json:"commonIssues"`
	Recommendations []string `json:"recommendations"`
}

// Monitor runs one desk-posture session: calibration, then continuous
// deviation scoring against the calibrated reference, with the same bounded
// adaptive baseline the pose-hold path uses.
type Monitor struct {
	mu    sync.Mutex
	clock func() time.Time

	id    uuid.UUID
	state State

	cal      *Calibrator
	ref      *scoring.PostureReference
	limits   scoring.Limits
	display  *pose.Smoother
	smoother *scoring.SeveritySmoother
	baseline *scoring.Baseline

	lastFrame   pose.Frame
	hasFrame    bool
	instruction string

	zone     scoring.Zone
	worst    scoring.Metric
	severity float64

	startedAt   time.Time
	lastTick    time.Time
	zoneSeconds [3]float64
	scoreSum    float64
	samples     int
	issueCounts map[scoring.Metric]int
}

// NewMonitor builds a monitor in the calibrating state.
func NewMonitor(clock func() time.Time) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	return &Monitor{
		clock:       clock,
		id:          uuid.New(),
		cal:         NewCalibrator(),
		limits:      scoring.DefaultLimits(),
		display:     pose.NewSmoother(pose.DisplayAlpha),
		smoother:    scoring.NewSeveritySmoother(severityAlpha, severityDeadband),
		issueCounts: make(map[scoring.Metric]int),
	}
}

// ID returns the session identifier.
func (m *Monitor) ID() uuid.UUID { return m.id }

// OnFrame feeds one landmark frame and returns the client-facing status.
func (m *Monitor) OnFrame(f pose.Frame) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !f.Valid() {
		return m.statusLocked()
	}
	disp := m.display.Smooth(f)

	switch m.state {
	case StateCalibrating:
		_, m.instruction = m.cal.AddFrame(disp)
		if m.cal.Complete() {
			ref, err := m.cal.Finalize()
			if err == nil {
				m.startMonitoring(ref)
			}
		}
	case StateMonitoring:
		d, err := m.ref.Deviations(disp)
		if err != nil {
			break
		}
		raw, worst := scoring.Severity(d, m.limits)
		m.severity = m.smoother.Update(raw)
		m.zone = scoring.ClassifyZone(m.severity)
		m.worst = worst
		m.lastFrame = disp
		m.hasFrame = true
		m.scoreSum += scoreFromSeverity(m.severity)
		m.samples++
	}
	return m.statusLocked()
}

func (m *Monitor) startMonitoring(ref *scoring.PostureReference) {
	m.ref = ref
	m.state = StateMonitoring
	now := m.clock()
	m.startedAt = now
	m.lastTick = now
	m.baseline = scoring.NewBaseline(refValues(ref), baselineMaxDrift)
	m.instruction = ""
}

// OnTick accounts elapsed time to the current zone and advances the adaptive
// baseline. Call once per second.
func (m *Monitor) OnTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateMonitoring {
		return
	}
	now := m.clock()
	dt := now.Sub(m.lastTick).Seconds()
	m.lastTick = now
	if dt <= 0 || dt > maxTickSeconds {
		return
	}

	m.zoneSeconds[m.zone] += dt
	if m.zone != scoring.ZoneGood {
		m.issueCounts[m.worst]++
	}

	if m.hasFrame {
		if q, err := scoring.Quantities(m.lastFrame); err == nil {
			m.baseline.Tick(refValues(&q), m.zone == scoring.ZoneGood)
			applyRefValues(m.ref, m.baseline.Values())
		}
	}
}

// statusLocked assembles the Status under the lock.
func (m *Monitor) statusLocked() Status {
	st := Status{
		State:               m.state.String(),
		Zone:                m.zone.String(),
		Severity:            m.severity,
		Score:               scoreFromSeverity(m.severity),
		Instruction:         m.instruction,
		CalibrationProgress: m.cal.Progress(),
	}
	if m.state == StateMonitoring {
		st.WorstMetric = m.worst.String()
		st.CalibrationProgress = 100
	}
	return st
}

// scoreFromSeverity maps smoothed severity onto the 0-10 score scale used in
// summaries: 10 at zero severity, 0 at twice the bad-zone threshold.
func scoreFromSeverity(sev float64) float64 {
	return math.Max(0, 10*(1-sev/3))
}

// Stop finalizes the session and returns its summary.
func (m *Monitor) Stop() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	good := m.zoneSeconds[scoring.ZoneGood]
	warn := m.zoneSeconds[scoring.ZoneWarning]
	bad := m.zoneSeconds[scoring.ZoneBad]
	tracked := good + warn + bad

	goodPct := 100.0
	if tracked > 0 {
		goodPct = good / tracked * 100
	}
	avgScore := 10.0
	if m.samples > 0 {
		avgScore = m.scoreSum / float64(m.samples)
	}
	// Grade blends time-in-good-zone (60%) with the average score (40%).
	grade := (goodPct / 100 * 10 * 0.6) + avgScore*0.4

	duration := 0.0
	if !m.startedAt.IsZero() {
		duration = m.clock().Sub(m.startedAt).Minutes()
	}

	issues := m.rankedIssuesLocked()
	return Summary{
		SessionID:       m.id.String(),
		DurationMinutes: duration,
		GoodMinutes:     good / 60,
		WarningMinutes:  warn / 60,
		BadMinutes:      bad / 60,
		GoodPercentage:  math.Round(goodPct*10) / 10,
		Grade:           math.Round(grade*10) / 10,
		CommonIssues:    issues,
		Recommendations: Recommendations(issues),
	}
}

func (m *Monitor) rankedIssuesLocked() []string {
	type pair struct {
		metric scoring.Metric
		count  int
	}
	pairs := make([]pair, 0, len(m.issueCounts))
	for metric, count := range m.issueCounts {
		pairs = append(pairs, pair{metric, count})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].count > pairs[j].count })
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.metric.String()
	}
	return out
}

// refValues flattens a posture reference for the adaptive baseline.
func refValues(r *scoring.PostureReference) map[string]float64 {
	return map[string]float64{
		"shoulderY":   r.ShoulderY,
		"noseY":       r.NoseY,
		"centerX":     r.CenterX,
		"noseX":       r.NoseX,
		"forwardHead": r.ForwardHead,
		"meanZ":       r.MeanZ,
		"twist":       r.Twist,
	}
}

func applyRefValues(r *scoring.PostureReference, v map[string]float64) {
	r.ShoulderY = v["shoulderY"]
	r.NoseY = v["noseY"]
	r.CenterX = v["centerX"]
	r.NoseX = v["noseX"]
	r.ForwardHead = v["forwardHead"]
	r.MeanZ = v["meanZ"]
	r.Twist = v["twist"]
}
