package session

import (
	"fmt"
	"time"
)

// AlertPreset names a correction-cue cooldown policy.
type AlertPreset string

const (
	AlertsAlways   AlertPreset = "always"
	AlertsModerate AlertPreset = "moderate"
	AlertsRelaxed  AlertPreset = "relaxed"
)

var presetCooldowns = map[AlertPreset]time.Duration{
	AlertsAlways:   0,
	AlertsModerate: 30 * time.Second,
	AlertsRelaxed:  120 * time.Second,
}

// ParseAlertPreset validates a preset name from config or the wire.
func ParseAlertPreset(raw string) (AlertPreset, error) {
	p := AlertPreset(raw)
	if _, ok := presetCooldowns[p]; !ok {
		return "", fmt.Errorf("session: unknown alert preset %q", raw)
	}
	return p, nil
}

// Alert is a correction cue delivered to the client.
type Alert struct {
	Message  string  `json:"message"`
	Tier     string  `json:"tier"`
	Score    float64 `json:"score"`
	ItemName string  `json:"itemName"`
}

// Throttle rate-limits correction cues. A cue is only considered on the
// entry edge into the worst tier, never on every degraded frame, and a
// cooldown then suppresses further cues for the preset's window.
type Throttle struct {
	cooldown time.Duration
	inWorst  bool
	lastFire time.Time
	fired    bool
}

func NewThrottle(preset AlertPreset) *Throttle {
	return &Throttle{cooldown: presetCooldowns[preset]}
}

// Observe records the current worst-tier condition and reports whether a
// cue should fire now. Re-entering the worst tier within the cooldown
// window is swallowed; leaving and staying out resets nothing but the edge.
func (t *Throttle) Observe(now time.Time, worst bool) bool {
	entered := worst && !t.inWorst
	t.inWorst = worst
	if !entered {
		return false
	}
	if t.fired && now.Sub(t.lastFire) < t.cooldown {
		return false
	}
	t.fired = true
	t.lastFire = now
	return true
}

// ClearEdge forgets the current worst-tier condition without touching the
// cooldown, so a new item starts from a clean edge but cannot bypass the
// session-wide rate limit.
func (t *Throttle) ClearEdge() { t.inWorst = false }

// Reset clears edge and cooldown state.
func (t *Throttle) Reset() {
	t.inWorst = false
	t.fired = false
	t.lastFire = time.Time{}
}
