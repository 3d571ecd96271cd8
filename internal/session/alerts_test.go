package session

import (
	"testing"
	"time"
)

func TestThrottleFiresOnEntryEdgeOnly(t *testing.T) {
	th := NewThrottle(AlertsAlways)
	now := time.Unix(0, 0)

	if !th.Observe(now, true) {
		t.Fatal("entry edge did not fire")
	}
	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		if th.Observe(now, true) {
			t.Fatal("fired while already in worst tier")
		}
	}
	now = now.Add(time.Second)
	if th.Observe(now, false) {
		t.Fatal("fired on recovery")
	}
	now = now.Add(time.Second)
	if !th.Observe(now, true) {
		t.Fatal("second entry edge did not fire with always preset")
	}
}

func TestThrottleCooldownSwallowsReentry(t *testing.T) {
	th := NewThrottle(AlertsModerate)
	now := time.Unix(0, 0)

	if !th.Observe(now, true) {
		t.Fatal("first entry did not fire")
	}
	th.Observe(now.Add(5*time.Second), false)
	if th.Observe(now.Add(10*time.Second), true) {
		t.Fatal("re-entry inside 30s cooldown fired")
	}
	th.Observe(now.Add(15*time.Second), false)
	if !th.Observe(now.Add(31*time.Second), true) {
		t.Fatal("entry after cooldown did not fire")
	}
}

func TestThrottleClearEdge(t *testing.T) {
	th := NewThrottle(AlertsAlways)
	now := time.Unix(0, 0)
	th.Observe(now, true)
	th.ClearEdge()
	if !th.Observe(now.Add(time.Second), true) {
		t.Fatal("entry after ClearEdge did not fire")
	}
}

func TestParseAlertPreset(t *testing.T) {
	for _, ok := range []string{"always", "moderate", "relaxed"} {
		if _, err := ParseAlertPreset(ok); err != nil {
			t.Errorf("ParseAlertPreset(%q) = %v", ok, err)
		}
	}
	if _, err := ParseAlertPreset("sometimes"); err == nil {
		t.Error("unknown preset accepted")
	}
}

func TestParseCommand(t *testing.T) {
	if _, err := ParseCommand("start"); err != nil {
		t.Fatalf("start rejected: %v", err)
	}
	if _, err := ParseCommand("explode"); err == nil {
		t.Fatal("unknown command accepted")
	}
}
