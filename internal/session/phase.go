// Package session drives a manifest-based coaching session: the ordered
// phases a session moves through, the per-second form-time ledger, and the
// alert throttle. One Engine owns one session's state end to end.
package session

import "fmt"

// Phase is the current stage of a session. Transitions are total: every tick
// has exactly one legal next phase given the current phase and inputs.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseCalibrating
	PhaseCountdown
	PhaseInstructions
	PhaseEstablishing
	PhaseActiveHold
	PhaseTransitioning
	PhasePaused
	PhaseComplete
)

var phaseNames = [...]string{
	"loading", "calibrating", "countdown", "instructions",
	"establishing", "active_hold", "transitioning", "paused", "complete",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Command is a remote-control input. Commands are queued and applied
// atomically between frame/tick boundaries, never mid-computation.
type Command string

const (
	CmdStart            Command = "start"
	CmdPause            Command = "pause"
	CmdResume           Command = "resume"
	CmdSkip             Command = "skip"
	CmdEnd              Command = "end"
	CmdToggleVoice      Command = "toggle_voice"
	CmdToggleAmbient    Command = "toggle_ambient"
	CmdSkipEstablishing Command = "skip_establishing"
)

var validCommands = map[Command]bool{
	CmdStart: true, CmdPause: true, CmdResume: true, CmdSkip: true,
	CmdEnd: true, CmdToggleVoice: true, CmdToggleAmbient: true,
	CmdSkipEstablishing: true,
}

// ParseCommand validates a raw command string from the wire.
func ParseCommand(raw string) (Command, error) {
	c := Command(raw)
	if !validCommands[c] {
		return "", fmt.Errorf("session: unknown command %q", raw)
	}
	return c, nil
}
