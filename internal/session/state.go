package session

import "fmt"

// State is the orchestrator's view of the profiling session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCollecting
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateStarting:   "starting",
	StateRunning:    "running",
	StateStopping:   "stopping",
	StateCollecting: "collecting",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Session is the process-wide session record. Active is true while a
// collection cycle is in flight; it is distinct from whether the engine is
// running.
type Session struct {
	State              State `json:"state"`
	Active             bool  `json:"active"`
	AutoCaptureEnabled bool  `json:"autoCaptureEnabled"`
}
