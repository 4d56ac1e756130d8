package session

import "encoding/json"

// State is a session's position in its lifecycle. Transitions are
// monotonic: created -> running -> one of the four terminal states, and a
// terminal session never changes state again.
type State int

const (
	Created State = iota
	Running
	Completed
	Failed
	Cancelled
	TimedOut
)

var stateNames = map[State]string{
	Created:   "created",
	Running:   "running",
	Completed: "completed",
	Failed:    "failed",
	Cancelled: "cancelled",
	TimedOut:  "timed_out",
}

var stateFromName = map[string]State{
	"created":   Created,
	"running":   Running,
	"completed": Completed,
	"failed":    Failed,
	"cancelled": Cancelled,
	"timed_out": TimedOut,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := stateFromName[name]; ok {
		*s = v
	}
	return nil
}

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	switch s {
	case Completed, Failed, Cancelled, TimedOut:
		return true
	}
	return false
}
