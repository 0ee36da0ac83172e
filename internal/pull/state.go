// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pull

// State is a step of a pull cycle.
type State int

const (
	Idle State = iota
	Connecting
	Fetching
	Normalizing
	Filtering
	Deduplicating
	Committing
	Errored
)

var stateNames = [...]string{
	Idle:          "idle",
	Connecting:    "connecting",
	Fetching:      "fetching",
	Normalizing:   "normalizing",
	Filtering:     "filtering",
	Deduplicating: "deduplicating",
	Committing:    "committing",
	Errored:       "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Transition is one state change of a cycle. Err is set when To is Errored.
type Transition struct {
	SourceID string
	RunID    string
	From     State
	To       State
	Err      error
}

// Observer receives transitions synchronously from the cycle's goroutine.
type Observer func(Transition)
