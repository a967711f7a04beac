package pipeline

import "github.com/teranos/tabula/errors"

// State is a stage of a pipeline run.
type State int

// Run states, in order. Any failure before Processing goes straight to Done.
const (
	Idle State = iota
	Loading
	Validating
	Processing
	Aggregating
	Done
)

var stateNames = [...]string{"idle", "loading", "validating", "processing", "aggregating", "done"}

func (s State) String() string {
	if s < Idle || s > Done {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name, so events round-trip through JSON.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return errors.Newf("unknown run state %q", text)
}
