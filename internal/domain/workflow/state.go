package workflow

// State is a node of a state machine. The set of valid states is declared per builder.
type State string

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// stateSet is the closed set of states a builder accepts
type stateSet map[State]bool

func newStateSet(states []State) stateSet {
	set := make(stateSet, len(states))
	for _, s := range states {
		set[s] = true
	}
	return set
}

// contains returns true if the state belongs to the set
func (s stateSet) contains(state State) bool {
	return s[state]
}
