package checkout

type State string

const (
	StateReviewing  State = "reviewing"
	StateConfirming State = "confirming"
	StatePlaced     State = "placed"
)

func (s State) IsTerminal() bool {
	return s == StatePlaced
}

func (s State) String() string {
	return string(s)
}

// CanTransitionTo reports whether the flow may move from s to next.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateReviewing:
		return next == StateConfirming
	case StateConfirming:
		return next == StateReviewing || next == StatePlaced
	}
	return false
}
