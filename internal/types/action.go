package types

// Action is the fixed control vocabulary shared by the policy learner and the
// scenario planner.
type Action uint8

const (
	ActionWait Action = iota
	ActionEscalate
	ActionStabilize
	ActionAdapt
	ActionExplore
	ActionCoordinate
)

// NumActions is the size of the action vocabulary.
const NumActions = 6

// AllActions returns the vocabulary in declaration order.
func AllActions() []Action {
	return []Action{ActionWait, ActionEscalate, ActionStabilize, ActionAdapt, ActionExplore, ActionCoordinate}
}

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionEscalate:
		return "escalate"
	case ActionStabilize:
		return "stabilize"
	case ActionAdapt:
		return "adapt"
	case ActionExplore:
		return "explore"
	case ActionCoordinate:
		return "coordinate"
	default:
		return "unknown"
	}
}

// Valid reports whether a belongs to the vocabulary.
func (a Action) Valid() bool {
	return a < NumActions
}
