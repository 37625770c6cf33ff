package instance

import "wgserv/internal/check"

// Phase describes where an instance is in its lifecycle.
type Phase uint8

const (
	PhaseCreated Phase = iota + 1
	PhaseConfigured
	PhaseRunning
	PhaseDestroyed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseConfigured:
		return "configured"
	case PhaseRunning:
		return "running"
	case PhaseDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Transition returns to if the move is legal and p otherwise. Illegal
// moves panic in debug builds.
func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case PhaseCreated:
		ok = to == PhaseConfigured || to == PhaseDestroyed
	case PhaseConfigured:
		ok = to == PhaseConfigured || to == PhaseRunning || to == PhaseDestroyed
	case PhaseRunning:
		ok = to == PhaseCreated || to == PhaseDestroyed
	case PhaseDestroyed:
		ok = false
	}
	check.Assertf(ok, "instance phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}
