package supervisor

import "errors"

// ErrAbnormalExit reports a service that returned without error while it
// was supposed to keep running.
var ErrAbnormalExit = errors.New("service exited unexpectedly")

type OutcomeKind uint8

const (
	OutcomeCancelled OutcomeKind = iota + 1
	OutcomeFailed
	OutcomeAbnormalExit
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	case OutcomeAbnormalExit:
		return "abnormal_exit"
	default:
		return "unknown"
	}
}

// Outcome is how one supervised service ended.
type Outcome struct {
	Kind    OutcomeKind
	Service string
	// Err is nil for OutcomeCancelled and names the service otherwise.
	Err error
}

// decide picks the outcome that stands for the whole run. The tunnel's
// failure wins, then the relay's; two cancellations are a clean stop.
func decide(tunnel, relay Outcome) Outcome {
	if tunnel.Kind != OutcomeCancelled {
		return tunnel
	}
	if relay.Kind != OutcomeCancelled {
		return relay
	}
	return Outcome{Kind: OutcomeCancelled}
}
