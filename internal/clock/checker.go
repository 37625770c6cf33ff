// Package clock checks the host clock against an NTP server.
//
// WireGuard rejects a handshake whose timestamp is not newer than the last
// one it accepted from the same peer, so a server whose clock stepped
// backwards across a restart cannot reconnect until it catches up again.
package clock

import (
	"context"
	"time"

	"github.com/beevik/ntp"
)

const (
	DefaultServer    = "pool.ntp.org"
	DefaultThreshold = 500 * time.Millisecond
	queryTimeout     = 5 * time.Second
)

type Phase uint8

const (
	PhaseUnchecked Phase = iota + 1
	PhaseHealthy
	PhaseUnhealthyOffset
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUnchecked:
		return "unchecked"
	case PhaseHealthy:
		return "healthy"
	case PhaseUnhealthyOffset:
		return "unhealthy_offset"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

type Status struct {
	Offset    time.Duration
	Phase     Phase
	Error     string
	CheckedAt time.Time
}

// QueryFunc returns the local clock's offset from server.
type QueryFunc func(ctx context.Context, server string) (time.Duration, error)

type Checker struct {
	Server    string
	Threshold time.Duration
	// Query defaults to an NTP query.
	Query QueryFunc
	Now   func() time.Time
}

// Check queries the server once and classifies the offset.
func (c *Checker) Check(ctx context.Context) Status {
	server := c.Server
	if server == "" {
		server = DefaultServer
	}
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	query := c.Query
	if query == nil {
		query = queryNTP
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	offset, err := query(ctx, server)
	if err != nil {
		return Status{Phase: PhaseError, Error: err.Error(), CheckedAt: now()}
	}
	phase := PhaseUnhealthyOffset
	if offset.Abs() < threshold {
		phase = PhaseHealthy
	}
	return Status{Offset: offset, Phase: phase, CheckedAt: now()}
}

func queryNTP(ctx context.Context, server string) (time.Duration, error) {
	timeout := queryTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}
