//go:build !unix

package relay

import (
	"errors"
	"net"
	"syscall"
)

func reuseAddr(_, _ string, _ syscall.RawConn) error { return nil }

func isTemporaryAccept(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
