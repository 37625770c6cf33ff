//go:build unix

package relay

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets several client connections share the configured UDP source
// address, one socket each.
func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// isTemporaryAccept reports accept failures worth retrying after a pause.
func isTemporaryAccept(err error) bool {
	return errors.Is(err, unix.ECONNABORTED) ||
		errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOBUFS) ||
		errors.Is(err, unix.ENOMEM)
}

// isRefused reports the ICMP port-unreachable error a connected UDP socket
// surfaces when nothing listens on the target yet.
func isRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}
