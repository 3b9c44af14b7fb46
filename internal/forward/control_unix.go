//go:build unix

package forward

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets a forwarder rebind a port that was released moments ago and
// still has sockets in TIME_WAIT.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
