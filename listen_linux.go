//go:build linux

package vntpd

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// udpControl sets SO_REUSEPORT so a restarted daemon can rebind
// while the old socket lingers.
func udpControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
