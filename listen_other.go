//go:build !linux

package vntpd

import "syscall"

func udpControl(network, address string, c syscall.RawConn) error {
	return nil
}
