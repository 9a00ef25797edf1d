//go:build unix

package transport

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// peek reports the size class and first byte of the next queued datagram
// without consuming it. n is 0 for an empty datagram and 1 otherwise.
// It never blocks; ErrNoDatagram means the socket is idle.
func (c *Conn) peek() (n int, first byte, err error) {
	// A deadline left over from a previous read would fail the raw read.
	if err := c.udp.SetReadDeadline(time.Time{}); err != nil {
		return 0, 0, err
	}

	rc, err := c.udp.SyscallConn()
	if err != nil {
		return 0, 0, err
	}

	var b [1]byte
	var recvErr error
	err = rc.Read(func(fd uintptr) bool {
		n, _, recvErr = unix.Recvfrom(int(fd), b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return 0, 0, err
	}

	if recvErr != nil {
		if errors.Is(recvErr, unix.EAGAIN) || errors.Is(recvErr, unix.EINTR) {
			return 0, 0, ErrNoDatagram
		}
		return 0, 0, fmt.Errorf("peek: %w", recvErr)
	}
	return n, b[0], nil
}
