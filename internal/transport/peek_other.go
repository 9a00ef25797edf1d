//go:build !unix

package transport

import (
	"errors"
	"os"
	"time"

	"github.com/1ureka/quickscreen/internal/util"
)

// peekWait is how long the fallback path polls for a datagram.
const peekWait = time.Millisecond

// peek reads the next datagram ahead into a one-slot stash where the
// platform has no MSG_PEEK support. readDatagram hands the stash out first.
func (c *Conn) peek() (n int, first byte, err error) {
	if c.stash == nil {
		if err := c.udp.SetReadDeadline(time.Now().Add(peekWait)); err != nil {
			return 0, 0, err
		}

		size, from, err := c.udp.ReadFrom(c.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return 0, 0, ErrNoDatagram
			}
			return 0, 0, err
		}

		util.Stats.AddRecv(size)

		data := make([]byte, size)
		copy(data, c.buf[:size])
		c.stash = &datagram{data: data, from: from}
	}

	if len(c.stash.data) == 0 {
		return 0, 0, nil
	}
	return 1, c.stash.data[0], nil
}
