// Package transport carries serialized protocol messages of any size over a
// UDP socket, splitting them into datagrams on send and reassembling them on
// receive. It adds no sequence numbers, acknowledgements or retries.
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/1ureka/quickscreen/internal/protocol"
	"github.com/1ureka/quickscreen/internal/util"
)

// MaxDatagramSize is the largest payload a single IPv4 UDP send can carry.
const MaxDatagramSize = 65507

// Tuning defaults.
const (
	DefaultFragmentTimeout = 250 * time.Millisecond
	DefaultSocketBuffer    = 4 * 1024 * 1024
	receiveBufferSize      = 64 * 1024
)

var (
	// ErrNoDatagram is returned by Receive when nothing is queued on the socket.
	ErrNoDatagram = errors.New("no datagram available")

	// ErrIncompleteMessage is returned when the rest of a multi-datagram
	// message does not arrive in time. It matches protocol.ErrMalformedMessage.
	ErrIncompleteMessage = fmt.Errorf("%w: incomplete multi-datagram message", protocol.ErrMalformedMessage)
)

// Options tunes a Conn. Zero values select the defaults.
type Options struct {
	// DatagramSize is the fragment size used when sending. It must match on
	// both ends, since the receiver uses it to detect the final fragment.
	DatagramSize int

	// Multipart is the opcode whose messages may span several datagrams.
	// Zero disables reassembly: every datagram is one message.
	Multipart uint8

	// FragmentTimeout bounds the wait for each continuation datagram.
	FragmentTimeout time.Duration

	// SocketBuffer is the requested kernel send/receive buffer size.
	SocketBuffer int
}

func (o Options) withDefaults() Options {
	if o.DatagramSize <= 0 || o.DatagramSize > MaxDatagramSize {
		o.DatagramSize = MaxDatagramSize
	}
	if o.FragmentTimeout <= 0 {
		o.FragmentTimeout = DefaultFragmentTimeout
	}
	if o.SocketBuffer <= 0 {
		o.SocketBuffer = DefaultSocketBuffer
	}
	return o
}

// datagram is one received datagram, held by the fallback peek path.
type datagram struct {
	data []byte
	from net.Addr
}

// Conn wraps a single UDP socket. It is owned by one session goroutine and is
// not safe for concurrent use.
type Conn struct {
	udp       *net.UDPConn
	opts      Options
	connected bool

	buf   []byte    // receive buffer for one datagram
	stash *datagram // datagram read ahead by the fallback peek
}

// Listen binds a UDP socket on all interfaces at the given port (0 picks one).
func Listen(port int, opts Options) (*Conn, error) {
	udp, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP port %d: %w", port, err)
	}
	return newConn(udp, opts, false), nil
}

// Dial binds a local UDP socket (localPort 0 picks one) and connects it to
// hostAddr, so that only datagrams from the host are received.
func Dial(localPort int, hostAddr string, opts Options) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", hostAddr, err)
	}

	udp, err := net.DialUDP("udp", &net.UDPAddr{Port: localPort}, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", hostAddr, err)
	}
	return newConn(udp, opts, true), nil
}

func newConn(udp *net.UDPConn, opts Options, connected bool) *Conn {
	opts = opts.withDefaults()

	if err := udp.SetReadBuffer(opts.SocketBuffer); err != nil {
		util.LogDebug("SetReadBuffer(%d) failed: %v", opts.SocketBuffer, err)
	}
	if err := udp.SetWriteBuffer(opts.SocketBuffer); err != nil {
		util.LogDebug("SetWriteBuffer(%d) failed: %v", opts.SocketBuffer, err)
	}

	return &Conn{
		udp:       udp,
		opts:      opts,
		connected: connected,
		buf:       make([]byte, receiveBufferSize),
	}
}

// LocalAddr returns the bound local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.udp.LocalAddr()
}

// RemoteAddr returns the connected host address, or nil for a listening Conn.
func (c *Conn) RemoteAddr() net.Addr {
	if !c.connected {
		return nil
	}
	return c.udp.RemoteAddr()
}

// Close releases the socket.
func (c *Conn) Close() error {
	return c.udp.Close()
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

// SendTo sends a serialized message to addr as consecutive datagrams.
// A connected Conn ignores addr and sends to its host.
func (c *Conn) SendTo(b []byte, addr net.Addr) error {
	for _, chunk := range Split(b, c.opts.DatagramSize) {
		var (
			n   int
			err error
		)
		if c.connected {
			n, err = c.udp.Write(chunk)
		} else {
			n, err = c.udp.WriteTo(chunk, addr)
		}
		if err != nil {
			return fmt.Errorf("send to %v: %w", addr, err)
		}
		util.Stats.AddSent(n)
	}
	return nil
}

// Send sends a serialized message to the connected host.
func (c *Conn) Send(b []byte) error {
	if !c.connected {
		return errors.New("send on a listening Conn requires an address")
	}
	return c.SendTo(b, c.udp.RemoteAddr())
}

// ---------------------------------------------------------------------------
// Receive
// ---------------------------------------------------------------------------

// Receive returns the next complete message without blocking when the socket
// is idle: it peeks at the next datagram and returns ErrNoDatagram if there
// is none. A datagram starting with the multipart opcode is reassembled
// together with its continuations, each of which is awaited for at most
// FragmentTimeout. Any other datagram is consumed and returned as is.
func (c *Conn) Receive() ([]byte, net.Addr, error) {
	n, opcode, err := c.peek()
	if err != nil {
		return nil, nil, err
	}

	if n == 0 || c.opts.Multipart == 0 || opcode != c.opts.Multipart {
		d, err := c.readDatagram()
		if err != nil {
			return nil, nil, err
		}
		return d.data, d.from, nil
	}

	return c.receiveMultipart()
}

// receiveMultipart consumes datagrams until the reassembler completes.
func (c *Conn) receiveMultipart() ([]byte, net.Addr, error) {
	r := NewReassembler(c.opts.DatagramSize)
	var origin net.Addr

	for {
		d, err := c.readDatagram()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, origin, fmt.Errorf("%w (%d bytes buffered)", ErrIncompleteMessage, r.Pending())
			}
			return nil, origin, err
		}

		if origin == nil {
			origin = d.from
		} else if d.from.String() != origin.String() {
			util.LogDebug("dropping %d-byte datagram from %v during reassembly from %v", len(d.data), d.from, origin)
			continue
		}

		if msg, done := r.Feed(d.data); done {
			return msg, origin, nil
		}
	}
}

// readDatagram consumes one datagram, waiting at most FragmentTimeout.
func (c *Conn) readDatagram() (datagram, error) {
	if c.stash != nil {
		d := *c.stash
		c.stash = nil
		return d, nil
	}

	if err := c.udp.SetReadDeadline(time.Now().Add(c.opts.FragmentTimeout)); err != nil {
		return datagram{}, err
	}

	n, from, err := c.udp.ReadFrom(c.buf)
	if err != nil {
		return datagram{}, err
	}
	util.Stats.AddRecv(n)

	data := make([]byte, n)
	copy(data, c.buf[:n])
	return datagram{data: data, from: from}, nil
}
