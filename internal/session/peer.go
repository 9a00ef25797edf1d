package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/1ureka/quickscreen/internal/protocol"
	"github.com/1ureka/quickscreen/internal/transport"
	"github.com/1ureka/quickscreen/internal/util"
)

// PeerConfig configures a joining session.
type PeerConfig struct {
	HostAddr     string            // host:port to join
	LocalPort    int               // local UDP port, 0 picks one
	ClientID     protocol.ClientID // 0 picks a random id
	PollInterval time.Duration
	Transport    transport.Options
}

// Peer owns the connected socket and the UI channels of one join attempt.
type Peer struct {
	cfg PeerConfig
	id  protocol.ClientID
	log *util.Logger

	commands chan Command
	events   chan Event
	done     chan struct{}

	conn     *transport.Conn
	emit     emitter
	answered bool // a JoinResponse has been handled
}

// NewPeer creates a peer and picks its ClientID.
func NewPeer(cfg PeerConfig) *Peer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	id := cfg.ClientID
	if id == 0 {
		id = generateID()
	}

	events := make(chan Event, eventBufferSize)
	return &Peer{
		cfg:      cfg,
		id:       id,
		log:      util.NewLogger("peer " + id.String()),
		commands: make(chan Command, commandBufferSize),
		events:   events,
		done:     make(chan struct{}),
		emit:     emitter{ch: events},
	}
}

// generateID returns a random non-zero ClientID. Collisions between peers
// are possible.
func generateID() protocol.ClientID {
	var b [2]byte
	for {
		_, _ = rand.Read(b[:])
		if id := protocol.ClientID(binary.LittleEndian.Uint16(b[:])); id != 0 {
			return id
		}
	}
}

// Start connects to the host, sends the join request and launches the loop.
// A returned error means the session never started.
func (p *Peer) Start(ctx context.Context) error {
	if p.conn != nil {
		return errors.New("peer already started")
	}

	opts := p.cfg.Transport
	opts.Multipart = protocol.OpFrame

	conn, err := transport.Dial(p.cfg.LocalPort, p.cfg.HostAddr, opts)
	if err != nil {
		return err
	}

	if err := conn.Send(protocol.EncodeClient(protocol.JoinRequest{ID: p.id})); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send join request: %w", err)
	}

	p.conn = conn
	util.Stats.AddJoin()
	p.log.Infof("requested to join %s from %v", p.cfg.HostAddr, conn.LocalAddr())

	go p.run(ctx)
	return nil
}

// ID returns the ClientID used for this attempt.
func (p *Peer) ID() protocol.ClientID { return p.id }

// Commands returns the UI → peer command channel.
func (p *Peer) Commands() chan<- Command { return p.commands }

// Events returns the peer → UI event channel. It is closed when the loop exits.
func (p *Peer) Events() <-chan Event { return p.events }

// Done is closed once the loop has exited, Left was sent and the socket released.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Leave asks the loop to exit. It is observed on the next iteration.
func (p *Peer) Leave() {
	select {
	case p.commands <- Command{Kind: CmdLeave}:
	case <-p.done:
	}
}

// ---------------------------------------------------------------------------
// Loop
// ---------------------------------------------------------------------------

// run consumes host messages until the UI leaves or the host refuses.
func (p *Peer) run(ctx context.Context) {
	defer p.shutdown()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil || p.leaveRequested() {
			return
		}

		data, _, err := p.conn.Receive()
		switch {
		case errors.Is(err, transport.ErrNoDatagram):
			idle(ctx, ticker)
			continue
		case err != nil:
			if errors.Is(err, protocol.ErrMalformedMessage) {
				util.Stats.AddFrameDropped()
			}
			p.log.Debugf("receive failed: %v", err)
			idle(ctx, ticker)
			continue
		}

		if refused := p.handle(data); refused {
			return
		}
	}
}

// leaveRequested drains queued commands and reports whether one was Leave.
func (p *Peer) leaveRequested() bool {
	for {
		select {
		case cmd := <-p.commands:
			if cmd.Kind == CmdLeave {
				p.log.Infof("leave requested")
				return true
			}
			p.log.Warnf("ignoring %v command", cmd.Kind)
		default:
			return false
		}
	}
}

// handle dispatches one host message. It returns true when the host refused
// this peer, which ends the attempt.
//
// The host answers a join request exactly once. Any later JoinResponse, or
// one longer than its fixed size, is a frame fragment whose head was lost
// and is dropped.
func (p *Peer) handle(data []byte) bool {
	msg, err := protocol.DecodeHost(data)
	if err != nil {
		p.log.Debugf("dropping message: %v", err)
		return false
	}

	switch m := msg.(type) {
	case protocol.JoinResponse:
		if p.answered || len(data) != protocol.JoinResponseSize {
			util.Stats.AddFrameDropped()
			p.log.Debugf("dropping stray %d-byte join response", len(data))
			return false
		}
		p.answered = true

		if !p.emit.send(Event{Kind: EventJoinResponse, Accepted: m.Accepted}) {
			p.log.Warnf("event queue full, join response not delivered")
		}
		if !m.Accepted {
			p.log.Warnf("host refused the join request")
			return true
		}
		p.log.Infof("host accepted the join request")

	case protocol.Frame:
		util.Stats.AddFrameRecv()
		p.emit.frame(Event{Kind: EventFrameReady, Payload: m.Payload})
	}
	return false
}

// shutdown sends Left without waiting for any confirmation and releases the socket.
func (p *Peer) shutdown() {
	if err := p.conn.Send(protocol.EncodeClient(protocol.Left{ID: p.id})); err != nil {
		p.log.Debugf("failed to send left: %v", err)
	} else {
		util.Stats.AddLeave()
	}
	if err := p.conn.Close(); err != nil {
		p.log.Debugf("close: %v", err)
	}

	close(p.events)
	close(p.done)
	p.log.Infof("left the session")
}
