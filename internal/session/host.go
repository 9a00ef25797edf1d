package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/1ureka/quickscreen/internal/capture"
	"github.com/1ureka/quickscreen/internal/protocol"
	"github.com/1ureka/quickscreen/internal/transport"
	"github.com/1ureka/quickscreen/internal/util"
)

// HostConfig configures a hosting session.
type HostConfig struct {
	Port         int           // UDP port bound on all interfaces, 0 picks one
	PollInterval time.Duration // pause after an iteration with no work
	Transport    transport.Options
}

// Host owns the listening socket, the client registry and the UI channels of
// one hosting session.
type Host struct {
	cfg    HostConfig
	source capture.Source
	log    *util.Logger

	commands chan Command
	events   chan Event
	done     chan struct{}

	// Owned by the loop goroutine once Start returns.
	conn     *transport.Conn
	registry *Registry
	emit     emitter
}

// NewHost creates a host that will stream frames produced by source.
func NewHost(cfg HostConfig, source capture.Source) *Host {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	events := make(chan Event, eventBufferSize)
	return &Host{
		cfg:      cfg,
		source:   source,
		log:      util.NewLogger("host"),
		commands: make(chan Command, commandBufferSize),
		events:   events,
		done:     make(chan struct{}),
		emit:     emitter{ch: events},
	}
}

// Start binds the socket, starts the capture source and launches the loop.
// A returned error means the session never started.
func (h *Host) Start(ctx context.Context) error {
	if h.conn != nil {
		return errors.New("host already started")
	}

	// Client messages always fit in one datagram.
	opts := h.cfg.Transport
	opts.Multipart = 0

	conn, err := transport.Listen(h.cfg.Port, opts)
	if err != nil {
		return err
	}

	if err := h.source.Start(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	h.conn = conn
	h.registry = NewRegistry()
	h.log.Infof("hosting on %v", conn.LocalAddr())

	go h.run(ctx)
	return nil
}

// Commands returns the UI → host command channel.
func (h *Host) Commands() chan<- Command { return h.commands }

// Events returns the host → UI event channel. It is closed when the loop exits.
func (h *Host) Events() <-chan Event { return h.events }

// Done is closed once the loop has exited and the socket is released.
func (h *Host) Done() <-chan struct{} { return h.done }

// Addr returns the bound socket address, or nil before Start.
func (h *Host) Addr() net.Addr {
	if h.conn == nil {
		return nil
	}
	return h.conn.LocalAddr()
}

// Accept admits a pending client.
func (h *Host) Accept(id protocol.ClientID) { h.send(Command{Kind: CmdAccept, ID: id}) }

// Refuse rejects a pending client for the rest of the session.
func (h *Host) Refuse(id protocol.ClientID) { h.send(Command{Kind: CmdRefuse, ID: id}) }

// Stop asks the loop to exit. It is observed on the next iteration.
func (h *Host) Stop() { h.send(Command{Kind: CmdStop}) }

func (h *Host) send(cmd Command) {
	select {
	case h.commands <- cmd:
	case <-h.done:
	}
}

// ---------------------------------------------------------------------------
// Loop
// ---------------------------------------------------------------------------

// run is the hosting state machine. Every iteration handles at most one
// command, at most one inbound message and at most one outbound frame.
func (h *Host) run(ctx context.Context) {
	defer h.shutdown()

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		busy := false

		select {
		case cmd := <-h.commands:
			busy = true
			if cmd.Kind == CmdStop {
				h.log.Infof("stop requested")
				return
			}
			h.handleCommand(cmd)
		default:
		}

		if h.receiveOne() {
			busy = true
		}

		if frame, ok := h.source.Next(); ok {
			busy = true
			h.broadcast(frame)
		}

		if !busy {
			idle(ctx, ticker)
		}
	}
}

func (h *Host) handleCommand(cmd Command) {
	switch cmd.Kind {
	case CmdAccept:
		h.resolve(cmd.ID, true)
	case CmdRefuse:
		h.resolve(cmd.ID, false)
	default:
		h.log.Warnf("ignoring %v command", cmd.Kind)
	}
}

// receiveOne handles at most one inbound datagram. It reports whether
// anything was consumed.
func (h *Host) receiveOne() bool {
	data, from, err := h.conn.Receive()
	if errors.Is(err, transport.ErrNoDatagram) {
		return false
	}
	if err != nil {
		h.log.Debugf("receive failed: %v", err)
		return false
	}

	msg, err := protocol.DecodeClient(data)
	if err != nil {
		h.log.Debugf("dropping datagram from %v: %v", from, err)
		return true
	}

	switch m := msg.(type) {
	case protocol.JoinRequest:
		h.registerPending(Client{ID: m.ID, Addr: from})
	case protocol.Left:
		h.remove(m.ID)
	}
	return true
}

// registerPending records a join request and tells the UI about it. When the
// UI is behind, the request is not recorded, so a retry is seen as new.
func (h *Host) registerPending(c Client) {
	if state := h.registry.State(c.ID); state != StateUnknown {
		h.log.Debugf("ignoring join request from %v (client %s is %v)", c.Addr, c.ID, state)
		return
	}

	if !h.emit.send(Event{Kind: EventJoinRequested, ID: c.ID}) {
		h.log.Warnf("event queue full, ignoring join request from client %s", c.ID)
		return
	}

	h.registry.RegisterPending(c)
	util.Stats.AddJoin()
	h.log.Infof("client %s at %v requests to join", c.ID, c.Addr)
}

// resolve applies the UI's admission decision and answers the client.
func (h *Host) resolve(id protocol.ClientID, accepted bool) {
	c, err := h.registry.Resolve(id, accepted)
	if err != nil {
		h.log.Warnf("cannot resolve client %s: %v", id, err)
		return
	}

	if accepted {
		h.log.Infof("client %s accepted", id)
	} else {
		h.log.Infof("client %s refused", id)
	}

	resp := protocol.EncodeHost(protocol.JoinResponse{Accepted: accepted})
	if err := h.conn.SendTo(resp, c.Addr); err != nil {
		h.log.Warnf("failed to answer client %s: %v", id, err)
	}
}

// remove handles a Left notice.
func (h *Host) remove(id protocol.ClientID) {
	if _, ok := h.registry.Remove(id); ok {
		h.log.Infof("client %s left", id)
	} else {
		h.log.Debugf("left from client %s (%v)", id, h.registry.State(id))
	}

	util.Stats.AddLeave()
	if !h.emit.send(Event{Kind: EventClientLeft, ID: id}) {
		h.log.Warnf("event queue full, dropping client_left for client %s", id)
	}
}

// broadcast sends one frame to every accepted client in turn.
func (h *Host) broadcast(frame []byte) {
	clients := h.registry.Accepted()
	if len(clients) == 0 {
		return
	}

	data := protocol.EncodeHost(protocol.Frame{Payload: frame})
	for _, c := range clients {
		if err := h.conn.SendTo(data, c.Addr); err != nil {
			h.log.Debugf("frame to client %s failed: %v", c.ID, err)
			continue
		}
		util.Stats.AddFrameSent()
	}
}

// shutdown releases everything the loop owns.
func (h *Host) shutdown() {
	if err := h.source.Stop(); err != nil {
		h.log.Errorf("failed to stop capture: %v", err)
	}
	if err := h.conn.Close(); err != nil {
		h.log.Debugf("close: %v", err)
	}
	pending, accepted, refused := h.registry.Counts()
	h.registry = nil

	close(h.events)
	close(h.done)
	h.log.Infof("stopped hosting (%d accepted, %d pending, %d refused)", accepted, pending, refused)
}
