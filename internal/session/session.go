// Package session runs the host and peer control loops of a screen-sharing
// session. Each loop owns its socket and state on a dedicated goroutine and
// talks to the UI only through a command channel and an event channel.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/quickscreen/internal/protocol"
	"github.com/1ureka/quickscreen/internal/util"
)

// Tuning constants.
const (
	DefaultPollInterval = 5 * time.Millisecond
	commandBufferSize   = 16
	eventBufferSize     = 64
)

// CommandKind identifies a UI → session command.
type CommandKind uint8

const (
	CmdStop   CommandKind = iota + 1 // host: stop hosting
	CmdAccept                        // host: admit a pending client
	CmdRefuse                        // host: refuse a pending client
	CmdLeave                         // peer: leave the session
)

func (k CommandKind) String() string {
	switch k {
	case CmdStop:
		return "stop"
	case CmdAccept:
		return "accept"
	case CmdRefuse:
		return "refuse"
	case CmdLeave:
		return "leave"
	}
	return fmt.Sprintf("command(%d)", uint8(k))
}

// Command is sent by the UI to a session loop.
type Command struct {
	Kind CommandKind
	ID   protocol.ClientID // CmdAccept / CmdRefuse only
}

// EventKind identifies a session → UI event.
type EventKind uint8

const (
	EventJoinRequested EventKind = iota + 1 // host: a new client is pending
	EventClientLeft                         // host: a client sent Left
	EventJoinResponse                       // peer: the host decided
	EventFrameReady                         // peer: a frame arrived
)

func (k EventKind) String() string {
	switch k {
	case EventJoinRequested:
		return "join_requested"
	case EventClientLeft:
		return "client_left"
	case EventJoinResponse:
		return "join_response"
	case EventFrameReady:
		return "frame_ready"
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event is emitted by a session loop to the UI.
type Event struct {
	Kind     EventKind
	ID       protocol.ClientID // EventJoinRequested / EventClientLeft
	Accepted bool              // EventJoinResponse
	Payload  []byte            // EventFrameReady, owned by the receiver
}

// Session is the UI-facing side of a running host or peer loop.
type Session interface {
	Commands() chan<- Command
	Events() <-chan Event
	Done() <-chan struct{}
}

// emitter delivers events to the UI without ever blocking the loop. A full
// buffer means the UI is behind; the caller decides what that costs.
type emitter struct {
	ch chan Event
}

// send reports whether ev was queued.
func (e emitter) send(ev Event) bool {
	select {
	case e.ch <- ev:
		return true
	default:
		return false
	}
}

// frame queues a frame event, counting it as dropped when the UI is behind.
func (e emitter) frame(ev Event) bool {
	if e.send(ev) {
		return true
	}
	util.Stats.AddFrameDropped()
	return false
}

// idle pauses an iteration that found no work, so the loop polls at a fixed
// cadence instead of spinning.
func idle(ctx context.Context, ticker *time.Ticker) {
	select {
	case <-ticker.C:
	case <-ctx.Done():
	}
}
