// Package control exposes a running session to a remote controller over a
// WebSocket. Events flow out and commands flow in as msgpack-encoded
// binary messages, mirroring the session's Command/Event channels.
package control

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/1ureka/quickscreen/internal/protocol"
	"github.com/1ureka/quickscreen/internal/session"
)

// MessageType identifies the kind of control message.
type MessageType string

// Commands (controller → session).
const (
	MsgStop   MessageType = "stop"
	MsgAccept MessageType = "accept"
	MsgRefuse MessageType = "refuse"
	MsgLeave  MessageType = "leave"
)

// Events (session → controller).
const (
	MsgJoinRequested MessageType = "join_requested"
	MsgClientLeft    MessageType = "client_left"
	MsgJoinResponse  MessageType = "join_response"
	MsgFrameReady    MessageType = "frame_ready"
)

// Message is the msgpack structure exchanged over the WebSocket.
type Message struct {
	Type     MessageType `msgpack:"type"`
	ID       uint16      `msgpack:"id,omitempty"`
	Accepted bool        `msgpack:"accepted,omitempty"`
	Payload  []byte      `msgpack:"payload,omitempty"`
}

var commandKinds = map[MessageType]session.CommandKind{
	MsgStop:   session.CmdStop,
	MsgAccept: session.CmdAccept,
	MsgRefuse: session.CmdRefuse,
	MsgLeave:  session.CmdLeave,
}

var eventKinds = map[MessageType]session.EventKind{
	MsgJoinRequested: session.EventJoinRequested,
	MsgClientLeft:    session.EventClientLeft,
	MsgJoinResponse:  session.EventJoinResponse,
	MsgFrameReady:    session.EventFrameReady,
}

// FromCommand converts a session command into a message.
func FromCommand(cmd session.Command) Message {
	return Message{Type: MessageType(cmd.Kind.String()), ID: uint16(cmd.ID)}
}

// FromEvent converts a session event into a message.
func FromEvent(ev session.Event) Message {
	return Message{
		Type:     MessageType(ev.Kind.String()),
		ID:       uint16(ev.ID),
		Accepted: ev.Accepted,
		Payload:  ev.Payload,
	}
}

// Command converts the message back into a session command.
func (m Message) Command() (session.Command, error) {
	kind, ok := commandKinds[m.Type]
	if !ok {
		return session.Command{}, fmt.Errorf("not a command: %q", m.Type)
	}
	return session.Command{Kind: kind, ID: protocol.ClientID(m.ID)}, nil
}

// Event converts the message back into a session event.
func (m Message) Event() (session.Event, error) {
	kind, ok := eventKinds[m.Type]
	if !ok {
		return session.Event{}, fmt.Errorf("not an event: %q", m.Type)
	}
	return session.Event{
		Kind:     kind,
		ID:       protocol.ClientID(m.ID),
		Accepted: m.Accepted,
		Payload:  m.Payload,
	}, nil
}

func encode(m Message) ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	return data, nil
}

func decode(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode control message: %w", err)
	}
	return m, nil
}
