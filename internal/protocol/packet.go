// Package protocol defines the wire messages exchanged between a screen-sharing
// host and its peers, and the codec that converts them to and from datagrams.
package protocol

import "fmt"

// Client → Host opcodes.
const (
	OpJoinRequest uint8 = 0x01 // Peer asks to be admitted
	OpLeft        uint8 = 0x02 // Peer is leaving the session
)

// Host → Client opcodes.
const (
	OpJoinResponse uint8 = 0x01 // Admission decision
	OpFrame        uint8 = 0x02 // Opaque frame payload, may span many datagrams
)

// ClientMessageSize is the fixed size of every Client → Host message:
// Opcode(1) + ClientID(2, little-endian).
const ClientMessageSize = 3

// JoinResponseSize is the fixed size of a JoinResponse: Opcode(1) + Accepted(1).
const JoinResponseSize = 2

// ClientID identifies a peer for the lifetime of one membership attempt.
// It is picked at random by the peer and is not guaranteed to be unique.
type ClientID uint16

func (id ClientID) String() string {
	return fmt.Sprintf("%04x", uint16(id))
}

// ClientMessage is a message sent by a peer to the host.
// The set of implementations is closed: JoinRequest and Left.
type ClientMessage interface {
	clientMessage()
}

// JoinRequest asks the host to admit the sending peer.
type JoinRequest struct {
	ID ClientID
}

// Left notifies the host that the peer is gone.
type Left struct {
	ID ClientID
}

func (JoinRequest) clientMessage() {}
func (Left) clientMessage()        {}

// HostMessage is a message sent by the host to a peer.
// The set of implementations is closed: JoinResponse and Frame.
type HostMessage interface {
	hostMessage()
}

// JoinResponse carries the host's admission decision.
type JoinResponse struct {
	Accepted bool
}

// Frame carries one opaque unit of video data. Its length is implied by the
// number of bytes received, there is no length prefix on the wire.
type Frame struct {
	Payload []byte
}

func (JoinResponse) hostMessage() {}
func (Frame) hostMessage()        {}
