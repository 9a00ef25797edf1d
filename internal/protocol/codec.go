package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode error kinds. Every error returned by DecodeClient / DecodeHost
// matches exactly one of them with errors.Is.
var (
	ErrEmptyBuffer           = errors.New("empty buffer")
	ErrUnrecognizedSignature = errors.New("unrecognized signature")
	ErrMalformedMessage      = errors.New("malformed message")
)

// DecodeError describes a buffer that could not be decoded.
type DecodeError struct {
	Kind   error // ErrEmptyBuffer, ErrUnrecognizedSignature or ErrMalformedMessage
	Opcode uint8
	Len    int
}

func (e *DecodeError) Error() string {
	if e.Kind == ErrEmptyBuffer {
		return "decode: empty buffer"
	}
	return fmt.Sprintf("decode: %v (opcode=0x%02x, %d bytes)", e.Kind, e.Opcode, e.Len)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

func decodeError(kind error, data []byte) error {
	e := &DecodeError{Kind: kind, Len: len(data)}
	if len(data) > 0 {
		e.Opcode = data[0]
	}
	return e
}

// EncodeClient serializes a Client → Host message into its fixed 3-byte form.
// Pointer variants are accepted; a nil message encodes to nil.
func EncodeClient(msg ClientMessage) []byte {
	switch m := msg.(type) {
	case JoinRequest:
		return clientBuffer(OpJoinRequest, m.ID)
	case *JoinRequest:
		if m != nil {
			return clientBuffer(OpJoinRequest, m.ID)
		}
	case Left:
		return clientBuffer(OpLeft, m.ID)
	case *Left:
		if m != nil {
			return clientBuffer(OpLeft, m.ID)
		}
	}
	return nil
}

func clientBuffer(opcode uint8, id ClientID) []byte {
	buf := make([]byte, ClientMessageSize)
	buf[0] = opcode
	binary.LittleEndian.PutUint16(buf[1:3], uint16(id))
	return buf
}

// DecodeClient deserializes a Client → Host message.
// Bytes beyond ClientMessageSize are ignored.
func DecodeClient(data []byte) (ClientMessage, error) {
	if len(data) == 0 {
		return nil, decodeError(ErrEmptyBuffer, data)
	}

	switch data[0] {
	case OpJoinRequest, OpLeft:
		if len(data) < ClientMessageSize {
			return nil, decodeError(ErrMalformedMessage, data)
		}
		id := ClientID(binary.LittleEndian.Uint16(data[1:3]))
		if data[0] == OpJoinRequest {
			return JoinRequest{ID: id}, nil
		}
		return Left{ID: id}, nil
	default:
		return nil, decodeError(ErrUnrecognizedSignature, data)
	}
}

// EncodeHost serializes a Host → Client message. A Frame is the opcode
// followed immediately by the raw payload. Pointer variants are accepted;
// a nil message encodes to nil.
func EncodeHost(msg HostMessage) []byte {
	switch m := msg.(type) {
	case JoinResponse:
		return joinResponseBuffer(m.Accepted)
	case *JoinResponse:
		if m != nil {
			return joinResponseBuffer(m.Accepted)
		}
	case Frame:
		return frameBuffer(m.Payload)
	case *Frame:
		if m != nil {
			return frameBuffer(m.Payload)
		}
	}
	return nil
}

func joinResponseBuffer(accepted bool) []byte {
	buf := make([]byte, JoinResponseSize)
	buf[0] = OpJoinResponse
	if accepted {
		buf[1] = 1
	}
	return buf
}

func frameBuffer(payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = OpFrame
	copy(buf[1:], payload)
	return buf
}

// DecodeHost deserializes a Host → Client message. The Frame payload is
// copied, so the caller may reuse data afterwards.
func DecodeHost(data []byte) (HostMessage, error) {
	if len(data) == 0 {
		return nil, decodeError(ErrEmptyBuffer, data)
	}

	switch data[0] {
	case OpJoinResponse:
		if len(data) < JoinResponseSize {
			return nil, decodeError(ErrMalformedMessage, data)
		}
		return JoinResponse{Accepted: data[1] != 0}, nil
	case OpFrame:
		payload := make([]byte, len(data)-1)
		copy(payload, data[1:])
		return Frame{Payload: payload}, nil
	default:
		return nil, decodeError(ErrUnrecognizedSignature, data)
	}
}
