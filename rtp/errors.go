package rtp

import (
	"errors"
	"fmt"
)

// Sentinel errors for rtp package operations.
// These errors enable reliable error classification using errors.Is().

// Framing errors.
var (
	// ErrPacketTooShort indicates a datagram smaller than its packet type requires.
	ErrPacketTooShort = errors.New("packet too short")

	// ErrInvalidVersion indicates an RTP version other than 2.
	ErrInvalidVersion = errors.New("invalid RTP version")

	// ErrUnknownPacketType indicates a payload type RAOP does not define.
	ErrUnknownPacketType = errors.New("unknown packet type")
)

// ProtocolError reports malformed or unknown framing. It is fatal for the
// stream the datagram belongs to.
type ProtocolError struct {
	// Op is the failing operation, "decode" or "marshal".
	Op          string
	PayloadType PayloadType
	Err         error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rtp %s %s: %v", e.Op, e.PayloadType, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolErr(op string, pt PayloadType, err error) error {
	return &ProtocolError{Op: op, PayloadType: pt, Err: err}
}
