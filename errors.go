package raopcore

import "errors"

// Sentinel errors for raopcore operations.
// These errors enable reliable error classification using errors.Is().

// Configuration errors.
var (
	// ErrInvalidOptions indicates options that fail validation.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrInvalidSession indicates unusable session parameters.
	ErrInvalidSession = errors.New("invalid session parameters")
)

// Stream errors.
var (
	// ErrStreamClosed indicates use of a stream after Close.
	ErrStreamClosed = errors.New("stream closed")

	// ErrUnexpectedPacket indicates a well-formed packet on the wrong channel.
	ErrUnexpectedPacket = errors.New("unexpected packet for channel")
)
