package alac

import (
	"errors"
	"fmt"
)

// Sentinel errors for alac package operations.
// These errors enable reliable error classification using errors.Is().

// Bitstream errors.
var (
	// ErrTruncated indicates a read past the end of the frame payload.
	ErrTruncated = errors.New("bitstream truncated")

	// ErrInvalidBitCount indicates a read width outside [0,32].
	ErrInvalidBitCount = errors.New("bit count out of range")

	// ErrInvalidUnread indicates a rewind before the start of the payload.
	ErrInvalidUnread = errors.New("cannot unread before start of bitstream")

	// ErrMalformedFrame indicates a structurally impossible frame, such as a
	// zero run that overflows the frame.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrFrameTooLarge indicates an explicit sample count above the
	// configured maximum samples per frame.
	ErrFrameTooLarge = errors.New("frame exceeds maximum samples per frame")
)

// Unsupported feature errors.
var (
	// ErrUnsupportedChannelConfig indicates a channel tag other than mono or stereo.
	ErrUnsupportedChannelConfig = errors.New("unsupported channel configuration")

	// ErrUnsupportedPredictionType indicates a prediction type other than adaptive FIR.
	ErrUnsupportedPredictionType = errors.New("unsupported prediction type")

	// ErrUnsupportedSampleSize indicates a sample size other than 16 or 24 bits.
	ErrUnsupportedSampleSize = errors.New("unsupported sample size")
)

// Configuration errors.
var (
	// ErrInvalidConfig indicates unusable stream parameters.
	ErrInvalidConfig = errors.New("invalid stream configuration")
)

// DecodeError reports a failure while decoding one frame. The frame is
// discarded as a whole; no partial output is produced.
type DecodeError struct {
	// Stage names the part of the frame being decoded.
	Stage string
	// Channel is the channel index, or -1 when not channel specific.
	Channel int
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Channel >= 0 {
		return fmt.Sprintf("alac decode %s (channel %d): %v", e.Stage, e.Channel, e.Err)
	}
	return fmt.Sprintf("alac decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(stage string, channel int, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Stage: stage, Channel: channel, Err: err}
}
