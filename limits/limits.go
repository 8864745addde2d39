package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagramSize is the receive buffer size of a UDP channel.
	MaxDatagramSize = 2048

	// AudioHeaderOverhead is the largest audio packet header, the 16-byte
	// retransmit form.
	AudioHeaderOverhead = 16

	// MaxAudioPayload is the largest encrypted frame carried in one datagram.
	MaxAudioPayload = MaxDatagramSize - AudioHeaderOverhead

	// MaxFrameSamples bounds the samples per frame a stream may announce.
	MaxFrameSamples = 1 << 16
)

var (
	// ErrEmpty indicates empty input.
	ErrEmpty = errors.New("empty input")

	// ErrTooLarge indicates input above its limit.
	ErrTooLarge = errors.New("input too large")
)

// ValidateSize checks data against maxSize.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateDatagram checks a received datagram. A datagram filling the whole
// receive buffer may have been truncated and is rejected.
func ValidateDatagram(data []byte) error {
	return ValidateSize(data, MaxDatagramSize-1)
}

// ValidateAudioPayload checks an encrypted audio payload.
func ValidateAudioPayload(payload []byte) error {
	if err := ValidateSize(payload, MaxAudioPayload); err != nil {
		return fmt.Errorf("audio payload: %w", err)
	}
	return nil
}

// ValidateFrameSamples checks an announced samples-per-frame value.
func ValidateFrameSamples(n uint32) error {
	if n == 0 {
		return fmt.Errorf("frame samples: %w", ErrEmpty)
	}
	if n > MaxFrameSamples {
		return fmt.Errorf("%w: %d samples per frame exceeds limit %d", ErrTooLarge, n, MaxFrameSamples)
	}
	return nil
}
