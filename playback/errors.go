package playback

import "errors"

// Sentinel errors for playback package operations.
var (
	// ErrInvalidFormat indicates a PCM format with a zero field.
	ErrInvalidFormat = errors.New("invalid PCM format")

	// ErrInvalidConfig indicates unusable buffer durations.
	ErrInvalidConfig = errors.New("invalid jitter buffer configuration")

	// ErrNilSink indicates a missing output sink.
	ErrNilSink = errors.New("sink cannot be nil")
)
