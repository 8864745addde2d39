package alac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatOptions(t *testing.T) {
	tests := []struct {
		name     string
		fmtp     string
		expected StreamConfig
	}{
		{
			name:     "with payload type",
			fmtp:     "96 352 0 16 40 10 14 2 255 0 0 44100",
			expected: DefaultStreamConfig(),
		},
		{
			name:     "without payload type",
			fmtp:     "352 0 16 40 10 14 2 255 0 0 44100",
			expected: DefaultStreamConfig(),
		},
		{
			name: "zero channels defaults to stereo",
			fmtp: "4096 0 24 40 10 14 0 255 0 0 48000",
			expected: StreamConfig{
				MaxSamplesPerFrame: 4096,
				SampleSize:         24,
				RiceHistoryMult:    40,
				RiceInitialHistory: 10,
				RiceKModifier:      14,
				Channels:           2,
				MaxRun:             255,
				SampleRate:         48000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseFormatOptions(tt.fmtp)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cfg)
		})
	}
}

func TestParseFormatOptionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		fmtp   string
		target error
	}{
		{"too few fields", "352 0 16", ErrInvalidConfig},
		{"not a number", "96 352 0 sixteen 40 10 14 2 255 0 0 44100", ErrInvalidConfig},
		{"byte field out of range", "96 352 0 16 400 10 14 2 255 0 0 44100", ErrInvalidConfig},
		{"unsupported sample size", "96 352 0 20 40 10 14 2 255 0 0 44100", ErrUnsupportedSampleSize},
		{"too many channels", "96 352 0 16 40 10 14 6 255 0 0 44100", ErrUnsupportedChannelConfig},
		{"frame too long", "96 70000 0 16 40 10 14 2 255 0 0 44100", ErrInvalidConfig},
		{"zero sample rate", "96 352 0 16 40 10 14 2 255 0 0 0", ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFormatOptions(tt.fmtp)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestStreamConfigSizes(t *testing.T) {
	cfg := DefaultStreamConfig()
	assert.Equal(t, 2, cfg.BytesPerSample())
	assert.Equal(t, 4, cfg.FrameSize())
	assert.Equal(t, 125, cfg.PacketsPerSecond())

	cfg.SampleSize = 24
	cfg.Channels = 1
	assert.Equal(t, 3, cfg.BytesPerSample())
	assert.Equal(t, 3, cfg.FrameSize())
}
