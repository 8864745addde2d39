package alac

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opd-ai/raopcore/limits"
)

// Limits on stream parameters accepted from the session layer.
const (
	MaxSamplesPerFrame = limits.MaxFrameSamples
	maxChannels        = 2
	maxKModifier       = 31
)

// formatOptionCount is the number of fmtp integers after the payload type.
const formatOptionCount = 11

// StreamConfig holds the immutable per-stream codec parameters.
type StreamConfig struct {
	MaxSamplesPerFrame uint32
	CompatibleVersion  uint8
	SampleSize         uint8
	RiceHistoryMult    uint8
	RiceInitialHistory uint8
	RiceKModifier      uint8
	Channels           uint8
	MaxRun             uint16
	MaxFrameBytes      uint32
	AvgBitRate         uint32
	SampleRate         uint32
}

// DefaultStreamConfig returns the parameters AirPlay senders announce for
// 44.1 kHz 16-bit stereo.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxSamplesPerFrame: 352,
		SampleSize:         16,
		RiceHistoryMult:    40,
		RiceInitialHistory: 10,
		RiceKModifier:      14,
		Channels:           2,
		MaxRun:             255,
		SampleRate:         44100,
	}
}

// ParseFormatOptions parses the SDP fmtp vector, for example
// "96 352 0 16 40 10 14 2 255 0 0 44100". The leading payload type is
// optional. A zero channel count defaults to stereo.
func ParseFormatOptions(fmtp string) (StreamConfig, error) {
	fields := strings.Fields(fmtp)
	if len(fields) == formatOptionCount+1 {
		fields = fields[1:]
	}
	if len(fields) != formatOptionCount {
		return StreamConfig{}, fmt.Errorf("%w: expected %d format options, got %d", ErrInvalidConfig, formatOptionCount, len(fields))
	}

	values := make([]uint32, formatOptionCount)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return StreamConfig{}, fmt.Errorf("%w: format option %d: %v", ErrInvalidConfig, i, err)
		}
		values[i] = uint32(v)
	}

	for i, limit := range []uint32{1: 0xff, 2: 0xff, 3: 0xff, 4: 0xff, 5: 0xff, 6: 0xff, 7: 0xffff} {
		if limit != 0 && values[i] > limit {
			return StreamConfig{}, fmt.Errorf("%w: format option %d out of range: %d", ErrInvalidConfig, i, values[i])
		}
	}

	cfg := StreamConfig{
		MaxSamplesPerFrame: values[0],
		CompatibleVersion:  uint8(values[1]),
		SampleSize:         uint8(values[2]),
		RiceHistoryMult:    uint8(values[3]),
		RiceInitialHistory: uint8(values[4]),
		RiceKModifier:      uint8(values[5]),
		Channels:           uint8(values[6]),
		MaxRun:             uint16(values[7]),
		MaxFrameBytes:      values[8],
		AvgBitRate:         values[9],
		SampleRate:         values[10],
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}

	if err := cfg.Validate(); err != nil {
		return StreamConfig{}, err
	}
	return cfg, nil
}

// Validate checks that the decoder can handle the configuration.
func (c StreamConfig) Validate() error {
	if err := limits.ValidateFrameSamples(c.MaxSamplesPerFrame); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Channels == 0 || c.Channels > maxChannels {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedChannelConfig, c.Channels)
	}
	if c.SampleSize != 16 && c.SampleSize != 24 {
		return fmt.Errorf("%w: %d bits", ErrUnsupportedSampleSize, c.SampleSize)
	}
	if c.RiceKModifier > maxKModifier {
		return fmt.Errorf("%w: rice kmodifier %d", ErrInvalidConfig, c.RiceKModifier)
	}
	if c.SampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrInvalidConfig)
	}
	return nil
}

// BytesPerSample returns the output width of one sample of one channel.
func (c StreamConfig) BytesPerSample() int {
	return int(c.SampleSize) / 8
}

// FrameSize returns the size in bytes of one interleaved output frame
// (one sample for every channel).
func (c StreamConfig) FrameSize() int {
	return c.BytesPerSample() * int(c.Channels)
}

// PacketsPerSecond returns how many full frames the stream carries per second.
func (c StreamConfig) PacketsPerSecond() int {
	if c.MaxSamplesPerFrame == 0 {
		return 0
	}
	n := int(c.SampleRate / c.MaxSamplesPerFrame)
	if n == 0 {
		n = 1
	}
	return n
}
