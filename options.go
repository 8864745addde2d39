package raopcore

import (
	"fmt"
	"os"
	"time"

	"github.com/opd-ai/raopcore/playback"
	"github.com/opd-ai/raopcore/rtp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Options contains receiver configuration.
type Options struct {
	// Listen addresses of the three UDP channels.
	AudioAddr   string `yaml:"audio_addr"`
	ControlAddr string `yaml:"control_addr"`
	TimingAddr  string `yaml:"timing_addr"`

	// BufferDuration is how far ahead of real time PCM is written to the sink.
	BufferDuration time.Duration `yaml:"buffer_duration"`
	// MaxQueueDuration bounds how early audio may arrive.
	MaxQueueDuration time.Duration `yaml:"max_queue_duration"`
	// TimingInterval is the period of timing requests to the sender.
	TimingInterval time.Duration `yaml:"timing_interval"`

	Retransmit RetransmitOptions `yaml:"retransmit"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
}

// RetransmitOptions tunes loss recovery.
type RetransmitOptions struct {
	GapLimit           uint16        `yaml:"gap_limit"`
	DuplicateThreshold uint16        `yaml:"duplicate_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxAttempts        int           `yaml:"max_attempts"`
}

// NewOptions creates default options.
func NewOptions() *Options {
	pb := playback.DefaultConfig()
	return &Options{
		AudioAddr:        ":6000",
		ControlAddr:      ":6001",
		TimingAddr:       ":6002",
		BufferDuration:   pb.BufferDuration,
		MaxQueueDuration: pb.MaxQueueDuration,
		TimingInterval:   rtp.DefaultTimingInterval,
		Retransmit: RetransmitOptions{
			GapLimit:           rtp.DefaultGapLimit,
			DuplicateThreshold: rtp.DefaultDuplicateThreshold,
			Timeout:            rtp.DefaultRetransmitTimeout,
			MaxAttempts:        rtp.DefaultMaxAttempts,
		},
		LogLevel: "info",
	}
}

// LoadOptions reads YAML options from path over the defaults.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	return ParseOptions(data)
}

// ParseOptions decodes YAML options over the defaults.
func ParseOptions(data []byte) (*Options, error) {
	opts := NewOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks the options for values the pipeline cannot run with.
func (o *Options) Validate() error {
	if o.AudioAddr == "" || o.ControlAddr == "" || o.TimingAddr == "" {
		return fmt.Errorf("%w: listen addresses must be set", ErrInvalidOptions)
	}
	if o.BufferDuration <= 0 || o.MaxQueueDuration < o.BufferDuration {
		return fmt.Errorf("%w: buffer %v, max queue %v", ErrInvalidOptions, o.BufferDuration, o.MaxQueueDuration)
	}
	if o.TimingInterval <= 0 {
		return fmt.Errorf("%w: timing interval %v", ErrInvalidOptions, o.TimingInterval)
	}
	if o.Retransmit.GapLimit == 0 || o.Retransmit.Timeout <= 0 || o.Retransmit.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retransmit %+v", ErrInvalidOptions, o.Retransmit)
	}
	if _, err := logrus.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

// ApplyLogLevel sets the process-wide logrus level.
func (o *Options) ApplyLogLevel() error {
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}

func (o *Options) playbackConfig() playback.Config {
	cfg := playback.DefaultConfig()
	cfg.BufferDuration = o.BufferDuration
	cfg.MaxQueueDuration = o.MaxQueueDuration
	return cfg
}

func (o *Options) retransmitConfig(packetsPerSecond int) rtp.RetransmitConfig {
	cfg := rtp.DefaultRetransmitConfig(packetsPerSecond)
	cfg.GapLimit = o.Retransmit.GapLimit
	cfg.DuplicateThreshold = o.Retransmit.DuplicateThreshold
	cfg.Timeout = o.Retransmit.Timeout
	cfg.MaxAttempts = o.Retransmit.MaxAttempts
	return cfg
}
