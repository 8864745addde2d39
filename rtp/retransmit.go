package rtp

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeProvider abstracts time operations for deterministic testing.
// Implementations must be safe for concurrent use.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since the given time.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// Retransmit defaults.
const (
	DefaultGapLimit           = 1000
	DefaultDuplicateThreshold = 1000
	DefaultRetransmitTimeout  = 150 * time.Millisecond
	DefaultMaxAttempts        = 3
	DefaultMissingCapacity    = 125
)

// RetransmitConfig tunes loss detection and recovery.
type RetransmitConfig struct {
	// GapLimit is the largest forward jump treated as packet loss; larger
	// jumps resynchronize.
	GapLimit uint16
	// DuplicateThreshold is the largest backward jump treated as a
	// duplicate or late packet.
	DuplicateThreshold uint16
	// Timeout is the wait before a missing packet is requested again.
	Timeout time.Duration
	// MaxAttempts is the number of requests per missing packet.
	MaxAttempts int
	// Capacity bounds the tracked packets; the oldest are given up first.
	Capacity int
}

// DefaultRetransmitConfig returns the defaults with capacity sized to about
// one second of packets.
func DefaultRetransmitConfig(packetsPerSecond int) RetransmitConfig {
	capacity := packetsPerSecond
	if capacity <= 0 {
		capacity = DefaultMissingCapacity
	}
	return RetransmitConfig{
		GapLimit:           DefaultGapLimit,
		DuplicateThreshold: DefaultDuplicateThreshold,
		Timeout:            DefaultRetransmitTimeout,
		MaxAttempts:        DefaultMaxAttempts,
		Capacity:           capacity,
	}
}

// RetransmitRequest names a contiguous run of packets to resend.
type RetransmitRequest struct {
	First uint16
	Count uint16
}

// RetransmitStats counts the controller's decisions.
type RetransmitStats struct {
	Gaps       uint64
	Requested  uint64
	Recovered  uint64
	Lost       uint64
	Duplicates uint64
	Resyncs    uint64
}

type missingPacket struct {
	seq         uint16
	attempts    int
	lastRequest time.Time
}

// RetransmitController detects sequence gaps on the audio channel and
// schedules retransmit requests for them.
type RetransmitController struct {
	mu       sync.Mutex
	cfg      RetransmitConfig
	clock    TimeProvider
	started  bool
	expected uint16
	missing  []missingPacket
	stats    RetransmitStats
}

// NewRetransmitController creates a controller. A nil clock uses the
// system clock.
func NewRetransmitController(cfg RetransmitConfig, clock TimeProvider) *RetransmitController {
	if clock == nil {
		clock = DefaultTimeProvider{}
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultMissingCapacity
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &RetransmitController{
		cfg:     cfg,
		clock:   clock,
		missing: make([]missingPacket, 0, cfg.Capacity),
	}
}

// OnTransmit records an AudioTransmit arrival and returns the requests due.
func (c *RetransmitController) OnTransmit(seq uint16) []RetransmitRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		c.started = true
		c.expected = seq
		return nil
	}

	increase := SequenceDistance(c.expected, seq)
	decrease := SequenceDistance(seq, c.expected)

	switch {
	case increase == 1:
		c.expected = seq
	case increase > 1 && increase <= c.cfg.GapLimit:
		c.trackGapLocked(c.expected+1, increase-1)
		c.expected = seq
	case decrease <= c.cfg.DuplicateThreshold:
		c.stats.Duplicates++
		if c.removeLocked(seq) {
			c.stats.Recovered++
		}
	default:
		logrus.WithFields(logrus.Fields{
			"function": "RetransmitController.OnTransmit",
			"expected": c.expected,
			"sequence": seq,
			"dropped":  len(c.missing),
		}).Warn("Sequence discontinuity, resynchronizing")
		c.stats.Resyncs++
		c.stats.Lost += uint64(len(c.missing))
		c.missing = c.missing[:0]
		c.expected = seq
	}

	return c.sweepLocked()
}

// OnRetransmit records the arrival of a resent packet and returns the
// requests due.
func (c *RetransmitController) OnRetransmit(originalSeq uint16) []RetransmitRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.removeLocked(originalSeq) {
		c.stats.Recovered++
	}
	return c.sweepLocked()
}

// Sweep returns the requests due without recording an arrival.
func (c *RetransmitController) Sweep() []RetransmitRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Reset forgets all state; the next packet starts a new sequence.
func (c *RetransmitController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.expected = 0
	c.missing = c.missing[:0]
}

// Expected returns the sequence number the next packet is compared against.
func (c *RetransmitController) Expected() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expected
}

// Missing returns the tracked sequence numbers, oldest first.
func (c *RetransmitController) Missing() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint16, len(c.missing))
	for i, m := range c.missing {
		out[i] = m.seq
	}
	return out
}

// Stats returns a snapshot of the counters.
func (c *RetransmitController) Stats() RetransmitStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RetransmitController) trackGapLocked(first, count uint16) {
	c.stats.Gaps++
	if int(count) > c.cfg.Capacity {
		skipped := int(count) - c.cfg.Capacity
		c.stats.Lost += uint64(skipped)
		first += uint16(skipped)
		count = uint16(c.cfg.Capacity)
	}

	logrus.WithFields(logrus.Fields{
		"function": "RetransmitController.trackGap",
		"first":    first,
		"count":    count,
	}).Debug("Tracking missing packets")

	for i := uint16(0); i < count; i++ {
		if len(c.missing) == c.cfg.Capacity {
			c.stats.Lost++
			c.missing = append(c.missing[:0], c.missing[1:]...)
		}
		c.missing = append(c.missing, missingPacket{seq: first + i})
	}
}

func (c *RetransmitController) removeLocked(seq uint16) bool {
	for i, m := range c.missing {
		if m.seq == seq {
			c.missing = append(c.missing[:i], c.missing[i+1:]...)
			return true
		}
	}
	return false
}

// sweepLocked requests every entry that was never requested or whose last
// request timed out, batching contiguous runs. Entries out of attempts are
// given up.
func (c *RetransmitController) sweepLocked() []RetransmitRequest {
	if len(c.missing) == 0 {
		return nil
	}
	now := c.clock.Now()

	var requests []RetransmitRequest
	kept := c.missing[:0]
	for _, m := range c.missing {
		due := m.lastRequest.IsZero() || now.Sub(m.lastRequest) >= c.cfg.Timeout
		if !due {
			kept = append(kept, m)
			continue
		}
		if m.attempts >= c.cfg.MaxAttempts {
			c.stats.Lost++
			logrus.WithFields(logrus.Fields{
				"function": "RetransmitController.sweep",
				"sequence": m.seq,
				"attempts": m.attempts,
			}).Debug("Giving up on missing packet")
			continue
		}

		m.attempts++
		m.lastRequest = now
		kept = append(kept, m)
		c.stats.Requested++

		if n := len(requests); n > 0 && requests[n-1].First+requests[n-1].Count == m.seq {
			requests[n-1].Count++
		} else {
			requests = append(requests, RetransmitRequest{First: m.seq, Count: 1})
		}
	}
	c.missing = kept
	return requests
}
