package playback

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/opd-ai/raopcore/metrics"
	"github.com/sirupsen/logrus"
)

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate     uint32
	Channels       int
	BytesPerSample int
}

// FrameSize returns the bytes of one sample for every channel.
func (f Format) FrameSize() int { return f.Channels * f.BytesPerSample }

func (f Format) validate() error {
	if f.SampleRate == 0 || f.Channels <= 0 || f.BytesPerSample <= 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidFormat, f)
	}
	return nil
}

// Config tunes buffering and pacing.
type Config struct {
	// BufferDuration is how far ahead of the line clock output is written.
	BufferDuration time.Duration
	// MaxQueueDuration bounds how far ahead of the play position an entry
	// may start.
	MaxQueueDuration time.Duration
	// MinSleep and MaxSleep clamp the pause between drain steps.
	MinSleep time.Duration
	MaxSleep time.Duration
}

// DefaultConfig returns the standard buffering configuration.
func DefaultConfig() Config {
	return Config{
		BufferDuration:   200 * time.Millisecond,
		MaxQueueDuration: 4 * time.Second,
		MinSleep:         5 * time.Millisecond,
		MaxSleep:         100 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if c.BufferDuration <= 0 || c.MaxQueueDuration <= 0 {
		return fmt.Errorf("%w: durations must be positive", ErrInvalidConfig)
	}
	if c.MinSleep <= 0 || c.MaxSleep < c.MinSleep {
		return fmt.Errorf("%w: sleep bounds %v..%v", ErrInvalidConfig, c.MinSleep, c.MaxSleep)
	}
	return nil
}

// Statistics counts the buffer's decisions.
type Statistics struct {
	Enqueued      uint64
	LateDrops     uint64
	EarlyDrops    uint64
	OverlapDrops  uint64
	Trimmed       uint64
	FramesWritten uint64
	SilenceFrames uint64
	Underruns     uint64
	Syncs         uint64
	Flushes       uint64
	Queued        int
}

type entry struct {
	start int64 // remote frame time
	pcm   []byte
}

// JitterBuffer orders decoded PCM by remote frame time and writes it to the
// sink in real time.
type JitterBuffer struct {
	format     Format
	frameSize  int
	cfg        Config
	bufferLead int64
	maxQueue   int64
	sink       io.Writer
	wake       chan struct{}

	mu      sync.Mutex
	line    *LineClock
	clock   ClockSync
	entries []entry
	written int64 // remote frame time written through
	started bool
	stats   Statistics

	// entries counted in the process-wide queue gauge
	reported int
}

// NewJitterBuffer creates a buffer writing to sink. A nil time provider uses
// the system clock.
func NewJitterBuffer(format Format, cfg Config, sink io.Writer, tp TimeProvider) (*JitterBuffer, error) {
	if err := format.validate(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	if tp == nil {
		tp = DefaultTimeProvider{}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewJitterBuffer",
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
		"buffer":      cfg.BufferDuration.String(),
		"max_queue":   cfg.MaxQueueDuration.String(),
	}).Info("Creating jitter buffer")

	return &JitterBuffer{
		format:     format,
		frameSize:  format.FrameSize(),
		cfg:        cfg,
		bufferLead: FramesIn(cfg.BufferDuration, format.SampleRate),
		maxQueue:   FramesIn(cfg.MaxQueueDuration, format.SampleRate),
		sink:       sink,
		wake:       make(chan struct{}, 1),
		line:       NewLineClock(tp, format.SampleRate),
	}, nil
}

// Format returns the PCM format.
func (b *JitterBuffer) Format() Format { return b.format }

// Enqueue stores pcm to play at remote frame time remote. It reports false
// when the entry was dropped as too late or too early. Until the first sync
// there is no play position, so the queue is only bounded to span at most
// MaxQueueDuration.
func (b *JitterBuffer) Enqueue(remote uint32, pcm []byte) bool {
	frames := len(pcm) / b.frameSize
	if frames == 0 {
		return false
	}
	pcm = pcm[:frames*b.frameSize]

	b.mu.Lock()
	start := b.clock.Unwrap(remote)
	end := start + int64(frames)

	if b.clock.Synced() {
		now := b.clock.ToRemote(b.line.Now())
		position := now
		if b.started && b.written > position {
			position = b.written
		}
		if end <= position {
			b.stats.LateDrops++
			b.mu.Unlock()
			metrics.EnqueueDropsTotal.WithLabelValues("late").Inc()
			logrus.WithFields(logrus.Fields{
				"function": "JitterBuffer.Enqueue",
				"start":    start,
				"position": position,
			}).Warn("Dropping late audio")
			return false
		}
		if start > position+b.maxQueue {
			b.stats.EarlyDrops++
			b.mu.Unlock()
			metrics.EnqueueDropsTotal.WithLabelValues("early").Inc()
			logrus.WithFields(logrus.Fields{
				"function": "JitterBuffer.Enqueue",
				"start":    start,
				"position": position,
			}).Warn("Dropping audio beyond the buffering horizon")
			return false
		}
	} else if n := len(b.entries); n > 0 {
		first := min(start, b.entries[0].start)
		last := max(start, b.entries[n-1].start)
		if last-first > b.maxQueue {
			b.stats.EarlyDrops++
			b.mu.Unlock()
			metrics.EnqueueDropsTotal.WithLabelValues("early").Inc()
			logrus.WithFields(logrus.Fields{
				"function": "JitterBuffer.Enqueue",
				"start":    start,
				"first":    first,
				"last":     last,
			}).Warn("Dropping audio beyond the unsynced queue limit")
			return false
		}
	}

	i, _ := slices.BinarySearchFunc(b.entries, start, func(e entry, t int64) int {
		switch {
		case e.start < t:
			return -1
		case e.start > t:
			return 1
		}
		return 0
	})
	b.entries = slices.Insert(b.entries, i, entry{start: start, pcm: pcm})
	b.stats.Enqueued++
	queuedDelta := b.queuedDeltaLocked()
	b.mu.Unlock()

	metrics.QueuedEntries.Add(queuedDelta)

	b.notify()
	return true
}

// Sync applies a sync packet: remote is the frame time that should be
// playing now.
func (b *JitterBuffer) Sync(remote uint32, initial bool) {
	b.mu.Lock()
	delta := b.clock.Sync(remote, b.line.Now(), initial)
	jumped := delta > b.bufferLead || -delta > b.bufferLead
	if initial && jumped {
		// restart output at the new position
		b.started = false
	}
	b.stats.Syncs++
	offset := b.clock.Offset()
	b.mu.Unlock()

	metrics.SyncsTotal.Inc()
	fields := logrus.Fields{
		"function": "JitterBuffer.Sync",
		"remote":   remote,
		"offset":   offset,
		"delta":    delta,
		"initial":  initial,
	}
	if jumped {
		logrus.WithFields(fields).Warn("Clock offset jumped")
	} else {
		logrus.WithFields(fields).Debug("Clock sync")
	}
	b.notify()
}

// ToRemote converts a local line frame time to remote frame time.
func (b *JitterBuffer) ToRemote(local int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock.ToRemote(local)
}

// FromRemote converts a remote frame time to local line frame time.
func (b *JitterBuffer) FromRemote(remote int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock.FromRemote(remote)
}

// LocalNow returns the current local line frame time.
func (b *JitterBuffer) LocalNow() int64 {
	return b.line.Now()
}

// Flush drops every queued entry. The next drain step restarts output at
// the line clock.
func (b *JitterBuffer) Flush() {
	b.mu.Lock()
	dropped := len(b.entries)
	b.entries = nil
	b.started = false
	b.stats.Flushes++
	queuedDelta := b.queuedDeltaLocked()
	b.mu.Unlock()

	metrics.QueuedEntries.Add(queuedDelta)

	logrus.WithFields(logrus.Fields{
		"function": "JitterBuffer.Flush",
		"dropped":  dropped,
	}).Info("Jitter buffer flushed")
	b.notify()
}

// Statistics returns a snapshot of the counters.
func (b *JitterBuffer) Statistics() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Queued = len(b.entries)
	return s
}

// queuedDeltaLocked returns the change of the queue gauge since the last
// report and records the current length as reported.
func (b *JitterBuffer) queuedDeltaLocked() float64 {
	delta := len(b.entries) - b.reported
	b.reported = len(b.entries)
	return float64(delta)
}

func (b *JitterBuffer) releaseQueued() {
	b.mu.Lock()
	delta := -b.reported
	b.reported = 0
	b.mu.Unlock()
	metrics.QueuedEntries.Add(float64(delta))
}

func (b *JitterBuffer) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run drains the buffer until ctx is done or the sink fails.
// The buffer's entries leave the queue gauge when Run returns.
func (b *JitterBuffer) Run(ctx context.Context) error {
	timer := time.NewTimer(b.cfg.MinSleep)
	defer timer.Stop()
	defer b.releaseQueued()

	for {
		wait, err := b.step()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "JitterBuffer.Run",
				"error":    err.Error(),
			}).Error("Sink write failed")
			return err
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return nil
		case <-b.wake:
		case <-timer.C:
		}
	}
}

// step writes everything due before the horizon and returns how long to
// sleep before the next step.
func (b *JitterBuffer) step() (time.Duration, error) {
	b.mu.Lock()
	if !b.clock.Synced() {
		b.mu.Unlock()
		return b.cfg.MaxSleep, nil
	}

	now := b.clock.ToRemote(b.line.Now())
	if !b.started || b.written < now {
		if b.started {
			b.stats.Underruns++
			metrics.UnderrunsTotal.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "JitterBuffer.step",
				"written":  b.written,
				"now":      now,
			}).Debug("Output underrun, restarting at line clock")
		}
		b.written = now
		b.started = true
	}

	horizon := now + b.bufferLead
	var chunks [][]byte
	var silence int64
	for len(b.entries) > 0 && b.entries[0].start < horizon {
		e := b.entries[0]
		b.entries = b.entries[1:]
		end := e.start + int64(len(e.pcm)/b.frameSize)

		if end <= b.written {
			b.stats.OverlapDrops++
			metrics.EnqueueDropsTotal.WithLabelValues("overlap").Inc()
			continue
		}
		if gap := e.start - b.written; gap > 0 {
			chunks = append(chunks, make([]byte, gap*int64(b.frameSize)))
			silence += gap
			logrus.WithFields(logrus.Fields{
				"function": "JitterBuffer.step",
				"frames":   gap,
				"at":       b.written,
			}).Debug("Inserting silence for gap")
		}
		pcm := e.pcm
		if e.start < b.written {
			pcm = pcm[(b.written-e.start)*int64(b.frameSize):]
			b.stats.Trimmed++
		}
		chunks = append(chunks, pcm)
		b.stats.FramesWritten += uint64(len(pcm) / b.frameSize)
		b.written = end
	}
	if len(b.entries) == 0 {
		b.entries = nil
	}
	b.stats.SilenceFrames += uint64(silence)
	lead := b.written - now
	queuedDelta := b.queuedDeltaLocked()
	b.mu.Unlock()

	metrics.QueuedEntries.Add(queuedDelta)
	if silence > 0 {
		metrics.SilenceFramesTotal.Add(float64(silence))
	}
	for _, c := range chunks {
		if _, err := b.sink.Write(c); err != nil {
			return 0, fmt.Errorf("write to sink: %w", err)
		}
	}

	wait := DurationOf(lead, b.format.SampleRate) / 2
	return min(max(wait, b.cfg.MinSleep), b.cfg.MaxSleep), nil
}
