package playback

import (
	"time"

	"github.com/opd-ai/raopcore/rtp"
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

// FramesIn converts a duration to a frame count at rate.
func FramesIn(d time.Duration, rate uint32) int64 {
	secs := int64(d / time.Second)
	rem := int64(d % time.Second)
	return secs*int64(rate) + rem*int64(rate)/int64(time.Second)
}

// DurationOf converts a frame count at rate to a duration.
func DurationOf(frames int64, rate uint32) time.Duration {
	if rate == 0 {
		return 0
	}
	secs := frames / int64(rate)
	rem := frames % int64(rate)
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(rate)
}

// LineClock counts output frames elapsed since it started.
type LineClock struct {
	clock TimeProvider
	start time.Time
	rate  uint32
}

// NewLineClock starts a line clock at rate frames per second.
func NewLineClock(clock TimeProvider, rate uint32) *LineClock {
	return &LineClock{clock: clock, start: clock.Now(), rate: rate}
}

// Now returns the current local frame time.
func (l *LineClock) Now() int64 {
	return FramesIn(l.clock.Since(l.start), l.rate)
}

// ClockSync translates between remote RTP frame time and local line frame
// time. It is not safe for concurrent use; JitterBuffer guards it with its
// own lock.
type ClockSync struct {
	synced bool
	offset int64

	hasRef bool
	ref    int64
}

// Unwrap extends a 32-bit remote timestamp to the 64-bit remote frame time
// closest to the last one seen.
func (c *ClockSync) Unwrap(remote uint32) int64 {
	if !c.hasRef {
		c.hasRef = true
		c.ref = int64(remote)
		return c.ref
	}
	v := rtp.UnwrapTimestamp(c.ref, remote)
	if v > c.ref {
		c.ref = v
	}
	return v
}

// Sync sets the offset so that remote plays at local frame localNow and
// returns how far the offset moved. The timestamp is unwrapped against the
// current reference even for an initial sync, so remote frame times stay
// continuous across a wrap; an initial sync also moves the reference back
// when the sender restarted at an earlier timestamp.
func (c *ClockSync) Sync(remote uint32, localNow int64, initial bool) int64 {
	remoteTime := c.Unwrap(remote)
	if initial {
		c.ref = remoteTime
	}
	offset := remoteTime - localNow
	delta := offset - c.offset
	if !c.synced {
		delta = 0
	}
	c.offset = offset
	c.synced = true
	return delta
}

// Synced reports whether a sync has been applied.
func (c *ClockSync) Synced() bool { return c.synced }

// Offset returns remote minus local frame time.
func (c *ClockSync) Offset() int64 { return c.offset }

// ToRemote converts a local frame time to remote frame time.
func (c *ClockSync) ToRemote(local int64) int64 { return local + c.offset }

// FromRemote converts a remote frame time to local frame time.
func (c *ClockSync) FromRemote(remote int64) int64 { return remote - c.offset }

// Reset forgets the offset and the unwrap reference.
func (c *ClockSync) Reset() {
	*c = ClockSync{}
}
