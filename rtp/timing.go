package rtp

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimingInterval is how often a receiver sends timing requests.
const DefaultTimingInterval = 3 * time.Second

// NewTimingRequest builds a timing request stamped with now.
func NewTimingRequest(seq uint16, now time.Time) *TimingPacket {
	h := NewHeader(PayloadTimingRequest, seq)
	h.Marker = true
	return &TimingPacket{Header: h, SendTime: NewNTPTime(now)}
}

// NewTimingResponse answers a timing request received at received and sent
// back at now.
func NewTimingResponse(req *TimingPacket, received, now time.Time) *TimingPacket {
	h := NewHeader(PayloadTimingResponse, req.Sequence)
	h.Marker = true
	return &TimingPacket{
		Header:        h,
		ReferenceTime: req.SendTime,
		ReceivedTime:  NewNTPTime(received),
		SendTime:      NewNTPTime(now),
	}
}

// TimingEstimator keeps the offset between the sender's NTP clock and the
// local clock, from the standard four-timestamp exchange.
type TimingEstimator struct {
	mu       sync.RWMutex
	offset   time.Duration
	rtt      time.Duration
	samples  int
	rejected bool
}

// NewTimingEstimator creates an estimator with no samples.
func NewTimingEstimator() *TimingEstimator {
	return &TimingEstimator{}
}

// Update folds in a timing response that arrived at arrival. A sample whose
// round trip exceeds twice the accepted one is ignored unless the previous
// sample was ignored too.
func (e *TimingEstimator) Update(resp *TimingPacket, arrival time.Time) {
	t1 := resp.ReferenceTime
	t2 := resp.ReceivedTime
	t3 := resp.SendTime
	t4 := NewNTPTime(arrival)

	rtt := t4.Sub(t1) - t3.Sub(t2)
	offset := (t2.Sub(t1) + t3.Sub(t4)) / 2
	if rtt < 0 {
		rtt = 0
	}

	e.mu.Lock()
	if e.samples == 0 || rtt <= e.rtt*2 || e.rejected {
		e.offset = offset
		e.rtt = rtt
		e.rejected = false
	} else {
		e.rejected = true
	}
	e.samples++
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "TimingEstimator.Update",
		"offset":   offset,
		"rtt":      rtt,
	}).Debug("Timing sample")
}

// Offset returns remote clock minus local clock.
func (e *TimingEstimator) Offset() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.offset
}

// RoundTrip returns the round trip of the accepted sample.
func (e *TimingEstimator) RoundTrip() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rtt
}

// Samples returns the number of responses seen.
func (e *TimingEstimator) Samples() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.samples
}

// RemoteToLocal converts a sender NTP time to local wall-clock time.
func (e *TimingEstimator) RemoteToLocal(t NTPTime) time.Time {
	return t.Time().Add(-e.Offset())
}
