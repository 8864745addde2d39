package rtp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTimeProvider is a manually advanced clock.
type mockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func newTestController(clock TimeProvider) *RetransmitController {
	return NewRetransmitController(DefaultRetransmitConfig(125), clock)
}

func TestRetransmitControllerSequenceHandling(t *testing.T) {
	tests := []struct {
		name     string
		received uint16
		expected uint16
		missing  []uint16
		requests []RetransmitRequest
	}{
		{"advance", 101, 101, []uint16{}, nil},
		{"gap", 105, 105, []uint16{101, 102, 103, 104}, []RetransmitRequest{{First: 101, Count: 4}}},
		{"duplicate", 99, 100, []uint16{}, nil},
		{"same sequence", 100, 100, []uint16{}, nil},
		{"resync", 30000, 30000, []uint16{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(newMockTimeProvider())
			assert.Nil(t, c.OnTransmit(100))

			requests := c.OnTransmit(tt.received)
			assert.Equal(t, tt.requests, requests)
			assert.Equal(t, tt.expected, c.Expected())
			assert.Equal(t, tt.missing, c.Missing())
		})
	}
}

func TestRetransmitControllerWrapAround(t *testing.T) {
	c := newTestController(newMockTimeProvider())
	c.OnTransmit(65535)

	requests := c.OnTransmit(2)
	assert.Equal(t, []RetransmitRequest{{First: 0, Count: 2}}, requests)
	assert.Equal(t, []uint16{0, 1}, c.Missing())
	assert.Equal(t, uint16(2), c.Expected())

	requests = c.OnTransmit(65535)
	assert.Nil(t, requests)
	assert.Equal(t, uint16(2), c.Expected(), "late packet must not move expected")
}

func TestRetransmitControllerRecovery(t *testing.T) {
	c := newTestController(newMockTimeProvider())
	c.OnTransmit(10)
	c.OnTransmit(14)
	require.Equal(t, []uint16{11, 12, 13}, c.Missing())

	c.OnRetransmit(12)
	assert.Equal(t, []uint16{11, 13}, c.Missing())

	c.OnTransmit(11)
	assert.Equal(t, []uint16{13}, c.Missing())
	assert.Equal(t, uint16(14), c.Expected())

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Recovered)
	assert.Equal(t, uint64(1), stats.Duplicates)
}

func TestRetransmitControllerTimeoutAndAttempts(t *testing.T) {
	clock := newMockTimeProvider()
	c := newTestController(clock)
	c.OnTransmit(1)

	assert.Equal(t, []RetransmitRequest{{First: 2, Count: 2}}, c.OnTransmit(4))

	clock.Advance(DefaultRetransmitTimeout / 2)
	assert.Nil(t, c.OnTransmit(5), "requests are not repeated before the timeout")

	clock.Advance(DefaultRetransmitTimeout / 2)
	assert.Equal(t, []RetransmitRequest{{First: 2, Count: 2}}, c.Sweep())

	clock.Advance(DefaultRetransmitTimeout)
	assert.Equal(t, []RetransmitRequest{{First: 2, Count: 2}}, c.Sweep())

	clock.Advance(DefaultRetransmitTimeout)
	assert.Nil(t, c.Sweep())
	assert.Empty(t, c.Missing(), "entries are evicted after the last attempt")

	stats := c.Stats()
	assert.Equal(t, uint64(6), stats.Requested)
	assert.Equal(t, uint64(2), stats.Lost)
}

func TestRetransmitControllerBatching(t *testing.T) {
	c := newTestController(newMockTimeProvider())
	c.OnTransmit(100)
	c.OnTransmit(103)
	requests := c.OnTransmit(106)
	assert.Equal(t, []RetransmitRequest{{First: 104, Count: 2}}, requests, "earlier run was already requested")

	c.Reset()
	c.OnTransmit(200)
	c.OnTransmit(203)
	c.OnRetransmit(201)
	assert.Equal(t, []uint16{202}, c.Missing())
}

func TestRetransmitControllerCapacity(t *testing.T) {
	cfg := DefaultRetransmitConfig(125)
	cfg.Capacity = 4
	c := NewRetransmitController(cfg, newMockTimeProvider())
	c.OnTransmit(0)

	c.OnTransmit(11)
	assert.Equal(t, []uint16{7, 8, 9, 10}, c.Missing())
	assert.Equal(t, uint64(6), c.Stats().Lost)

	c.OnTransmit(14)
	assert.Equal(t, []uint16{9, 10, 12, 13}, c.Missing(), "oldest entries are evicted first")
	assert.Equal(t, uint64(8), c.Stats().Lost)
}

func TestRetransmitControllerResyncDropsTracking(t *testing.T) {
	c := newTestController(newMockTimeProvider())
	c.OnTransmit(100)
	c.OnTransmit(110)
	require.Len(t, c.Missing(), 9)

	c.OnTransmit(40000)
	assert.Empty(t, c.Missing())
	assert.Equal(t, uint16(40000), c.Expected())
	assert.Equal(t, uint64(1), c.Stats().Resyncs)
	assert.Equal(t, uint64(9), c.Stats().Lost)
}

func TestRetransmitControllerConcurrentAccess(t *testing.T) {
	c := newTestController(newMockTimeProvider())
	c.OnTransmit(0)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				switch g {
				case 0:
					c.OnTransmit(uint16(i * 2))
				case 1:
					c.OnRetransmit(uint16(i*2 + 1))
				default:
					c.Sweep()
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, len(c.Missing()), 125)
}
