package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingRequestResponse(t *testing.T) {
	sent := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	req := NewTimingRequest(3, sent)
	assert.Equal(t, PayloadTimingRequest, req.PayloadType)
	assert.True(t, req.Marker)
	assert.Equal(t, NewNTPTime(sent), req.SendTime)

	buf, err := req.Marshal()
	require.NoError(t, err)
	decoded, err := Decode(buf)
	require.NoError(t, err)

	received := sent.Add(10 * time.Millisecond)
	resp := NewTimingResponse(decoded.(*TimingPacket), received, received.Add(time.Millisecond))
	assert.Equal(t, PayloadTimingResponse, resp.PayloadType)
	assert.Equal(t, uint16(3), resp.Sequence)
	assert.Equal(t, req.SendTime, resp.ReferenceTime)
	assert.Equal(t, NewNTPTime(received), resp.ReceivedTime)
}

func TestTimingEstimator(t *testing.T) {
	local := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	remoteAhead := 2 * time.Second

	// 20ms each way, 1ms processing on the remote side
	t1 := local
	t2 := local.Add(20 * time.Millisecond).Add(remoteAhead)
	t3 := t2.Add(time.Millisecond)
	t4 := local.Add(41 * time.Millisecond)

	e := NewTimingEstimator()
	e.Update(&TimingPacket{
		Header:        NewHeader(PayloadTimingResponse, 1),
		ReferenceTime: NewNTPTime(t1),
		ReceivedTime:  NewNTPTime(t2),
		SendTime:      NewNTPTime(t3),
	}, t4)

	assert.Equal(t, 1, e.Samples())
	assert.InDelta(t, float64(remoteAhead), float64(e.Offset()), float64(time.Microsecond))
	assert.InDelta(t, float64(40*time.Millisecond), float64(e.RoundTrip()), float64(time.Microsecond))

	remote := NewNTPTime(local.Add(remoteAhead).Add(time.Second))
	assert.WithinDuration(t, local.Add(time.Second), e.RemoteToLocal(remote), time.Millisecond)
}

func TestTimingEstimatorRejectsSingleOutlier(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sample := func(start time.Time, oneWay time.Duration, offset time.Duration) *TimingPacket {
		return &TimingPacket{
			Header:        NewHeader(PayloadTimingResponse, 1),
			ReferenceTime: NewNTPTime(start),
			ReceivedTime:  NewNTPTime(start.Add(oneWay + offset)),
			SendTime:      NewNTPTime(start.Add(oneWay + offset)),
		}
	}

	e := NewTimingEstimator()
	e.Update(sample(base, 10*time.Millisecond, time.Second), base.Add(20*time.Millisecond))
	assert.InDelta(t, float64(time.Second), float64(e.Offset()), float64(time.Microsecond))

	// a congested exchange with a skewed offset is ignored once
	slow := base.Add(time.Second)
	e.Update(sample(slow, 200*time.Millisecond, 3*time.Second), slow.Add(400*time.Millisecond))
	assert.InDelta(t, float64(time.Second), float64(e.Offset()), float64(time.Microsecond))

	// a second one in a row is accepted
	slow = slow.Add(time.Second)
	e.Update(sample(slow, 200*time.Millisecond, 3*time.Second), slow.Add(400*time.Millisecond))
	assert.InDelta(t, float64(3*time.Second), float64(e.Offset()), float64(time.Microsecond))
	assert.Equal(t, 3, e.Samples())
}
