package raopcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/raopcore/metrics"
	"github.com/opd-ai/raopcore/rtp"
	"github.com/opd-ai/raopcore/transport"
	"github.com/sirupsen/logrus"
)

// Receiver owns the audio, control and timing channels of one RAOP session
// and the stream they feed.
type Receiver struct {
	opts   *Options
	params SessionParams
	clock  TimeProvider

	audio   transport.Transport
	control transport.Transport
	timing  transport.Transport

	stream    *Stream
	estimator *rtp.TimingEstimator
	timingSeq atomic.Uint32

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// NewReceiver listens on the UDP addresses in opts and builds the stream
// for params. PCM is written to sink once Start is called.
func NewReceiver(opts *Options, params SessionParams, sink io.Writer) (*Receiver, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var opened []transport.Transport
	listen := func(addr string) (transport.Transport, error) {
		t, err := transport.NewUDPTransport(addr)
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		opened = append(opened, t)
		return t, nil
	}

	audio, err := listen(opts.AudioAddr)
	if err != nil {
		return nil, err
	}
	control, err := listen(opts.ControlAddr)
	if err != nil {
		return nil, err
	}
	timing, err := listen(opts.TimingAddr)
	if err != nil {
		return nil, err
	}

	r, err := NewReceiverWithTransports(opts, params, sink, audio, control, timing, nil)
	if err != nil {
		for _, o := range opened {
			_ = o.Close()
		}
		return nil, err
	}
	return r, nil
}

// NewReceiverWithTransports builds a receiver on existing transports. The
// receiver takes ownership of them. A nil time provider uses the system
// clock.
func NewReceiverWithTransports(opts *Options, params SessionParams, sink io.Writer, audio, control, timing transport.Transport, tp TimeProvider) (*Receiver, error) {
	if audio == nil || control == nil || timing == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidSession)
	}
	if opts == nil {
		opts = NewOptions()
	}
	if tp == nil {
		tp = DefaultTimeProvider{}
	}

	stream, err := NewStream(opts, params, sink, control, tp)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Receiver{
		opts:      opts,
		params:    params,
		clock:     tp,
		audio:     audio,
		control:   control,
		timing:    timing,
		stream:    stream,
		estimator: rtp.NewTimingEstimator(),
		ctx:       ctx,
		cancel:    cancel,
	}
	r.registerHandlers()

	logrus.WithFields(logrus.Fields{
		"function":  "NewReceiver",
		"stream_id": stream.ID().String(),
		"audio":     audio.LocalAddr().String(),
		"control":   control.LocalAddr().String(),
		"timing":    timing.LocalAddr().String(),
	}).Info("Receiver ready")

	return r, nil
}

func (r *Receiver) registerHandlers() {
	r.audio.RegisterHandler(transport.PacketType(rtp.PayloadAudioTransmit), r.handleAudio)
	r.control.RegisterHandler(transport.PacketType(rtp.PayloadSync), r.handleControl)
	r.control.RegisterHandler(transport.PacketType(rtp.PayloadAudioRetransmit), r.handleControl)
	r.timing.RegisterHandler(transport.PacketType(rtp.PayloadTimingRequest), r.handleTiming)
	r.timing.RegisterHandler(transport.PacketType(rtp.PayloadTimingResponse), r.handleTiming)

	r.audio.SetDefaultHandler(r.handleStray("audio"))
	r.control.SetDefaultHandler(r.handleStray("control"))
	r.timing.SetDefaultHandler(r.handleStray("timing"))
}

// handleStray takes datagrams whose payload type has no handler on the
// channel. Unknown types stop the stream, known ones are ignored.
func (r *Receiver) handleStray(channel string) transport.PacketHandler {
	return func(packet *transport.Packet, _ net.Addr) error {
		if err := r.stream.checkOpen(); err != nil {
			return err
		}
		pkt, err := r.stream.decode(packet.Data)
		if err != nil {
			return err
		}
		return r.stream.unexpected(channel, pkt)
	}
}

func (r *Receiver) handleAudio(packet *transport.Packet, _ net.Addr) error {
	return r.stream.HandleAudio(packet.Data)
}

func (r *Receiver) handleControl(packet *transport.Packet, _ net.Addr) error {
	return r.stream.HandleControl(packet.Data)
}

func (r *Receiver) handleTiming(packet *transport.Packet, addr net.Addr) error {
	arrival := r.clock.Now()
	if err := r.stream.checkOpen(); err != nil {
		return err
	}
	pkt, err := r.stream.decode(packet.Data)
	if err != nil {
		return err
	}
	tp, ok := pkt.(*rtp.TimingPacket)
	if !ok {
		return r.stream.unexpected("timing", pkt)
	}

	if tp.PayloadType == rtp.PayloadTimingRequest {
		return r.answerTiming(tp, arrival, addr)
	}

	r.estimator.Update(tp, arrival)
	offset := r.estimator.Offset()
	rtt := r.estimator.RoundTrip()
	metrics.TimingOffsetSeconds.Set(offset.Seconds())
	metrics.TimingRoundTrip.Observe(float64(rtt) / float64(time.Millisecond))

	logrus.WithFields(logrus.Fields{
		"function":   "Receiver.handleTiming",
		"stream_id":  r.stream.ID().String(),
		"offset":     offset.String(),
		"round_trip": rtt.String(),
	}).Debug("Timing response")
	return nil
}

// answerTiming replies to a sender-initiated timing request.
func (r *Receiver) answerTiming(req *rtp.TimingPacket, arrival time.Time, addr net.Addr) error {
	resp := rtp.NewTimingResponse(req, arrival, r.clock.Now())
	data, err := resp.Marshal()
	if err != nil {
		return err
	}
	return r.timing.Send(&transport.Packet{
		PacketType: transport.PacketType(rtp.PayloadTimingResponse),
		Data:       data,
	}, addr)
}

// Start launches the stream's drain loop and the periodic timing requests.
func (r *Receiver) Start() {
	r.startOnce.Do(func() {
		r.stream.Start()

		if r.params.TimingAddr == nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Receiver.Start",
				"stream_id": r.stream.ID().String(),
			}).Warn("No sender timing address, timing requests disabled")
			return
		}
		r.wg.Add(1)
		go r.timingLoop()
	})
}

func (r *Receiver) timingLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.TimingInterval)
	defer ticker.Stop()

	for {
		if err := r.sendTimingRequest(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Receiver.timingLoop",
				"stream_id": r.stream.ID().String(),
				"error":     err.Error(),
			}).Warn("Failed to send timing request")
		}

		select {
		case <-r.ctx.Done():
			return
		case <-r.stream.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Receiver) sendTimingRequest() error {
	req := rtp.NewTimingRequest(uint16(r.timingSeq.Add(1)), r.clock.Now())
	data, err := req.Marshal()
	if err != nil {
		return err
	}
	return r.timing.Send(&transport.Packet{
		PacketType: transport.PacketType(rtp.PayloadTimingRequest),
		Data:       data,
	}, r.params.TimingAddr)
}

// Close stops the timing task and the stream, then closes the transports.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		r.wg.Wait()

		var errs []error
		errs = append(errs, r.stream.Close())
		for _, t := range []transport.Transport{r.audio, r.control, r.timing} {
			errs = append(errs, t.Close())
		}
		r.closeErr = errors.Join(errs...)

		logrus.WithFields(logrus.Fields{
			"function":  "Receiver.Close",
			"stream_id": r.stream.ID().String(),
		}).Info("Receiver closed")
	})
	return r.closeErr
}

// Err returns the error that stopped the stream, or nil.
func (r *Receiver) Err() error { return r.stream.Err() }

// Done is closed once the stream has stopped.
func (r *Receiver) Done() <-chan struct{} { return r.stream.Done() }

// Flush drops queued audio and loss tracking.
func (r *Receiver) Flush() { r.stream.Flush() }

// Stream returns the receiver's stream.
func (r *Receiver) Stream() *Stream { return r.stream }

// Timing returns the sender clock estimator.
func (r *Receiver) Timing() *rtp.TimingEstimator { return r.estimator }
