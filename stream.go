package raopcore

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/raopcore/alac"
	"github.com/opd-ai/raopcore/crypto"
	"github.com/opd-ai/raopcore/limits"
	"github.com/opd-ai/raopcore/metrics"
	"github.com/opd-ai/raopcore/playback"
	"github.com/opd-ai/raopcore/rtp"
	"github.com/opd-ai/raopcore/transport"
	"github.com/sirupsen/logrus"
)

// StreamStatistics is a snapshot of one stream's counters.
type StreamStatistics struct {
	ID            string
	Received      uint64
	Retransmitted uint64
	Decoded       uint64
	Requests      uint64
	Retransmit    rtp.RetransmitStats
	Playback      playback.Statistics
}

// Stream is the receive pipeline of one audio stream. Audio packets pass
// through decryption, decoding, loss tracking and the jitter buffer in that
// order. The first protocol or decode error stops the stream.
type Stream struct {
	id         uuid.UUID
	params     SessionParams
	config     alac.StreamConfig
	decryptor  *crypto.PayloadDecryptor
	retransmit *rtp.RetransmitController
	buffer     *playback.JitterBuffer
	control    transport.Transport

	sweepInterval time.Duration

	// The decoder keeps per-frame scratch state.
	decMu   sync.Mutex
	decoder *alac.Decoder

	controlSeq atomic.Uint32

	received      atomic.Uint64
	retransmitted atomic.Uint64
	decoded       atomic.Uint64
	requests      atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool

	errOnce sync.Once
	err     error
	done    chan struct{}
}

// NewStream builds the pipeline for params, writing PCM to sink. Retransmit
// requests are sent through control to params.ControlAddr; a nil control
// transport disables them. A nil time provider uses the system clock.
func NewStream(opts *Options, params SessionParams, sink io.Writer, control transport.Transport, tp TimeProvider) (*Stream, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if tp == nil {
		tp = DefaultTimeProvider{}
	}

	cfg, err := params.streamConfig()
	if err != nil {
		return nil, err
	}
	decryptor, err := params.decryptor()
	if err != nil {
		return nil, err
	}
	decoder, err := alac.NewDecoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	format := playback.Format{
		SampleRate:     cfg.SampleRate,
		Channels:       int(cfg.Channels),
		BytesPerSample: cfg.BytesPerSample(),
	}
	buffer, err := playback.NewJitterBuffer(format, opts.playbackConfig(), sink, tp)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		id:         uuid.New(),
		params:     params,
		config:     cfg,
		decryptor:  decryptor,
		retransmit: rtp.NewRetransmitController(opts.retransmitConfig(cfg.PacketsPerSecond()), tp),
		buffer:     buffer,
		control:    control,
		decoder:    decoder,

		sweepInterval: opts.Retransmit.Timeout,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewStream",
		"stream_id":   s.id.String(),
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"sample_size": cfg.SampleSize,
		"frame":       cfg.MaxSamplesPerFrame,
		"encrypted":   decryptor != nil,
	}).Info("Stream created")

	return s, nil
}

// ID returns the stream identifier used in logs.
func (s *Stream) ID() uuid.UUID { return s.id }

// Config returns the codec parameters of the stream.
func (s *Stream) Config() alac.StreamConfig { return s.config }

// Start launches the drain loop and the retransmit sweep.
func (s *Stream) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	metrics.ActiveStreams.Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.buffer.Run(s.ctx); err != nil {
			s.fail(fmt.Errorf("playback: %w", err))
		}
	}()

	s.wg.Add(1)
	go s.sweepLoop()
}

// sweepLoop re-requests overdue packets when no audio arrives to drive the
// retransmit controller.
func (s *Stream) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sendRequests(s.retransmit.Sweep())
		}
	}
}

// Close stops the stream and waits for the drain loop. It is safe to call
// more than once.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	if s.started.Load() {
		metrics.ActiveStreams.Dec()
	}
	s.finish(nil)

	logrus.WithFields(logrus.Fields{
		"function":  "Stream.Close",
		"stream_id": s.id.String(),
	}).Info("Stream closed")
	return nil
}

// Done is closed once the stream has stopped.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the error that stopped the stream, or nil.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Flush drops queued audio and forgets loss tracking, for a restart of the
// sender's sequence.
func (s *Stream) Flush() {
	s.buffer.Flush()
	s.retransmit.Reset()
}

// Statistics returns a snapshot of the stream's counters.
func (s *Stream) Statistics() StreamStatistics {
	return StreamStatistics{
		ID:            s.id.String(),
		Received:      s.received.Load(),
		Retransmitted: s.retransmitted.Load(),
		Decoded:       s.decoded.Load(),
		Requests:      s.requests.Load(),
		Retransmit:    s.retransmit.Stats(),
		Playback:      s.buffer.Statistics(),
	}
}

// Buffer returns the stream's jitter buffer.
func (s *Stream) Buffer() *playback.JitterBuffer { return s.buffer }

// HandleAudio processes one datagram from the audio channel.
func (s *Stream) HandleAudio(data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	pkt, err := s.decode(data)
	if err != nil {
		return err
	}

	audio, ok := pkt.(*rtp.AudioTransmitPacket)
	if !ok {
		return s.unexpected("audio", pkt)
	}
	s.received.Add(1)
	return s.processAudio(audio.Sequence, audio.Timestamp, audio.Payload, false)
}

// HandleControl processes one datagram from the control channel.
func (s *Stream) HandleControl(data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	pkt, err := s.decode(data)
	if err != nil {
		return err
	}

	switch p := pkt.(type) {
	case *rtp.SyncPacket:
		s.buffer.Sync(p.NowMinusLatency, p.Initial())
		return nil
	case *rtp.AudioRetransmitPacket:
		s.retransmitted.Add(1)
		return s.processAudio(p.OriginalSequence, p.Timestamp, p.Payload, true)
	default:
		return s.unexpected("control", pkt)
	}
}

func (s *Stream) checkOpen() error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if err := s.Err(); err != nil {
		return err
	}
	return nil
}

func (s *Stream) decode(data []byte) (rtp.Packet, error) {
	pkt, err := rtp.Decode(data)
	if err != nil {
		metrics.ProtocolErrorsTotal.Inc()
		return nil, s.fail(err)
	}
	metrics.PacketsTotal.WithLabelValues(pkt.PacketHeader().PayloadType.String()).Inc()
	return pkt, nil
}

func (s *Stream) unexpected(channel string, pkt rtp.Packet) error {
	pt := pkt.PacketHeader().PayloadType
	logrus.WithFields(logrus.Fields{
		"function":     "Stream.unexpected",
		"stream_id":    s.id.String(),
		"channel":      channel,
		"payload_type": pt.String(),
	}).Warn("Ignoring packet on wrong channel")
	return fmt.Errorf("%w: %s on %s channel", ErrUnexpectedPacket, pt, channel)
}

// processAudio runs one audio payload through the pipeline stages.
func (s *Stream) processAudio(seq uint16, timestamp uint32, payload []byte, retransmitted bool) error {
	if err := limits.ValidateAudioPayload(payload); err != nil {
		metrics.ProtocolErrorsTotal.Inc()
		return s.fail(fmt.Errorf("audio payload %d: %w", seq, err))
	}

	if s.decryptor != nil {
		s.decryptor.DecryptInPlace(payload)
	}

	s.decMu.Lock()
	pcm, err := s.decoder.DecodeFrame(payload)
	s.decMu.Unlock()
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		return s.fail(fmt.Errorf("frame %d: %w", seq, err))
	}
	s.decoded.Add(1)
	metrics.FramesDecodedTotal.Inc()

	var reqs []rtp.RetransmitRequest
	if retransmitted {
		before := s.retransmit.Stats().Recovered
		reqs = s.retransmit.OnRetransmit(seq)
		if s.retransmit.Stats().Recovered > before {
			metrics.PacketsRecoveredTotal.Inc()
		}
	} else {
		reqs = s.retransmit.OnTransmit(seq)
	}
	s.sendRequests(reqs)

	if !s.buffer.Enqueue(timestamp, pcm) {
		logrus.WithFields(logrus.Fields{
			"function":      "Stream.processAudio",
			"stream_id":     s.id.String(),
			"sequence":      seq,
			"timestamp":     timestamp,
			"retransmitted": retransmitted,
		}).Debug("Frame not queued")
	}
	return nil
}

// sendRequests emits retransmit requests on the control channel. Send
// failures are logged; the sweep asks again after the timeout.
func (s *Stream) sendRequests(reqs []rtp.RetransmitRequest) {
	if len(reqs) == 0 || s.control == nil || s.params.ControlAddr == nil {
		return
	}
	for _, r := range reqs {
		if err := s.sendRequest(r, s.params.ControlAddr); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Stream.sendRequests",
				"stream_id": s.id.String(),
				"first":     r.First,
				"count":     r.Count,
				"error":     err.Error(),
			}).Warn("Failed to send retransmit request")
			continue
		}
		s.requests.Add(1)
		metrics.RetransmitRequestsTotal.Inc()
	}
}

func (s *Stream) sendRequest(r rtp.RetransmitRequest, addr net.Addr) error {
	seq := uint16(s.controlSeq.Add(1))
	hdr := rtp.NewHeader(rtp.PayloadRetransmitRequest, seq)
	hdr.Marker = true
	pkt := &rtp.RetransmitRequestPacket{Header: hdr, First: r.First, Count: r.Count}

	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function":  "Stream.sendRequest",
		"stream_id": s.id.String(),
		"first":     r.First,
		"count":     r.Count,
	}).Debug("Requesting retransmit")

	return s.control.Send(&transport.Packet{
		PacketType: transport.PacketType(rtp.PayloadRetransmitRequest),
		Data:       data,
	}, addr)
}

// fail records err as the stream's fatal error and stops it. It returns err.
func (s *Stream) fail(err error) error {
	logrus.WithFields(logrus.Fields{
		"function":  "Stream.fail",
		"stream_id": s.id.String(),
		"error":     err.Error(),
	}).Error("Stream stopped")

	s.finish(err)
	s.cancel()
	return err
}

func (s *Stream) finish(err error) {
	s.errOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}
