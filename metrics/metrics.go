// Package metrics holds the process-wide Prometheus collectors of the
// receive pipeline. Collectors are registered with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raop_active_streams",
		Help: "Number of streams currently receiving",
	})
	QueuedEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raop_jitter_queued_entries",
		Help: "Entries waiting in all jitter buffers",
	})
	TimingOffsetSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raop_timing_offset_seconds",
		Help: "Most recent sender clock offset estimate",
	})
)

// Counters
var (
	PacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raop_packets_total",
		Help: "Packets received by payload type",
	}, []string{"type"})
	ProtocolErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raop_protocol_errors_total",
		Help: "Datagrams rejected by the packet decoder",
	})
	DecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raop_alac_decode_errors_total",
		Help: "ALAC frames that failed to decode",
	})
	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raop_alac_frames_decoded_total",
		Help: "ALAC frames decoded",
	})
	RetransmitRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raop_retransmit_requests_total",
		Help: "Retransmit request packets sent",
	})
	PacketsRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raop_packets_recovered_total",
		Help: "Missing packets that arrived late or by retransmission",
	})
	EnqueueDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raop_jitter_drops_total",
		Help: "Entries dropped by the jitter buffer by reason",
	}, []string{"reason"})
	SilenceFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raop_jitter_silence_frames_total",
		Help: "Audio frames of silence inserted for gaps",
	})
	UnderrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raop_jitter_underruns_total",
		Help: "Times the output ran dry and playback was restarted",
	})
	SyncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raop_clock_syncs_total",
		Help: "Sync packets applied to the clock offset",
	})
)

// Histograms
var (
	TimingRoundTrip = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "raop_timing_round_trip_ms",
		Help:    "Round trip of timing exchanges in milliseconds",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
	})
)
