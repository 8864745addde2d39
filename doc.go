// Package raopcore receives a RAOP (AirPlay) lossless audio stream and plays
// it out as continuous, clock-synchronized PCM.
//
// Session negotiation happens elsewhere; it hands this package the stream's
// format options, the AES key and IV and the sender's control and timing
// addresses. From there a Receiver listens on the three UDP channels and
// drives the pipeline:
//
//	audio    AudioTransmit   -> decrypt -> ALAC decode -> loss tracking -> jitter buffer
//	control  Sync            -> clock offset
//	         AudioRetransmit -> same stages as audio
//	timing   TimingRequest / TimingResponse -> clock offset estimate
//
// # Getting Started
//
//	opts := raopcore.NewOptions()
//	params := raopcore.SessionParams{
//	    FormatOptions: "96 352 0 16 40 10 14 2 255 0 0 44100",
//	    AESKey:        key,
//	    AESIV:         iv,
//	    ControlAddr:   senderControl,
//	    TimingAddr:    senderTiming,
//	}
//
//	r, err := raopcore.NewReceiver(opts, params, sink)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Start()
//	defer r.Close()
//
// The sink receives interleaved little-endian PCM at the stream's sample
// rate. Lost packets are requested again on the control channel; whatever
// cannot be recovered in time plays as silence.
//
// # Errors
//
// Malformed packets and undecodable frames are fatal for the stream: the
// first such error stops it and is reported by Receiver.Err and Stream.Err.
// Duplicates, late packets and loss are handled internally and only show up
// in the logs, Stream.Statistics and the Prometheus metrics.
//
// # Configuration
//
// Options can be loaded from YAML:
//
//	opts, err := raopcore.LoadOptions("receiver.yaml")
//
// # Core Types
//
//   - [Receiver]: the three UDP channels, the timing task and the stream
//   - [Stream]: the per-stream pipeline stages and their state
//   - [Options]: listener addresses and tuning, with YAML tags
//   - [SessionParams]: what session negotiation hands over
package raopcore
