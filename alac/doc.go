// Package alac implements the Apple Lossless (ALAC) frame decoder used by
// RAOP audio streams.
//
// The decoder is bit-exact with the reference decoder shipped by AirPlay
// receivers: an adaptive Golomb-Rice entropy stage recovers prediction
// residuals, and an adaptive FIR predictor reconstructs the samples, which
// are then deinterlaced into little-endian interleaved PCM.
//
// # Stream Configuration
//
// Every stream is set up once from the format options negotiated by the
// session layer (the SDP "fmtp" attribute):
//
//	cfg, err := alac.ParseFormatOptions("96 352 0 16 40 10 14 2 255 0 0 44100")
//	if err != nil {
//	    return err
//	}
//	dec, err := alac.NewDecoder(cfg)
//
// # Decoding
//
//	pcm, err := dec.DecodeFrame(payload)
//	if err != nil {
//	    var decErr *alac.DecodeError
//	    if errors.As(err, &decErr) { ... }
//	}
//
// Only 16 and 24-bit sample sizes and prediction type 0 are supported; the
// remaining codec branches fail with ErrUnsupportedSampleSize and
// ErrUnsupportedPredictionType.
//
// # Thread Safety
//
// A Decoder owns scratch buffers sized to the stream's maximum frame and is
// NOT safe for concurrent use. Each stream owns its own Decoder.
package alac
