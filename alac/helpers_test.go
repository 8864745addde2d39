package alac

// bitWriter builds big-endian bitstreams for frame fixtures.
type bitWriter struct {
	buf []byte
	n   int
}

func (w *bitWriter) write(v uint32, bits int) *bitWriter {
	for i := bits - 1; i >= 0; i-- {
		if w.n%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << uint(7-w.n%8)
		}
		w.n++
	}
	return w
}

// bitString writes a string of '0' and '1' characters.
func (w *bitWriter) bitString(s string) *bitWriter {
	for _, ch := range s {
		if ch == '1' {
			w.write(1, 1)
		} else {
			w.write(0, 1)
		}
	}
	return w
}

// escape writes a residual with the raw escape code so the fixture does not
// depend on the adaptive Rice parameter.
func (w *bitWriter) escape(residual int32, sampleSize int) *bitWriter {
	w.write(0x1ff, 9)
	return w.write(fold(residual), sampleSize)
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}

// fold moves the sign of v into the low bit.
func fold(v int32) uint32 {
	if v >= 0 {
		return uint32(v) * 2
	}
	return uint32(-v)*2 - 1
}

func le16(samples ...int32) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = append(out, byte(s), byte(s>>8))
	}
	return out
}

func le24(samples ...int32) []byte {
	out := make([]byte, 0, len(samples)*3)
	for _, s := range samples {
		out = append(out, byte(s), byte(s>>8), byte(s>>16))
	}
	return out
}

func testConfig(channels, sampleSize uint8, maxSamples uint32) StreamConfig {
	cfg := DefaultStreamConfig()
	cfg.Channels = channels
	cfg.SampleSize = sampleSize
	cfg.MaxSamplesPerFrame = maxSamples
	return cfg
}
