package alac

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Channel tags in the frame header.
const (
	channelTagMono   = 0
	channelTagStereo = 1
)

const (
	predictionTypeAdaptiveFIR = 0
	maxPredictorOrder         = 31
)

// channelState holds the scratch buffers and per-frame parameters of one
// channel.
type channelState struct {
	residuals []int32
	samples   []int32
	lowBytes  []int32

	predictionType uint32
	quant          uint
	riceModifier   int32
	coefs          [maxPredictorOrder]int16
	order          int
}

func newChannelState(maxSamples int) *channelState {
	return &channelState{
		residuals: make([]int32, maxSamples),
		samples:   make([]int32, maxSamples),
		lowBytes:  make([]int32, maxSamples),
	}
}

// frameHeader is the part of the frame header shared by both channel layouts.
type frameHeader struct {
	samples           int
	uncompressedBytes int
	compressed        bool
}

// Decoder decodes ALAC frames of one stream into interleaved PCM.
type Decoder struct {
	cfg      StreamConfig
	cursor   BitCursor
	channels [maxChannels]*channelState
}

// NewDecoder creates a decoder for the given stream configuration. Scratch
// buffers are sized to the configured maximum samples per frame.
func NewDecoder(cfg StreamConfig) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewDecoder",
			"error":    err.Error(),
		}).Error("Invalid stream configuration")
		return nil, err
	}

	d := &Decoder{cfg: cfg}
	for i := range d.channels {
		d.channels[i] = newChannelState(int(cfg.MaxSamplesPerFrame))
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewDecoder",
		"sample_size": cfg.SampleSize,
		"channels":    cfg.Channels,
		"max_samples": cfg.MaxSamplesPerFrame,
		"sample_rate": cfg.SampleRate,
	}).Info("ALAC decoder created")

	return d, nil
}

// Config returns the stream configuration.
func (d *Decoder) Config() StreamConfig { return d.cfg }

// DecodeFrame decodes one frame and returns newly allocated little-endian
// interleaved PCM. On error nothing is returned; the frame is not partially
// emitted.
func (d *Decoder) DecodeFrame(frame []byte) ([]byte, error) {
	d.cursor.Reset(frame)
	c := &d.cursor

	tag, err := c.ReadBits(3)
	if err != nil {
		return nil, decodeErr("channel tag", -1, err)
	}

	var pcm []byte
	switch tag {
	case channelTagMono:
		pcm, err = d.decodeMono()
	case channelTagStereo:
		pcm, err = d.decodeStereo()
	default:
		err = decodeErr("channel tag", -1, fmt.Errorf("%w: tag %d", ErrUnsupportedChannelConfig, tag))
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Decoder.DecodeFrame",
			"frame_size": len(frame),
			"error":      err.Error(),
		}).Debug("Frame decode failed")
		return nil, err
	}
	return pcm, nil
}

func (d *Decoder) readHeader() (frameHeader, error) {
	c := &d.cursor
	h := frameHeader{samples: int(d.cfg.MaxSamplesPerFrame)}

	// 4 + 12 reserved bits
	if _, err := c.ReadBits(16); err != nil {
		return h, decodeErr("header", -1, err)
	}
	hasSize, err := c.ReadBits(1)
	if err != nil {
		return h, decodeErr("header", -1, err)
	}
	uncompressed, err := c.ReadBits(2)
	if err != nil {
		return h, decodeErr("header", -1, err)
	}
	notCompressed, err := c.ReadBits(1)
	if err != nil {
		return h, decodeErr("header", -1, err)
	}
	h.uncompressedBytes = int(uncompressed)
	h.compressed = notCompressed == 0

	if hasSize == 1 {
		n, err := c.ReadBits(32)
		if err != nil {
			return h, decodeErr("sample count", -1, err)
		}
		if n > d.cfg.MaxSamplesPerFrame {
			return h, decodeErr("sample count", -1, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, d.cfg.MaxSamplesPerFrame))
		}
		h.samples = int(n)
	}
	return h, nil
}

// readChannelParams reads the prediction parameters and coefficient table
// of one channel.
func (d *Decoder) readChannelParams(ch int) error {
	c := &d.cursor
	st := d.channels[ch]

	predictionType, err := c.ReadBits(4)
	if err != nil {
		return decodeErr("prediction parameters", ch, err)
	}
	quant, err := c.ReadBits(4)
	if err != nil {
		return decodeErr("prediction parameters", ch, err)
	}
	riceModifier, err := c.ReadBits(3)
	if err != nil {
		return decodeErr("prediction parameters", ch, err)
	}
	order, err := c.ReadBits(5)
	if err != nil {
		return decodeErr("prediction parameters", ch, err)
	}

	st.predictionType = predictionType
	st.quant = uint(quant)
	st.riceModifier = int32(riceModifier)
	st.order = int(order)

	for i := 0; i < st.order; i++ {
		v, err := c.ReadBits(16)
		if err != nil {
			return decodeErr("coefficient table", ch, err)
		}
		st.coefs[i] = int16(v)
	}
	return nil
}

// decodeChannel runs the entropy decoder and predictor for one channel.
func (d *Decoder) decodeChannel(ch, samples, readSampleSize int) error {
	st := d.channels[ch]
	if st.predictionType != predictionTypeAdaptiveFIR {
		return decodeErr("prediction", ch, fmt.Errorf("%w: %d", ErrUnsupportedPredictionType, st.predictionType))
	}

	params := RiceParams{
		SampleSize:     readSampleSize,
		InitialHistory: int32(d.cfg.RiceInitialHistory),
		KModifier:      int32(d.cfg.RiceKModifier),
		HistoryMult:    st.riceModifier * int32(d.cfg.RiceHistoryMult) / 4,
	}
	if err := RiceDecode(&d.cursor, st.residuals[:samples], params); err != nil {
		return decodeErr("entropy", ch, err)
	}

	Predict(st.residuals[:samples], st.samples[:samples], readSampleSize, st.coefs[:st.order], st.quant)
	return nil
}

// readVerbatim reads one uncompressed sample at the stream's full width.
func (d *Decoder) readVerbatim() (int32, error) {
	size := int(d.cfg.SampleSize)
	if size <= 16 {
		v, err := d.cursor.ReadBits(size)
		if err != nil {
			return 0, err
		}
		return signExtend(int32(v), size), nil
	}

	hi, err := d.cursor.ReadBits(16)
	if err != nil {
		return 0, err
	}
	lo, err := d.cursor.ReadBits(size - 16)
	if err != nil {
		return 0, err
	}
	return signExtend(int32(hi<<uint(size-16)|lo), 24), nil
}

func (d *Decoder) readLowBytes(samples, uncompressedBytes int, channels int) error {
	for i := 0; i < samples; i++ {
		for ch := 0; ch < channels; ch++ {
			v, err := d.cursor.ReadBits(uncompressedBytes * 8)
			if err != nil {
				return decodeErr("uncompressed low bytes", ch, err)
			}
			d.channels[ch].lowBytes[i] = int32(v)
		}
	}
	return nil
}

func (d *Decoder) checkSampleSize() error {
	switch d.cfg.SampleSize {
	case 16, 24:
		return nil
	}
	return decodeErr("output", -1, fmt.Errorf("%w: %d bits", ErrUnsupportedSampleSize, d.cfg.SampleSize))
}

func (d *Decoder) decodeMono() ([]byte, error) {
	if err := d.checkSampleSize(); err != nil {
		return nil, err
	}
	h, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	st := d.channels[0]
	readSampleSize := int(d.cfg.SampleSize) - h.uncompressedBytes*8
	if h.compressed && readSampleSize < 1 {
		return nil, decodeErr("header", -1, fmt.Errorf("%w: %d uncompressed bytes", ErrMalformedFrame, h.uncompressedBytes))
	}

	if h.compressed {
		// 16 bits only meaningful in the stereo layout
		if _, err := d.cursor.ReadBits(16); err != nil {
			return nil, decodeErr("header", -1, err)
		}
		if err := d.readChannelParams(0); err != nil {
			return nil, err
		}
		if h.uncompressedBytes > 0 {
			if err := d.readLowBytes(h.samples, h.uncompressedBytes, 1); err != nil {
				return nil, err
			}
		}
		if err := d.decodeChannel(0, h.samples, readSampleSize); err != nil {
			return nil, err
		}
	} else {
		h.uncompressedBytes = 0
		for i := 0; i < h.samples; i++ {
			v, err := d.readVerbatim()
			if err != nil {
				return nil, decodeErr("verbatim samples", 0, err)
			}
			st.samples[i] = v
		}
	}

	return d.interleave(st.samples[:h.samples], nil, h, d.cfg.Channels == 2), nil
}

func (d *Decoder) decodeStereo() ([]byte, error) {
	if d.cfg.Channels < 2 {
		return nil, decodeErr("channel tag", -1, fmt.Errorf("%w: stereo frame in mono stream", ErrUnsupportedChannelConfig))
	}
	if err := d.checkSampleSize(); err != nil {
		return nil, err
	}
	h, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	a, b := d.channels[0], d.channels[1]
	readSampleSize := int(d.cfg.SampleSize) - h.uncompressedBytes*8 + 1
	if h.compressed && readSampleSize < 1 {
		return nil, decodeErr("header", -1, fmt.Errorf("%w: %d uncompressed bytes", ErrMalformedFrame, h.uncompressedBytes))
	}

	var shift, leftWeight uint32
	if h.compressed {
		if shift, err = d.cursor.ReadBits(8); err != nil {
			return nil, decodeErr("interlacing", -1, err)
		}
		if leftWeight, err = d.cursor.ReadBits(8); err != nil {
			return nil, decodeErr("interlacing", -1, err)
		}
		for ch := 0; ch < 2; ch++ {
			if err := d.readChannelParams(ch); err != nil {
				return nil, err
			}
		}
		if h.uncompressedBytes > 0 {
			if err := d.readLowBytes(h.samples, h.uncompressedBytes, 2); err != nil {
				return nil, err
			}
		}
		for ch := 0; ch < 2; ch++ {
			if err := d.decodeChannel(ch, h.samples, readSampleSize); err != nil {
				return nil, err
			}
		}
	} else {
		h.uncompressedBytes = 0
		for i := 0; i < h.samples; i++ {
			va, err := d.readVerbatim()
			if err != nil {
				return nil, decodeErr("verbatim samples", 0, err)
			}
			vb, err := d.readVerbatim()
			if err != nil {
				return nil, decodeErr("verbatim samples", 1, err)
			}
			a.samples[i] = va
			b.samples[i] = vb
		}
	}

	left, right := a.samples[:h.samples], b.samples[:h.samples]
	if leftWeight != 0 {
		for i := range left {
			mid, diff := left[i], right[i]
			r := mid - (diff*int32(leftWeight))>>shift
			left[i] = r + diff
			right[i] = r
		}
	}
	return d.interleave(left, right, h, false), nil
}

// interleave packs channel buffers into little-endian PCM. With duplicate
// set, left is written to both output channels.
func (d *Decoder) interleave(left, right []int32, h frameHeader, duplicate bool) []byte {
	width := d.cfg.BytesPerSample()
	channels := int(d.cfg.Channels)
	out := make([]byte, len(left)*width*channels)

	var lowA, lowB []int32
	lowShift := uint(h.uncompressedBytes * 8)
	lowMask := int32(^(uint32(0xffffffff) << lowShift))
	if width == 3 && h.uncompressedBytes > 0 {
		lowA = d.channels[0].lowBytes
		lowB = d.channels[1].lowBytes
		if duplicate {
			lowB = lowA
		}
	}
	if duplicate {
		right = left
	}

	pos := 0
	put := func(v int32) {
		out[pos] = byte(v)
		out[pos+1] = byte(v >> 8)
		if width == 3 {
			out[pos+2] = byte(v >> 16)
		}
		pos += width
	}

	for i := range left {
		l := left[i]
		if lowA != nil {
			l = l<<lowShift | lowA[i]&lowMask
		}
		put(l)
		if channels == 2 {
			r := right[i]
			if lowB != nil {
				r = r<<lowShift | lowB[i]&lowMask
			}
			put(r)
		}
	}
	return out
}
