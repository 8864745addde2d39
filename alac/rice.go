package alac

// Adaptive Golomb-Rice entropy decoding of prediction residuals.

const (
	// riceThreshold is the longest unary prefix that still selects a
	// Golomb-Rice code; one more 1-bit selects the raw escape.
	riceThreshold = 8

	riceHistoryShift = 9
	riceHistoryClamp = 0xffff

	// riceRunHistory is the history below which a zero run follows.
	riceRunHistory = 128

	// riceRunSampleSize is the escape width of zero run lengths.
	riceRunSampleSize = 16
)

// RiceParams carries the per-channel entropy parameters of one frame.
type RiceParams struct {
	// SampleSize is the width of raw escape values.
	SampleSize int
	// InitialHistory seeds the adaptive mean.
	InitialHistory int32
	// KModifier caps the Rice parameter k.
	KModifier int32
	// HistoryMult is the adaptation rate, riceModifier*historyMult/4.
	HistoryMult int32
}

// decodeValue reads one Golomb-Rice coded value with parameter k.
//
// When the extra bits are 0 or 1 the low bit read belongs to the next value,
// so the cursor is moved back one bit.
func decodeValue(c *BitCursor, sampleSize int, k int32, kModMask uint32) (int32, error) {
	var x int32
	for x <= riceThreshold {
		bit, err := c.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			break
		}
		x++
	}

	if x > riceThreshold {
		raw, err := c.ReadBits(sampleSize)
		if err != nil {
			return 0, err
		}
		return int32(raw & (0xffffffff >> uint(32-sampleSize))), nil
	}

	if k < 0 || k > 32 {
		return 0, ErrMalformedFrame
	}
	if k != 1 {
		extra, err := c.ReadBits(int(k))
		if err != nil {
			return 0, err
		}
		x *= int32((uint32(1)<<uint(k) - 1) & kModMask)
		if extra > 1 {
			x += int32(extra) - 1
		} else if err := c.UnreadBits(1); err != nil {
			return 0, err
		}
	}
	return x, nil
}

// RiceDecode fills out with signed residuals decoded from c.
func RiceDecode(c *BitCursor, out []int32, p RiceParams) error {
	history := p.InitialHistory
	var signModifier int32
	runMask := uint32(1)<<uint(p.KModifier) - 1

	for i := 0; i < len(out); i++ {
		k := int32(31 - int(p.KModifier) - CountLeadingZeros(uint32((history>>riceHistoryShift)+3)))
		if k < 0 {
			k += p.KModifier
		} else {
			k = p.KModifier
		}

		decoded, err := decodeValue(c, p.SampleSize, k, 0xffffffff)
		if err != nil {
			return err
		}
		decoded += signModifier

		value := (decoded + 1) / 2
		if decoded&1 != 0 {
			value = -value
		}
		out[i] = value
		signModifier = 0

		history += decoded*p.HistoryMult - (history*p.HistoryMult)>>riceHistoryShift
		if decoded > riceHistoryClamp {
			history = riceHistoryClamp
		}

		if history < riceRunHistory && i+1 < len(out) {
			signModifier = 1
			k = int32(CountLeadingZeros(uint32(history))) + (history+16)/64 - 24

			run, err := decodeValue(c, riceRunSampleSize, k, runMask)
			if err != nil {
				return err
			}
			if run > 0 {
				if i+1+int(run) > len(out) {
					return ErrMalformedFrame
				}
				clear(out[i+1 : i+1+int(run)])
				i += int(run)
			}
			if run > riceHistoryClamp {
				signModifier = 0
			}
			history = 0
		}
	}
	return nil
}
