package rtp

// SequenceDistance returns (to-from) mod 2^16: how far to lies ahead of from.
func SequenceDistance(from, to uint16) uint16 {
	return to - from
}

// SequenceAfter reports whether a lies ahead of b within half the sequence space.
func SequenceAfter(a, b uint16) bool {
	d := SequenceDistance(b, a)
	return d != 0 && d < 0x8000
}

// UnwrapTimestamp extends a 32-bit RTP timestamp to 64 bits, choosing the
// value closest to ref.
func UnwrapTimestamp(ref int64, ts uint32) int64 {
	return ref + int64(int32(ts-uint32(ref)))
}
