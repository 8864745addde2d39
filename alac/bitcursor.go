package alac

import (
	"fmt"
	"math/bits"
)

// BitCursor reads big-endian bit fields from a frame payload.
//
// Reads go through a 24-bit window starting at the current byte, so a single
// primitive step yields at most 16 bits; wider reads are split in two.
// Window bytes past the end of the payload read as zero, but a read whose
// bits end past the payload fails with ErrTruncated.
type BitCursor struct {
	buf []byte
	pos int // absolute bit position
}

// NewBitCursor creates a cursor at the first bit of buf.
func NewBitCursor(buf []byte) *BitCursor {
	return &BitCursor{buf: buf}
}

// Reset points the cursor at the first bit of buf.
func (c *BitCursor) Reset(buf []byte) {
	c.buf = buf
	c.pos = 0
}

// Position returns the absolute bit position.
func (c *BitCursor) Position() int { return c.pos }

// Remaining returns the number of unread bits in the payload.
func (c *BitCursor) Remaining() int { return len(c.buf)*8 - c.pos }

func (c *BitCursor) byteAt(i int) uint32 {
	if i < len(c.buf) {
		return uint32(c.buf[i])
	}
	return 0
}

// read16 is the primitive step: n in [1,16].
func (c *BitCursor) read16(n int) (uint32, error) {
	if c.pos+n > len(c.buf)*8 {
		return 0, ErrTruncated
	}
	idx := c.pos >> 3
	acc := uint(c.pos & 7)

	window := c.byteAt(idx)<<16 | c.byteAt(idx+1)<<8 | c.byteAt(idx+2)
	window = (window << acc) & 0x00ffffff
	c.pos += n
	return window >> (24 - uint(n)), nil
}

// ReadBits reads n bits, most significant bit first. Reading zero bits
// returns 0 without moving the cursor; n outside [0,32] is an error.
func (c *BitCursor) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBitCount, n)
	}
	if n == 0 {
		return 0, nil
	}
	if n > 16 {
		hi, err := c.read16(16)
		if err != nil {
			return 0, err
		}
		lo, err := c.read16(n - 16)
		if err != nil {
			return 0, err
		}
		return hi<<uint(n-16) | lo, nil
	}
	return c.read16(n)
}

// ReadBit reads a single bit.
func (c *BitCursor) ReadBit() (uint32, error) {
	return c.read16(1)
}

// UnreadBits moves the cursor back n bits.
func (c *BitCursor) UnreadBits(n int) error {
	if n > c.pos {
		return ErrInvalidUnread
	}
	c.pos -= n
	return nil
}

// CountLeadingZeros returns the number of leading zero bits in v, 32 for zero.
func CountLeadingZeros(v uint32) int {
	return bits.LeadingZeros32(v)
}

// signExtend interprets the low n bits of v as a two's complement value.
func signExtend(v int32, n int) int32 {
	shift := uint(32 - n)
	return (v << shift) >> shift
}
