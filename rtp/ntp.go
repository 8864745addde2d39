package rtp

import (
	"encoding/binary"
	"time"
)

// ntpEpochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
const ntpEpochOffset = 2208988800

// NTPTime is a 32.32 fixed-point count of seconds since 1900.
type NTPTime uint64

// NewNTPTime converts a wall-clock time.
func NewNTPTime(t time.Time) NTPTime {
	secs := uint64(t.Unix() + ntpEpochOffset)
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return NTPTime(secs<<32 | frac)
}

// Seconds returns the integer part.
func (n NTPTime) Seconds() uint32 { return uint32(n >> 32) }

// Fraction returns the fractional part in units of 2^-32 seconds.
func (n NTPTime) Fraction() uint32 { return uint32(n) }

// Time converts back to a wall-clock time.
func (n NTPTime) Time() time.Time {
	if n == 0 {
		return time.Time{}
	}
	secs := int64(n.Seconds()) - ntpEpochOffset
	nsec := int64(uint64(n.Fraction()) * uint64(time.Second) >> 32)
	return time.Unix(secs, nsec)
}

// Sub returns n-m as a duration.
func (n NTPTime) Sub(m NTPTime) time.Duration {
	diff := int64(n - m)
	secs := diff >> 32
	frac := diff & 0xffffffff
	return time.Duration(secs)*time.Second + time.Duration(frac*int64(time.Second)>>32)
}

func putNTP(b []byte, n NTPTime) {
	binary.BigEndian.PutUint64(b, uint64(n))
}

func readNTP(b []byte) NTPTime {
	return NTPTime(binary.BigEndian.Uint64(b))
}
