package rtp

import (
	"encoding/binary"
	"fmt"

	pionrtp "github.com/pion/rtp"
)

// PayloadType identifies the RAOP packet kind.
type PayloadType uint8

// RAOP payload types.
const (
	PayloadTimingRequest     PayloadType = 0x52
	PayloadTimingResponse    PayloadType = 0x53
	PayloadSync              PayloadType = 0x54
	PayloadRetransmitRequest PayloadType = 0x55
	PayloadAudioRetransmit   PayloadType = 0x56
	PayloadAudioTransmit     PayloadType = 0x60
)

func (pt PayloadType) String() string {
	switch pt {
	case PayloadTimingRequest:
		return "TimingRequest"
	case PayloadTimingResponse:
		return "TimingResponse"
	case PayloadSync:
		return "Sync"
	case PayloadRetransmitRequest:
		return "RetransmitRequest"
	case PayloadAudioRetransmit:
		return "AudioRetransmit"
	case PayloadAudioTransmit:
		return "AudioTransmit"
	}
	return fmt.Sprintf("PayloadType(%#02x)", uint8(pt))
}

// Wire sizes.
const (
	Version    = 2
	HeaderSize = 4

	TimingPacketSize            = 32
	SyncPacketSize              = 20
	RetransmitRequestPacketSize = 8
	AudioTransmitHeaderSize     = 12
	AudioRetransmitHeaderSize   = 16
)

// Header is the 4-byte header shared by all RAOP packets.
type Header struct {
	Version     uint8
	Padding     bool
	Extension   bool
	CSRCCount   uint8
	Marker      bool
	PayloadType PayloadType
	Sequence    uint16
}

// NewHeader returns a version 2 header.
func NewHeader(pt PayloadType, seq uint16) Header {
	return Header{Version: Version, PayloadType: pt, Sequence: seq}
}

// PeekPayloadType returns the payload type of a datagram without decoding it.
func PeekPayloadType(buf []byte) (PayloadType, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	return PayloadType(buf[1] & 0x7f), true
}

func parseHeader(buf []byte) Header {
	return Header{
		Version:     buf[0] >> 6,
		Padding:     buf[0]&0x20 != 0,
		Extension:   buf[0]&0x10 != 0,
		CSRCCount:   buf[0] & 0x0f,
		Marker:      buf[1]&0x80 != 0,
		PayloadType: PayloadType(buf[1] & 0x7f),
		Sequence:    binary.BigEndian.Uint16(buf[2:4]),
	}
}

func (h Header) marshalTo(buf []byte) {
	b0 := h.Version<<6 | h.CSRCCount&0x0f
	if h.Padding {
		b0 |= 0x20
	}
	if h.Extension {
		b0 |= 0x10
	}
	b1 := uint8(h.PayloadType) & 0x7f
	if h.Marker {
		b1 |= 0x80
	}
	buf[0] = b0
	buf[1] = b1
	binary.BigEndian.PutUint16(buf[2:4], h.Sequence)
}

// Packet is one decoded RAOP packet. The concrete type is one of
// *TimingPacket, *SyncPacket, *RetransmitRequestPacket,
// *AudioTransmitPacket or *AudioRetransmitPacket.
type Packet interface {
	PacketHeader() Header
	Marshal() ([]byte, error)
	isPacket()
}

// TimingPacket is a timing request or response. In a request only
// SendTime is meaningful; the response echoes it as ReferenceTime.
type TimingPacket struct {
	Header
	ReferenceTime NTPTime
	ReceivedTime  NTPTime
	SendTime      NTPTime
}

// SyncPacket maps an RTP timestamp to the sender's wall clock.
type SyncPacket struct {
	Header
	// NowMinusLatency is the RTP time that should be playing at Time.
	NowMinusLatency uint32
	Time            NTPTime
	// Now is the RTP time being sent at Time.
	Now uint32
}

// Initial reports whether this is the first sync after a (re)start. The
// extension bit carries the flag.
func (p *SyncPacket) Initial() bool { return p.Extension }

// RetransmitRequestPacket asks the sender to resend Count packets starting
// at First.
type RetransmitRequestPacket struct {
	Header
	First uint16
	Count uint16
}

// AudioTransmitPacket carries one encrypted ALAC frame.
type AudioTransmitPacket struct {
	Header
	Timestamp uint32
	SSRC      uint32
	Payload   []byte
}

// AudioRetransmitPacket carries a resent audio packet. Sequence in the outer
// header belongs to the control channel; OriginalSequence is the audio
// sequence being recovered.
type AudioRetransmitPacket struct {
	Header
	OriginalSequence uint16
	Timestamp        uint32
	SSRC             uint32
	Payload          []byte
}

func (p *TimingPacket) PacketHeader() Header            { return p.Header }
func (p *SyncPacket) PacketHeader() Header              { return p.Header }
func (p *RetransmitRequestPacket) PacketHeader() Header { return p.Header }
func (p *AudioTransmitPacket) PacketHeader() Header     { return p.Header }
func (p *AudioRetransmitPacket) PacketHeader() Header   { return p.Header }

func (*TimingPacket) isPacket()            {}
func (*SyncPacket) isPacket()              {}
func (*RetransmitRequestPacket) isPacket() {}
func (*AudioTransmitPacket) isPacket()     {}
func (*AudioRetransmitPacket) isPacket()   {}

// Decode classifies buf by payload type and parses it. Audio payloads alias
// buf.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return nil, protocolErr("decode", 0, fmt.Errorf("%w: %d bytes", ErrPacketTooShort, len(buf)))
	}
	h := parseHeader(buf)
	if h.Version != Version {
		return nil, protocolErr("decode", h.PayloadType, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version))
	}

	switch h.PayloadType {
	case PayloadTimingRequest, PayloadTimingResponse:
		if err := checkSize(buf, TimingPacketSize, h.PayloadType); err != nil {
			return nil, err
		}
		return &TimingPacket{
			Header:        h,
			ReferenceTime: readNTP(buf[8:16]),
			ReceivedTime:  readNTP(buf[16:24]),
			SendTime:      readNTP(buf[24:32]),
		}, nil

	case PayloadSync:
		if err := checkSize(buf, SyncPacketSize, h.PayloadType); err != nil {
			return nil, err
		}
		return &SyncPacket{
			Header:          h,
			NowMinusLatency: binary.BigEndian.Uint32(buf[4:8]),
			Time:            readNTP(buf[8:16]),
			Now:             binary.BigEndian.Uint32(buf[16:20]),
		}, nil

	case PayloadRetransmitRequest:
		if err := checkSize(buf, RetransmitRequestPacketSize, h.PayloadType); err != nil {
			return nil, err
		}
		return &RetransmitRequestPacket{
			Header: h,
			First:  binary.BigEndian.Uint16(buf[4:6]),
			Count:  binary.BigEndian.Uint16(buf[6:8]),
		}, nil

	case PayloadAudioRetransmit:
		if err := checkSize(buf, AudioRetransmitHeaderSize, h.PayloadType); err != nil {
			return nil, err
		}
		return &AudioRetransmitPacket{
			Header:           h,
			OriginalSequence: binary.BigEndian.Uint16(buf[6:8]),
			Timestamp:        binary.BigEndian.Uint32(buf[8:12]),
			SSRC:             binary.BigEndian.Uint32(buf[12:16]),
			Payload:          buf[AudioRetransmitHeaderSize:],
		}, nil

	case PayloadAudioTransmit:
		if err := checkSize(buf, AudioTransmitHeaderSize, h.PayloadType); err != nil {
			return nil, err
		}
		var p pionrtp.Packet
		if err := p.Unmarshal(buf); err != nil {
			return nil, protocolErr("decode", h.PayloadType, err)
		}
		return &AudioTransmitPacket{
			Header:    h,
			Timestamp: p.Timestamp,
			SSRC:      p.SSRC,
			Payload:   p.Payload,
		}, nil
	}

	return nil, protocolErr("decode", h.PayloadType, ErrUnknownPacketType)
}

func checkSize(buf []byte, size int, pt PayloadType) error {
	if len(buf) < size {
		return protocolErr("decode", pt, fmt.Errorf("%w: %d < %d bytes", ErrPacketTooShort, len(buf), size))
	}
	return nil
}

// Marshal encodes the timing packet.
func (p *TimingPacket) Marshal() ([]byte, error) {
	buf := make([]byte, TimingPacketSize)
	p.Header.marshalTo(buf)
	putNTP(buf[8:16], p.ReferenceTime)
	putNTP(buf[16:24], p.ReceivedTime)
	putNTP(buf[24:32], p.SendTime)
	return buf, nil
}

// Marshal encodes the sync packet.
func (p *SyncPacket) Marshal() ([]byte, error) {
	buf := make([]byte, SyncPacketSize)
	p.Header.marshalTo(buf)
	binary.BigEndian.PutUint32(buf[4:8], p.NowMinusLatency)
	putNTP(buf[8:16], p.Time)
	binary.BigEndian.PutUint32(buf[16:20], p.Now)
	return buf, nil
}

// Marshal encodes the retransmit request.
func (p *RetransmitRequestPacket) Marshal() ([]byte, error) {
	buf := make([]byte, RetransmitRequestPacketSize)
	p.Header.marshalTo(buf)
	binary.BigEndian.PutUint16(buf[4:6], p.First)
	binary.BigEndian.PutUint16(buf[6:8], p.Count)
	return buf, nil
}

// Marshal encodes the audio packet as a standard RTP packet.
func (p *AudioTransmitPacket) Marshal() ([]byte, error) {
	pkt := &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        p.Version,
			Extension:      false,
			Marker:         p.Marker,
			PayloadType:    uint8(p.PayloadType),
			SequenceNumber: p.Sequence,
			Timestamp:      p.Timestamp,
			SSRC:           p.SSRC,
		},
		Payload: p.Payload,
	}
	buf, err := pkt.Marshal()
	if err != nil {
		return nil, protocolErr("marshal", p.PayloadType, err)
	}
	return buf, nil
}

// Marshal encodes the retransmitted audio packet. The two bytes ahead of the
// original sequence repeat the first bytes of an AudioTransmit header.
func (p *AudioRetransmitPacket) Marshal() ([]byte, error) {
	buf := make([]byte, AudioRetransmitHeaderSize+len(p.Payload))
	p.Header.marshalTo(buf)
	NewHeader(PayloadAudioTransmit, 0).marshalTo(buf[4:8])
	binary.BigEndian.PutUint16(buf[6:8], p.OriginalSequence)
	binary.BigEndian.PutUint32(buf[8:12], p.Timestamp)
	binary.BigEndian.PutUint32(buf[12:16], p.SSRC)
	copy(buf[AudioRetransmitHeaderSize:], p.Payload)
	return buf, nil
}
