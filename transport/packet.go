package transport

import (
	"errors"
)

// PacketType is the 7-bit RTP payload type of a datagram.
type PacketType byte

// Packet is one datagram. Data holds the whole datagram, header included.
type Packet struct {
	PacketType PacketType
	Data       []byte
}

// minPacketSize covers the two header bytes that carry the payload type.
const minPacketSize = 2

// Serialize returns the datagram to transmit.
func (p *Packet) Serialize() ([]byte, error) {
	if p.Data == nil {
		return nil, errors.New("packet data is nil")
	}
	return p.Data, nil
}

// ParsePacket classifies a datagram. The data is copied so the receive
// buffer can be reused.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < minPacketSize {
		return nil, errors.New("packet too short")
	}

	packet := &Packet{
		PacketType: PacketType(data[1] & 0x7f),
		Data:       make([]byte, len(data)),
	}
	copy(packet.Data, data)

	return packet, nil
}
