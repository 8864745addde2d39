package transport

import (
	"net"
)

// PacketHandler is a function that processes incoming packets.
type PacketHandler func(packet *Packet, addr net.Addr) error

// Transport defines the interface for the datagram channels of a stream.
// This abstraction allows tests to replace UDP with an in-memory transport.
type Transport interface {
	// Send sends a packet to the specified address.
	Send(packet *Packet, addr net.Addr) error

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address the transport is listening on.
	LocalAddr() net.Addr

	// RegisterHandler registers a handler for a specific packet type.
	RegisterHandler(packetType PacketType, handler PacketHandler)

	// SetDefaultHandler sets the handler for packet types without a
	// registered handler. A nil handler drops them.
	SetDefaultHandler(handler PacketHandler)
}
