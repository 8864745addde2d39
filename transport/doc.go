// Package transport carries RAOP datagrams over UDP.
//
// A receiver listens on three channels (audio, control and timing), each a
// UDPTransport. Incoming datagrams are classified by the payload type in the
// second header byte and handed to the handler registered for that type:
//
//	t, err := transport.NewUDPTransport(":6000")
//	t.RegisterHandler(transport.PacketType(0x60), func(p *transport.Packet, addr net.Addr) error {
//	    return stream.HandleAudio(p.Data)
//	})
//
// Handlers run on the channel's receive goroutine, one at a time and in
// arrival order, so a handler must not block. Handler errors are logged and
// do not stop the channel.
//
// The Transport interface lets tests and alternative transports stand in
// for UDP.
package transport
