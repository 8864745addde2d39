package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/raopcore/limits"
	"github.com/sirupsen/logrus"
)

// readTimeout bounds each blocking read so cancellation is noticed.
const readTimeout = 100 * time.Millisecond

// UDPTransport implements one RAOP channel over UDP.
// It satisfies the Transport interface.
type UDPTransport struct {
	conn     net.PacketConn
	handlers map[PacketType]PacketHandler
	fallback PacketHandler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	closeErr error
	once     sync.Once
}

// NewUDPTransport creates a UDP listener and starts its receive loop.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "NewUDPTransport",
			"listen_addr": listenAddr,
			"error":       err.Error(),
		}).Error("Failed to listen")
		return nil, err
	}
	return NewUDPTransportFromConn(conn), nil
}

// NewUDPTransportFromConn wraps an existing packet connection and starts
// its receive loop. The transport takes ownership of conn.
func NewUDPTransportFromConn(conn net.PacketConn) *UDPTransport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		conn:     conn,
		handlers: make(map[PacketType]PacketHandler),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewUDPTransport",
		"local_addr": conn.LocalAddr().String(),
	}).Info("UDP transport listening")

	go t.processPackets()
	return t
}

// RegisterHandler registers a handler for a specific packet type.
func (t *UDPTransport) RegisterHandler(packetType PacketType, handler PacketHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handlers[packetType] = handler
}

// SetDefaultHandler sets the handler for packet types without a registered
// handler.
func (t *UDPTransport) SetDefaultHandler(handler PacketHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fallback = handler
}

// Send sends a packet to the specified address.
func (t *UDPTransport) Send(packet *Packet, addr net.Addr) error {
	data, err := packet.Serialize()
	if err != nil {
		return err
	}

	_, err = t.conn.WriteTo(data, addr)
	return err
}

// Close stops the receive loop, waits for it to exit and closes the socket.
func (t *UDPTransport) Close() error {
	t.once.Do(func() {
		t.cancel()
		<-t.done
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// processPackets handles incoming packets until the transport is closed.
func (t *UDPTransport) processPackets() {
	defer close(t.done)
	buffer := make([]byte, limits.MaxDatagramSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		if err := t.processIncomingPacket(buffer); errors.Is(err, net.ErrClosed) {
			return
		}
	}
}

// processIncomingPacket reads and dispatches a single datagram.
func (t *UDPTransport) processIncomingPacket(buffer []byte) error {
	data, addr, err := t.readPacketData(buffer)
	if err != nil {
		return err
	}

	if err := limits.ValidateDatagram(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.processIncomingPacket",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping datagram")
		return nil
	}

	packet, err := ParsePacket(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.processIncomingPacket",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Debug("Dropping unparseable datagram")
		return nil
	}

	t.dispatchPacketToHandler(packet, addr)
	return nil
}

// readPacketData reads data from the connection with timeout handling.
func (t *UDPTransport) readPacketData(buffer []byte) ([]byte, net.Addr, error) {
	_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, addr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			logrus.WithFields(logrus.Fields{
				"function": "UDPTransport.readPacketData",
				"error":    err.Error(),
			}).Debug("Read failed")
		}
		return nil, nil, err
	}

	return buffer[:n], addr, nil
}

// dispatchPacketToHandler runs the handler for the packet type, or the
// default handler, inline so packets are processed in arrival order.
func (t *UDPTransport) dispatchPacketToHandler(packet *Packet, addr net.Addr) {
	t.mu.RLock()
	handler, exists := t.handlers[packet.PacketType]
	if !exists {
		handler = t.fallback
	}
	t.mu.RUnlock()

	if handler == nil {
		logrus.WithFields(logrus.Fields{
			"function":    "UDPTransport.dispatchPacketToHandler",
			"packet_type": packet.PacketType,
			"from":        addr.String(),
		}).Debug("No handler for packet type")
		return
	}

	if err := handler(packet, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "UDPTransport.dispatchPacketToHandler",
			"packet_type": packet.PacketType,
			"error":       err.Error(),
		}).Debug("Handler failed")
	}
}
