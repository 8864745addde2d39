package transport

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePacket(t *testing.T) {
	data := []byte{0x80, 0xe0, 0x00, 0x01, 0xaa}
	p, err := ParsePacket(data)
	require.NoError(t, err)
	assert.Equal(t, PacketType(0x60), p.PacketType, "marker bit is not part of the type")
	assert.Equal(t, data, p.Data)

	data[4] = 0xbb
	assert.Equal(t, byte(0xaa), p.Data[4], "data is copied")

	_, err = ParsePacket([]byte{0x80})
	assert.Error(t, err)
}

func TestPacketSerialize(t *testing.T) {
	p := &Packet{PacketType: 0x55, Data: []byte{0x80, 0xd5, 0, 1, 0, 2, 0, 3}}
	data, err := p.Serialize()
	require.NoError(t, err)
	assert.Equal(t, p.Data, data)

	_, err = (&Packet{}).Serialize()
	assert.Error(t, err)
}

type received struct {
	packet *Packet
	addr   net.Addr
}

func TestUDPTransportDispatchInOrder(t *testing.T) {
	server, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	var mu sync.Mutex
	var got []received
	server.RegisterHandler(0x60, func(p *Packet, addr net.Addr) error {
		mu.Lock()
		got = append(got, received{p, addr})
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		err := client.Send(&Packet{Data: []byte{0x80, 0x60, 0x00, byte(i)}}, server.LocalAddr())
		require.NoError(t, err)
	}
	// unregistered type is ignored
	require.NoError(t, client.Send(&Packet{Data: []byte{0x80, 0x54, 0x00, 0x09}}, server.LocalAddr()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, r := range got {
		assert.Equal(t, byte(i), r.packet.Data[3])
		assert.Equal(t, client.LocalAddr().String(), r.addr.String())
	}
}

func TestUDPTransportDefaultHandler(t *testing.T) {
	server, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	types := make(chan PacketType, 4)
	server.RegisterHandler(0x60, func(p *Packet, addr net.Addr) error {
		types <- p.PacketType
		return nil
	})
	server.SetDefaultHandler(func(p *Packet, addr net.Addr) error {
		types <- p.PacketType | 0x80
		return errors.New("unhandled")
	})

	require.NoError(t, client.Send(&Packet{Data: []byte{0x80, 0x7f, 0x00, 0x01}}, server.LocalAddr()))
	require.NoError(t, client.Send(&Packet{Data: []byte{0x80, 0x60, 0x00, 0x02}}, server.LocalAddr()))

	for _, want := range []PacketType{0x7f | 0x80, 0x60} {
		select {
		case got := <-types:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("packet type %#x not dispatched", want)
		}
	}
}

func TestUDPTransportClose(t *testing.T) {
	tr, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tr.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	assert.NoError(t, tr.Close(), "second Close is a no-op")
}
