package raopcore

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/raopcore/crypto"
	"github.com/opd-ai/raopcore/rtp"
	"github.com/opd-ai/raopcore/transport"
	"github.com/stretchr/testify/require"
)

// testFormatOptions announces four-sample 16-bit stereo frames.
const testFormatOptions = "96 4 0 16 40 10 14 2 255 0 0 44100"

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")

	senderControl = &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 6001}
	senderTiming  = &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 6002}
)

// mockTimeProvider is a manually advanced clock.
type mockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

type sentPacket struct {
	data []byte
	addr net.Addr
}

// mockTransport is an in-memory transport that records sent packets and
// delivers datagrams to the registered handlers synchronously.
type mockTransport struct {
	mu       sync.Mutex
	addr     net.Addr
	handlers map[transport.PacketType]transport.PacketHandler
	fallback transport.PacketHandler
	sent     []sentPacket
	sendErr  error
	closed   bool
}

func newMockTransport(port int) *mockTransport {
	return &mockTransport{
		addr:     &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
		handlers: make(map[transport.PacketType]transport.PacketHandler),
	}
}

func (m *mockTransport) Send(packet *transport.Packet, addr net.Addr) error {
	data, err := packet.Serialize()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentPacket{data: append([]byte(nil), data...), addr: addr})
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) LocalAddr() net.Addr { return m.addr }

func (m *mockTransport) RegisterHandler(packetType transport.PacketType, handler transport.PacketHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[packetType] = handler
}

func (m *mockTransport) SetDefaultHandler(handler transport.PacketHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = handler
}

var errNoHandler = errors.New("no handler")

func (m *mockTransport) deliver(data []byte, from net.Addr) error {
	packet, err := transport.ParsePacket(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	handler, ok := m.handlers[packet.PacketType]
	if !ok {
		handler = m.fallback
	}
	m.mu.Unlock()
	if handler == nil {
		return errNoHandler
	}
	return handler(packet, from)
}

func (m *mockTransport) sentPackets() []sentPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentPacket(nil), m.sent...)
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// lockedBuffer is a bytes.Buffer safe for use by the drain goroutine and the
// test at the same time.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// bitWriter packs big-endian bit fields.
type bitWriter struct {
	buf []byte
	n   int
}

func (w *bitWriter) write(v uint32, bits int) {
	for i := bits - 1; i >= 0; i-- {
		if w.n%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << uint(7-w.n%8)
		}
		w.n++
	}
}

// verbatimStereoFrame builds an uncompressed 16-bit stereo ALAC frame from
// interleaved samples.
func verbatimStereoFrame(samples ...int16) []byte {
	w := &bitWriter{}
	w.write(1, 3)  // stereo tag
	w.write(0, 16) // reserved
	w.write(1, 1)  // explicit sample count
	w.write(0, 2)  // no uncompressed low bytes
	w.write(1, 1)  // not compressed
	w.write(uint32(len(samples)/2), 32)
	for _, s := range samples {
		w.write(uint32(uint16(s)), 16)
	}
	return w.buf
}

// pcm16 encodes interleaved samples as little-endian PCM.
func pcm16(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func encrypt(t *testing.T, frame []byte) []byte {
	t.Helper()
	d, err := crypto.NewPayloadDecryptor(testKey, testIV)
	require.NoError(t, err)
	out := append([]byte(nil), frame...)
	d.EncryptInPlace(out)
	return out
}

func audioPacket(t *testing.T, seq uint16, timestamp uint32, frame []byte) []byte {
	t.Helper()
	p := &rtp.AudioTransmitPacket{
		Header:    rtp.NewHeader(rtp.PayloadAudioTransmit, seq),
		Timestamp: timestamp,
		SSRC:      0x1234,
		Payload:   encrypt(t, frame),
	}
	data, err := p.Marshal()
	require.NoError(t, err)
	return data
}

func retransmitPacket(t *testing.T, seq uint16, timestamp uint32, frame []byte) []byte {
	t.Helper()
	h := rtp.NewHeader(rtp.PayloadAudioRetransmit, 1)
	h.Marker = true
	p := &rtp.AudioRetransmitPacket{
		Header:           h,
		OriginalSequence: seq,
		Timestamp:        timestamp,
		SSRC:             0x1234,
		Payload:          encrypt(t, frame),
	}
	data, err := p.Marshal()
	require.NoError(t, err)
	return data
}

func syncPacket(t *testing.T, nowMinusLatency uint32, initial bool) []byte {
	t.Helper()
	h := rtp.NewHeader(rtp.PayloadSync, 7)
	h.Marker = true
	h.Extension = initial
	p := &rtp.SyncPacket{
		Header:          h,
		NowMinusLatency: nowMinusLatency,
		Time:            rtp.NewNTPTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Now:             nowMinusLatency + 11025,
	}
	data, err := p.Marshal()
	require.NoError(t, err)
	return data
}

func testSession() SessionParams {
	return SessionParams{
		FormatOptions: testFormatOptions,
		AESKey:        append([]byte(nil), testKey...),
		AESIV:         append([]byte(nil), testIV...),
		ControlAddr:   senderControl,
		TimingAddr:    senderTiming,
	}
}

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv
}
