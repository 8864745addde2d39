package raopcore

import (
	"crypto/rsa"
	"fmt"
	"net"
	"time"

	"github.com/opd-ai/raopcore/alac"
	"github.com/opd-ai/raopcore/crypto"
)

// TimeProvider is an interface for getting the current time.
// This allows for deterministic testing by injecting a mock time source.
// It is satisfied by, and passed through to, the rtp and playback providers.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard time package.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// SessionParams is what session negotiation hands to the receive pipeline.
type SessionParams struct {
	// FormatOptions is the SDP fmtp vector of the ALAC stream.
	FormatOptions string

	// AESKey is the session key. When RSAKey is set it is the RSA-OAEP
	// wrapped key as announced by the sender and is unwrapped first.
	// An empty key means the stream is not encrypted.
	AESKey []byte
	AESIV  []byte
	RSAKey *rsa.PrivateKey

	// Sender addresses for retransmit and timing requests.
	ControlAddr net.Addr
	TimingAddr  net.Addr
}

// streamConfig parses the format options.
func (p SessionParams) streamConfig() (alac.StreamConfig, error) {
	cfg, err := alac.ParseFormatOptions(p.FormatOptions)
	if err != nil {
		return alac.StreamConfig{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return cfg, nil
}

// decryptor returns the payload decryptor, or nil for a clear stream.
func (p SessionParams) decryptor() (*crypto.PayloadDecryptor, error) {
	if len(p.AESKey) == 0 {
		return nil, nil
	}

	key := p.AESKey
	if p.RSAKey != nil {
		unwrapped, err := crypto.UnwrapKey(p.RSAKey, p.AESKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}
		defer crypto.ZeroBytes(unwrapped)
		key = unwrapped
	}

	d, err := crypto.NewPayloadDecryptor(key, p.AESIV)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return d, nil
}
