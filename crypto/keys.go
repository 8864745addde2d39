package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// UnwrapKey decrypts a session key wrapped with RSA-OAEP (SHA-1).
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if priv == nil {
		return nil, ErrNilPrivateKey
	}

	key, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		NewLogger("UnwrapKey").WithError(err, "rsa_oaep_decrypt").WithField("wrapped_size", len(wrapped)).Warn("Key unwrap failed")
		return nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}
	if len(key) != KeySize {
		ZeroBytes(key)
		return nil, fmt.Errorf("%w: unwrapped %d bytes", ErrInvalidKeySize, len(key))
	}
	return key, nil
}

// WrapKey is the sender-side inverse of UnwrapKey.
func WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if pub == nil {
		return nil, errors.New("RSA public key cannot be nil")
	}
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, key, nil)
}

// ParsePrivateKeyPEM parses a PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return key, nil
}
