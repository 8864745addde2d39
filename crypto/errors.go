package crypto

import "errors"

// Sentinel errors for crypto package operations.
var (
	// ErrInvalidKeySize indicates an AES key that is not 16 bytes.
	ErrInvalidKeySize = errors.New("invalid AES key size")

	// ErrInvalidIVSize indicates an IV that is not one AES block.
	ErrInvalidIVSize = errors.New("invalid IV size")

	// ErrNilPrivateKey indicates a key unwrap without an RSA private key.
	ErrNilPrivateKey = errors.New("RSA private key cannot be nil")

	// ErrKeyUnwrap indicates the wrapped key could not be decrypted.
	ErrKeyUnwrap = errors.New("failed to unwrap session key")
)
