package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// KeySize is the AES-128 key length used by RAOP.
const KeySize = 16

// PayloadDecryptor decrypts RAOP audio payloads.
type PayloadDecryptor struct {
	block cipher.Block
	iv    [aes.BlockSize]byte
}

// NewPayloadDecryptor creates a decryptor for the session key and IV.
func NewPayloadDecryptor(key, iv []byte) (*PayloadDecryptor, error) {
	if len(key) != KeySize {
		NewLogger("NewPayloadDecryptor").WithField("key_size", len(key)).Error("Invalid AES key")
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKeySize, len(key))
	}
	if len(iv) != aes.BlockSize {
		NewLogger("NewPayloadDecryptor").WithField("iv_size", len(iv)).Error("Invalid IV")
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidIVSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	d := &PayloadDecryptor{block: block}
	copy(d.iv[:], iv)

	NewLogger("NewPayloadDecryptor").WithFields(SecureFieldHash(key, "key")).Debug("Payload decryptor created")
	return d, nil
}

// DecryptInPlace decrypts the 16-byte-aligned prefix of payload and returns
// the number of bytes decrypted. A trailing partial block is left as is.
func (d *PayloadDecryptor) DecryptInPlace(payload []byte) int {
	n := len(payload) &^ (aes.BlockSize - 1)
	if n == 0 {
		return 0
	}
	cipher.NewCBCDecrypter(d.block, d.iv[:]).CryptBlocks(payload[:n], payload[:n])
	return n
}

// EncryptInPlace is the sender-side inverse of DecryptInPlace.
func (d *PayloadDecryptor) EncryptInPlace(payload []byte) int {
	n := len(payload) &^ (aes.BlockSize - 1)
	if n == 0 {
		return 0
	}
	cipher.NewCBCEncrypter(d.block, d.iv[:]).CryptBlocks(payload[:n], payload[:n])
	return n
}
