// Package crypto implements the payload protection of RAOP audio streams.
//
// The session layer negotiates a 128-bit AES key and IV. The key normally
// arrives wrapped with the receiver's RSA public key (OAEP, SHA-1) and is
// recovered with UnwrapKey:
//
//	key, err := crypto.UnwrapKey(privateKey, wrappedKey)
//
// Every audio payload is encrypted with AES-CBC restarted at the same IV.
// Only the 16-byte-aligned prefix is encrypted; a trailing partial block is
// sent in clear. PayloadDecryptor undoes this in place:
//
//	dec, err := crypto.NewPayloadDecryptor(key, iv)
//	dec.DecryptInPlace(payload)
//
// A PayloadDecryptor keeps no state between payloads and is safe for
// concurrent use.
package crypto
