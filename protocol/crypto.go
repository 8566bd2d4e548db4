package protocol

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ParseSharedSecret decodes a 64-character hex string into a 32-byte
// ChaCha20-Poly1305 key. Any other length is rejected outright.
func ParseSharedSecret(hexStr string) ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	if len(hexStr) != SecretHexLen {
		return secret, fmt.Errorf("protocol: shared secret must be %d hex characters, got %d", SecretHexLen, len(hexStr))
	}
	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return secret, fmt.Errorf("protocol: invalid hex shared secret: %w", err)
	}
	copy(secret[:], decoded)
	return secret, nil
}

// FormatSharedSecret renders a key back to its 64-character hex form.
func FormatSharedSecret(secret [SecretSize]byte) string {
	return hex.EncodeToString(secret[:])
}

// Seal encrypts plaintext under key, binding header as associated
// data, using the nonce derived from header. The returned ciphertext
// includes the trailing 16-byte Poly1305 tag, matching payload_len's
// definition on the wire.
func Seal(header Header, plaintext []byte, key [SecretSize]byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("protocol: building AEAD cipher: %w", err)
	}
	nonce := header.Nonce()
	headerBytes := header.Encode()
	return aead.Seal(nil, nonce[:], plaintext, headerBytes[:]), nil
}

// Open decrypts and authenticates ciphertext under key, binding header
// as associated data. Any mutation of the header after sealing, or of
// the ciphertext/tag, causes this to fail: the full encoded header is
// the AAD, so a receiver can never forge a valid payload by tampering
// with packet_type or payload_len alone.
func Open(header Header, ciphertext []byte, key [SecretSize]byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("protocol: building AEAD cipher: %w", err)
	}
	nonce := header.Nonce()
	headerBytes := header.Encode()
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, headerBytes[:])
	if err != nil {
		return nil, fmt.Errorf("protocol: AEAD authentication failed: %w", err)
	}
	return plaintext, nil
}
