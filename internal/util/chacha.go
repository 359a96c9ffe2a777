package util

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// ChaCha20KeySize is the raw stream cipher key size.
	ChaCha20KeySize = chacha20.KeySize
	// ChaCha20NonceSize is the stream cipher's nonce size (not the AEAD's).
	ChaCha20NonceSize = chacha20.NonceSize
	// ChaCha20Poly1305KeySize is the AEAD key size.
	ChaCha20Poly1305KeySize = chacha20poly1305.KeySize
)

// EncryptChaCha20 XORs plainText with the ChaCha20 keystream seeded by key
// and nonce. ChaCha20 is an unauthenticated stream cipher: callers must
// authenticate the result separately (see internal/util/hmacsha3.go).
func EncryptChaCha20(plainText, key, nonce []byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("creating ChaCha20 cipher: %w", err)
	}
	out := make([]byte, len(plainText))
	c.XORKeyStream(out, plainText)
	return out, nil
}

// DecryptChaCha20 is symmetric with EncryptChaCha20.
func DecryptChaCha20(cipherText, key, nonce []byte) ([]byte, error) {
	return EncryptChaCha20(cipherText, key, nonce)
}

// EncryptChaCha20Poly1305WithAAD seals plainText, returning nonce||ciphertext||tag.
func EncryptChaCha20Poly1305WithAAD(plainText, key, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("creating ChaCha20-Poly1305 AEAD: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plainText, aad), nil
}

// DecryptChaCha20Poly1305WithAAD reverses EncryptChaCha20Poly1305WithAAD.
func DecryptChaCha20Poly1305WithAAD(cipherText, key, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("creating ChaCha20-Poly1305 AEAD: %w", err)
	}
	if len(cipherText) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce size")
	}
	nonce, cipherText := cipherText[:aead.NonceSize()], cipherText[aead.NonceSize():]
	plainText, err := aead.Open(nil, nonce, cipherText, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}
	return plainText, nil
}

// ChaCha20Poly1305TagSize is the AEAD authentication tag length.
const ChaCha20Poly1305TagSize = chacha20poly1305.Overhead
