// Package crypto implements the secrets codec used for stored tokens and passwords.
package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyLen is the required codec key length.
const KeyLen = chacha20poly1305.KeySize

// Codec seals and opens credential material with XChaCha20-Poly1305.
// Ciphertext layout: nonce || AEAD(plaintext).
type Codec struct {
	key []byte
}

// NewCodec constructs a codec from a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeyLen {
		return nil, errors.New("codec key must be 32 bytes")
	}
	k := make([]byte, KeyLen)
	copy(k, key)
	return &Codec{key: k}, nil
}

// RandBytes returns n cryptographically random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, nil)...)
	return out, nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("ciphertext too short")
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	ct := ciphertext[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, nil)
}

// EncryptString is a convenience wrapper for string secrets.
func (c *Codec) EncryptString(s string) ([]byte, error) { return c.Encrypt([]byte(s)) }

// DecryptString opens ciphertext and returns it as a string.
func (c *Codec) DecryptString(ct []byte) (string, error) {
	b, err := c.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
