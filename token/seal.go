package token

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts values before they reach the Repo. The slot name is bound as
// additional data so a sealed access token can't be replayed as a refresh token.
type Sealer interface {
	Seal(slot, plaintext string) (string, error)
	Open(slot, sealed string) (string, error)
}

// AEADSealer seals with XChaCha20-Poly1305.
type AEADSealer struct {
	aead cipher.AEAD
}

var _ Sealer = (*AEADSealer)(nil)

// NewSealer builds a sealer from a 32-byte key.
func NewSealer(key []byte) (*AEADSealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("token.NewSealer: %w", err)
	}
	return &AEADSealer{aead: aead}, nil
}

func (s *AEADSealer) Seal(slot, plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("AEADSealer.Seal rand.Read: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(slot))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *AEADSealer) Open(slot, sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("AEADSealer.Open decode: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("AEADSealer.Open: sealed value too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(slot))
	if err != nil {
		return "", fmt.Errorf("AEADSealer.Open: %w", err)
	}
	return string(plain), nil
}
