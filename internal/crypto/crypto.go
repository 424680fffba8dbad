// Package crypto seals secrets (the completion-service API key) before they
// are written to settings.json.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

var errShortCiphertext = errors.New("ciphertext too short")

// Sealer encrypts and decrypts short strings with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key from secret. An empty secret falls back to a
// machine-bound key (hostname and working directory), which only keeps keys
// from being readable in plain text.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		hostname, _ := os.Hostname()
		cwd, _ := os.Getwd()
		secret = fmt.Sprintf("tenderprep:%s:%s", hostname, cwd)
	}
	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher error: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM error: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns it base64-encoded with the nonce
// prepended. Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce error: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode error: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n {
		return "", errShortCiphertext
	}
	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt error: %w", err)
	}
	return string(plaintext), nil
}
