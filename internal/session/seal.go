package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrUnsealFailed = errors.New("sealed value could not be opened")

// Sealer encrypts tokens at rest with NaCl secretbox. The key is derived
// from the configured secret.
type Sealer struct {
	key [32]byte
}

// NewSealer returns nil for an empty secret, which disables sealing.
func NewSealer(secret string) *Sealer {
	if secret == "" {
		return nil
	}
	return &Sealer{key: sha256.Sum256([]byte(secret))}
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil {
		return plaintext, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	if s == nil {
		return sealed, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(data) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	out, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealFailed
	}
	return string(out), nil
}
