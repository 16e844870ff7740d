package sealbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrSealbox wraps every failure mode of the box so callers can treat
// encrypt and decrypt errors uniformly.
var ErrSealbox = errors.New("sealbox")

// Sealbox provides AES-GCM encryption for short identifiers exchanged with
// external parties, such as local record ids embedded in permission
// requests. Ciphertexts are url-safe base64 with the nonce prepended.
type Sealbox struct {
	aead cipher.AEAD
}

// New creates a Sealbox from a raw key of 16, 24 or 32 bytes.
func New(key []byte) (*Sealbox, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: key must be 16, 24 or 32 bytes, got %d", ErrSealbox, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrSealbox, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create GCM: %v", ErrSealbox, err)
	}
	return &Sealbox{aead: aead}, nil
}

// FromEncodedKey creates a Sealbox from a url-safe base64 encoded key, the
// form the key takes in configuration.
func FromEncodedKey(encoded string) (*Sealbox, error) {
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode key: %v", ErrSealbox, err)
	}
	return New(key)
}

// Encrypt seals the plaintext and returns url-safe base64 of nonce plus
// ciphertext.
func (s *Sealbox) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generate nonce: %v", ErrSealbox, err)
	}

	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt: it decodes the base64 input, splits off the
// nonce and opens the remainder.
func (s *Sealbox) Decrypt(encrypted string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrSealbox, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrSealbox)
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: open: %v", ErrSealbox, err)
	}
	return string(plaintext), nil
}
