package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// SealedStore decorates a Store with AES-256-GCM encryption at rest.
// Stored values are hex(nonce || ciphertext || tag); Get/Set are transparent
// to callers, Has passes through untouched.
type SealedStore struct {
	inner Store
	gcm   cipher.AEAD
}

// NewSealedStore wraps inner with encryption using the given 64-hex-character key.
func NewSealedStore(inner Store, hexKey string) (*SealedStore, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key hex: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SealedStore{inner: inner, gcm: gcm}, nil
}

func (s *SealedStore) Get(ctx context.Context, namespace, account string) (string, error) {
	sealed, err := s.inner.Get(ctx, namespace, account)
	if err != nil {
		return "", err
	}
	return s.open(sealed)
}

func (s *SealedStore) Set(ctx context.Context, namespace, account, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, namespace, account, sealed)
}

func (s *SealedStore) Has(ctx context.Context, namespace, account string) (bool, error) {
	return s.inner.Has(ctx, namespace, account)
}

func (s *SealedStore) seal(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the encrypted data to nonce, returning nonce || ciphertext || tag
	ciphertext := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

func (s *SealedStore) open(sealed string) (string, error) {
	buffer, err := hex.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(buffer) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, cipherBytes := buffer[:nonceSize], buffer[nonceSize:]
	plainBytes, err := s.gcm.Open(nil, nonce, cipherBytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plainBytes), nil
}
