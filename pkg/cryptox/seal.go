package cryptox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealInfo labels the HKDF derivation so the same master key material can be
// reused for other purposes without sharing the actual sealing key.
const sealInfo = "bouncer/securestore/v1"

// Sealer provides authenticated encryption for values at rest. Keys are
// derived from caller-supplied master key material, so two Sealers built
// from the same material can open each other's output.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 256-bit sealing key from the master key material using
// HKDF-SHA256 and returns a Sealer backed by ChaCha20-Poly1305.
func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("master key material must not be empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts and authenticates a value.
// The output format is: [12-byte nonce][ciphertext][16-byte auth tag]
// A fresh random nonce is used per call.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the ciphertext and auth tag to the nonce
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal, verifying its authentication tag.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("sealed value too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed value: %w", err)
	}

	return plaintext, nil
}

// LoadMasterKey loads master key material from the given file, or from the
// BOUNCER_MASTER_KEY environment variable when no path is set. It returns an
// error when neither source is available.
func LoadMasterKey(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		return data, nil
	}

	if envKey := os.Getenv("BOUNCER_MASTER_KEY"); envKey != "" {
		return []byte(envKey), nil
	}

	return nil, errors.New("no master key configured")
}

// LoadOrCreateMasterKey loads master key material from the given file,
// generating and persisting fresh material (0600) on first use. Hosts that
// manage their own key distribution should use LoadMasterKey instead.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read master key file: %w", err)
	}

	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	if err := os.WriteFile(path, material, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write master key file: %w", err)
	}

	return material, nil
}
