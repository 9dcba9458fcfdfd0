// Package keywrap encrypts card keys for storage at rest.
//
// A Wrapper seals 16-byte card keys under a master key using an AEAD
// cipher, binding each sealed blob to the card UID as additional data
// so a wrapped key cannot be replayed onto another card record.
//
// The cipher is chosen per hardware: AES-GCM where AES instructions
// are available, ChaCha20-Poly1305 elsewhere.
package keywrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// MasterKeySize is the required master key length in bytes.
const MasterKeySize = 32

// Algorithm identifies the AEAD in use.
type Algorithm string

const (
	AlgorithmAESGCM   Algorithm = "aes-gcm"
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
)

var (
	// ErrBadMasterKey indicates a master key of the wrong length.
	ErrBadMasterKey = errors.New("keywrap: master key must be 32 bytes")

	// ErrCiphertextShort indicates a truncated sealed blob.
	ErrCiphertextShort = errors.New("keywrap: ciphertext too short")
)

// Wrapper seals and opens card keys under a master key.
type Wrapper struct {
	aead cipher.AEAD
	alg  Algorithm
}

// New creates a Wrapper, selecting the cipher for the host hardware.
func New(masterKey []byte) (*Wrapper, error) {
	if hardwareAES() {
		return NewWithAlgorithm(masterKey, AlgorithmAESGCM)
	}
	return NewWithAlgorithm(masterKey, AlgorithmChaCha20)
}

// NewWithAlgorithm creates a Wrapper with an explicit cipher choice.
func NewWithAlgorithm(masterKey []byte, alg Algorithm) (*Wrapper, error) {
	if len(masterKey) != MasterKeySize {
		return nil, ErrBadMasterKey
	}

	switch alg {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(masterKey)
		if err != nil {
			return nil, fmt.Errorf("keywrap: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("keywrap: %w", err)
		}
		return &Wrapper{aead: aead, alg: alg}, nil

	case AlgorithmChaCha20:
		aead, err := chacha20poly1305.New(masterKey)
		if err != nil {
			return nil, fmt.Errorf("keywrap: %w", err)
		}
		return &Wrapper{aead: aead, alg: alg}, nil

	default:
		return nil, fmt.Errorf("keywrap: unknown algorithm %q", alg)
	}
}

// Algorithm returns the cipher in use.
func (w *Wrapper) Algorithm() Algorithm {
	return w.alg
}

// Seal encrypts a card key, binding it to cardUID. The nonce is
// prepended to the returned blob.
func (w *Wrapper) Seal(cardKey []byte, cardUID string) ([]byte, error) {
	nonce := make([]byte, w.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("keywrap: read nonce: %w", err)
	}
	return w.aead.Seal(nonce, nonce, cardKey, []byte(cardUID)), nil
}

// Open decrypts a sealed blob produced by Seal for the same cardUID.
func (w *Wrapper) Open(sealed []byte, cardUID string) ([]byte, error) {
	if len(sealed) < w.aead.NonceSize() {
		return nil, ErrCiphertextShort
	}
	nonce, ciphertext := sealed[:w.aead.NonceSize()], sealed[w.aead.NonceSize():]
	key, err := w.aead.Open(nil, nonce, ciphertext, []byte(cardUID))
	if err != nil {
		return nil, fmt.Errorf("keywrap: open: %w", err)
	}
	return key, nil
}

// hardwareAES reports whether the platform has fast AES instructions.
// Go's crypto/aes uses AES-NI on amd64 and the ARMv8 crypto extensions
// on arm64.
func hardwareAES() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}
