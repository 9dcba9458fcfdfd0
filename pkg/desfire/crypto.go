package desfire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// Sizes fixed by the DESFire AES authentication scheme.
const (
	// KeySize is the AES-128 key length in bytes.
	KeySize = 16

	// BlockSize is the AES block length in bytes.
	BlockSize = 16

	// NonceSize is the length of RndA/RndB in bytes.
	NonceSize = 16

	// ChallengeSize is the length of the RndA||rot(RndB) challenge.
	ChallengeSize = 32
)

// ErrInvalidLength indicates a key or data buffer of the wrong size.
type ErrInvalidLength struct {
	What string
	Want int
	Got  int
}

func (e *ErrInvalidLength) Error() string {
	return fmt.Sprintf("desfire: %s must be %d bytes, got %d", e.What, e.Want, e.Got)
}

// Encrypt encrypts data with AES-128 in CBC mode using a zero IV and
// no padding. The data length must be a multiple of the block size.
func Encrypt(data, key []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, &ErrInvalidLength{What: "plaintext", Want: BlockSize, Got: len(data)}
	}

	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, zeroIV()).CryptBlocks(out, data)
	return out, nil
}

// Decrypt decrypts data with AES-128 in CBC mode using a zero IV and
// no padding. The data length must be a multiple of the block size.
func Decrypt(data, key []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, &ErrInvalidLength{What: "ciphertext", Want: BlockSize, Got: len(data)}
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, zeroIV()).CryptBlocks(out, data)
	return out, nil
}

// RotateLeft returns a copy of b with the first byte moved to the end.
// The empty slice rotates to an empty slice.
func RotateLeft(b []byte) []byte {
	if len(b) == 0 {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b[1:])
	out[len(b)-1] = b[0]
	return out
}

// DeriveSessionKey derives the post-authentication session key from
// the host nonce (RndA) and card nonce (RndB):
//
//	RndA[0:4] || RndB[0:4] || RndA[12:16] || RndB[12:16]
func DeriveSessionKey(rndA, rndB []byte) ([]byte, error) {
	if len(rndA) != NonceSize {
		return nil, &ErrInvalidLength{What: "RndA", Want: NonceSize, Got: len(rndA)}
	}
	if len(rndB) != NonceSize {
		return nil, &ErrInvalidLength{What: "RndB", Want: NonceSize, Got: len(rndB)}
	}

	key := make([]byte, KeySize)
	copy(key[0:4], rndA[0:4])
	copy(key[4:8], rndB[0:4])
	copy(key[8:12], rndA[12:16])
	copy(key[12:16], rndB[12:16])
	return key, nil
}

// RandomNonce returns a cryptographically secure 16-byte nonce.
func RandomNonce() ([]byte, error) {
	b := make([]byte, NonceSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("desfire: read random: %w", err)
	}
	return b, nil
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, &ErrInvalidLength{What: "key", Want: KeySize, Got: len(key)}
	}
	return aes.NewCipher(key)
}

func zeroIV() []byte {
	return make([]byte, BlockSize)
}
