package desfire

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func TestEncrypt_KnownVector(t *testing.T) {
	// NIST SP 800-38A AES-128 ECB vector; identical to CBC with a zero
	// IV for a single block.
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	plaintext := mustHex(t, "6bc1bee22e409f96e93d7e117393172a")
	want := mustHex(t, "3ad77bb40d7a3660a89ecaf32466ef97")

	got, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encrypt() = %x, want %x", got, want)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	for _, size := range []int{16, 32, 64} {
		key := make([]byte, KeySize)
		plaintext := make([]byte, size)
		if _, err := rand.Read(key); err != nil {
			t.Fatal(err)
		}
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatal(err)
		}

		ciphertext, err := Encrypt(plaintext, key)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes) error = %v", size, err)
		}
		if bytes.Equal(ciphertext, plaintext) {
			t.Errorf("ciphertext equals plaintext for %d bytes", size)
		}

		got, err := Decrypt(ciphertext, key)
		if err != nil {
			t.Fatalf("Decrypt(%d bytes) error = %v", size, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round trip mismatch for %d bytes", size)
		}
	}
}

func TestEncrypt_InvalidLengths(t *testing.T) {
	key16 := make([]byte, 16)
	tests := []struct {
		name string
		data []byte
		key  []byte
	}{
		{"short key", make([]byte, 16), make([]byte, 8)},
		{"long key", make([]byte, 16), make([]byte, 24)},
		{"empty data", nil, key16},
		{"partial block", make([]byte, 15), key16},
		{"unaligned data", make([]byte, 20), key16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encrypt(tt.data, tt.key); err == nil {
				t.Error("Encrypt() expected error, got nil")
			} else {
				var lenErr *ErrInvalidLength
				if !errors.As(err, &lenErr) {
					t.Errorf("Encrypt() error = %v, want ErrInvalidLength", err)
				}
			}
			if _, err := Decrypt(tt.data, tt.key); err == nil {
				t.Error("Decrypt() expected error, got nil")
			}
		})
	}
}

func TestRotateLeft(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"empty", []byte{}, []byte{}},
		{"single", []byte{0xAB}, []byte{0xAB}},
		{"four", []byte{1, 2, 3, 4}, []byte{2, 3, 4, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RotateLeft(tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("RotateLeft(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRotateLeft_DoesNotMutateInput(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	_ = RotateLeft(in)
	if !bytes.Equal(in, []byte{1, 2, 3, 4}) {
		t.Errorf("input mutated: %v", in)
	}
}

func TestRotateLeft_SixteenApplicationsIdentity(t *testing.T) {
	original := make([]byte, 16)
	if _, err := rand.Read(original); err != nil {
		t.Fatal(err)
	}

	b := original
	for i := 0; i < 16; i++ {
		b = RotateLeft(b)
	}
	if !bytes.Equal(b, original) {
		t.Errorf("16 rotations of a 16-byte value should be identity")
	}
}

func TestDeriveSessionKey(t *testing.T) {
	rndA := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	rndB := mustHex(t, "101112131415161718191a1b1c1d1e1f")
	want := mustHex(t, "00010203101112130c0d0e0f1c1d1e1f")

	got, err := DeriveSessionKey(rndA, rndB)
	if err != nil {
		t.Fatalf("DeriveSessionKey() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("DeriveSessionKey() = %x, want %x", got, want)
	}
}

func TestDeriveSessionKey_OrderSensitive(t *testing.T) {
	rndA := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	rndB := mustHex(t, "101112131415161718191a1b1c1d1e1f")

	ab, err := DeriveSessionKey(rndA, rndB)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := DeriveSessionKey(rndB, rndA)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ab, ba) {
		t.Error("DeriveSessionKey should depend on argument order")
	}
}

func TestDeriveSessionKey_InvalidLengths(t *testing.T) {
	good := make([]byte, 16)
	bad := make([]byte, 15)

	if _, err := DeriveSessionKey(bad, good); err == nil {
		t.Error("expected error for short RndA")
	}
	if _, err := DeriveSessionKey(good, bad); err == nil {
		t.Error("expected error for short RndB")
	}
}

func TestRandomNonce(t *testing.T) {
	a, err := RandomNonce()
	if err != nil {
		t.Fatalf("RandomNonce() error = %v", err)
	}
	if len(a) != NonceSize {
		t.Fatalf("len = %d, want %d", len(a), NonceSize)
	}

	b, err := RandomNonce()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("two nonces should not collide")
	}
}
