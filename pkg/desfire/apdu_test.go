package desfire

import (
	"bytes"
	"testing"
)

func TestAuthenticateCommand(t *testing.T) {
	got := AuthenticateCommand(0x02)
	want := []byte{0x90, 0xAA, 0x00, 0x00, 0x01, 0x02}
	if !bytes.Equal(got, want) {
		t.Errorf("AuthenticateCommand(2) = % X, want % X", got, want)
	}
}

func TestContinueCommand(t *testing.T) {
	challenge := make([]byte, ChallengeSize)
	for i := range challenge {
		challenge[i] = byte(i)
	}

	got, err := ContinueCommand(challenge)
	if err != nil {
		t.Fatalf("ContinueCommand() error = %v", err)
	}
	if len(got) != 5+ChallengeSize {
		t.Fatalf("len = %d, want %d", len(got), 5+ChallengeSize)
	}
	if !bytes.Equal(got[:5], []byte{0x90, 0xAF, 0x00, 0x00, 0x20}) {
		t.Errorf("header = % X", got[:5])
	}
	if !bytes.Equal(got[5:], challenge) {
		t.Error("challenge bytes not carried verbatim")
	}
}

func TestContinueCommand_WrongLength(t *testing.T) {
	if _, err := ContinueCommand(make([]byte, 16)); err == nil {
		t.Error("expected error for 16-byte challenge")
	}
}
