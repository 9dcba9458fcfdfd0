package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// AuthState is the state of an in-progress card handshake.
type AuthState string

// Handshake states. Transitions are one-way:
// Started -> ChallengeSent -> Verified | Failed.
const (
	AuthStateStarted       AuthState = "started"
	AuthStateChallengeSent AuthState = "challenge_sent"
	AuthStateVerified      AuthState = "verified"
	AuthStateFailed        AuthState = "failed"
)

// SessionIDPrefix is the prefix for handshake session IDs.
const SessionIDPrefix = "uksn-"

// AuthSession tracks one in-progress mutual authentication between a
// vending machine reader and a DESFire card.
//
// Key holds the card's AES key for the lifetime of the session. It is
// pinned, together with its version, when the session is created;
// key rotation after that point does not affect a running handshake.
// The key never leaves session memory.
type AuthSession struct {
	ID        string
	CardUID   string
	MachineID string

	KeyIndex   uint8
	KeyVersion int
	Key        []byte

	// HostNonce (RndA) and CardNonce (RndB) are set exactly once, in
	// the transition to ChallengeSent.
	HostNonce []byte
	CardNonce []byte

	State AuthState

	// CreatedAt and LastTouched are Unix milliseconds.
	CreatedAt   int64
	LastTouched int64
}

// NewAuthSession creates a session in the Started state with a
// generated ID. The key must be exactly 16 bytes.
func NewAuthSession(cardUID, machineID string, keyIndex uint8, keyVersion int, key []byte) (*AuthSession, error) {
	if cardUID == "" {
		return nil, ErrMissingArgument.WithDetails("card_uid is required")
	}
	if !IsValidCardUID(cardUID) {
		return nil, ErrInvalidArgument.WithDetails("card_uid must be hex")
	}
	if len(key) != 16 {
		return nil, ErrInvalidArgument.WithDetails("key must be 16 bytes")
	}

	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	keyCopy := make([]byte, 16)
	copy(keyCopy, key)

	return &AuthSession{
		ID:          id,
		CardUID:     strings.ToUpper(cardUID),
		MachineID:   machineID,
		KeyIndex:    keyIndex,
		KeyVersion:  keyVersion,
		Key:         keyCopy,
		State:       AuthStateStarted,
		CreatedAt:   now,
		LastTouched: now,
	}, nil
}

// GenerateSessionID generates a session ID: uksn-{ulid_lowercase}.
func GenerateSessionID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// CanTransition reports whether moving to the given state is allowed.
// Terminal states have no outgoing edges.
func (s *AuthSession) CanTransition(to AuthState) bool {
	switch s.State {
	case AuthStateStarted:
		return to == AuthStateChallengeSent || to == AuthStateFailed
	case AuthStateChallengeSent:
		return to == AuthStateVerified || to == AuthStateFailed
	default:
		return false
	}
}

// IsTerminal reports whether the session reached a final state.
func (s *AuthSession) IsTerminal() bool {
	return s.State == AuthStateVerified || s.State == AuthStateFailed
}

// Age returns the time since the session was last touched.
func (s *AuthSession) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-s.LastTouched) * time.Millisecond
}

// Touch refreshes the last-touched timestamp.
func (s *AuthSession) Touch(now time.Time) {
	s.LastTouched = now.UnixMilli()
}

// Clone returns a deep copy of the session.
func (s *AuthSession) Clone() *AuthSession {
	clone := *s
	clone.Key = cloneBytes(s.Key)
	clone.HostNonce = cloneBytes(s.HostNonce)
	clone.CardNonce = cloneBytes(s.CardNonce)
	return &clone
}

// Wipe zeroes the key material held by the session. Called when the
// session leaves the store.
func (s *AuthSession) Wipe() {
	for i := range s.Key {
		s.Key[i] = 0
	}
	for i := range s.HostNonce {
		s.HostNonce[i] = 0
	}
	for i := range s.CardNonce {
		s.CardNonce[i] = 0
	}
}

// IsValidCardUID reports whether uid is a plausible card hardware
// identifier: non-empty, even-length hex, at most 10 bytes (DESFire
// UIDs are 7 bytes; 4-byte NUIDs also occur).
func IsValidCardUID(uid string) bool {
	if uid == "" || len(uid)%2 != 0 || len(uid) > 20 {
		return false
	}
	_, err := hex.DecodeString(uid)
	return err == nil
}

// CardKey is a card's AES key as resolved by the key store.
type CardKey struct {
	CardUID string
	Key     []byte
	Index   uint8
	Version int
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
