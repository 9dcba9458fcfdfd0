package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DispenseIDPrefix is the prefix for dispense transaction IDs.
const DispenseIDPrefix = "ukdt-"

// Wallet is a stored-value balance owned by a business unit.
// Balances are integer paise; they are never negative.
type Wallet struct {
	ID             string
	BusinessUnitID string
	BalancePaise   int64
}

// Machine is a tea vending machine assigned to a business unit.
type Machine struct {
	ID             string
	BusinessUnitID string
	Active         bool
}

// Card is an RFID card linked to a wallet.
type Card struct {
	UID           string
	WalletID      string
	Active        bool
	LastUsedAt    int64 // Unix milliseconds, 0 if never used
	LastMachineID string
}

// DispenseRecord is the audit row created by a wallet debit. A record
// exists if and only if the corresponding balance mutation committed.
type DispenseRecord struct {
	ID          string
	WalletID    string
	CardUID     string
	MachineID   string
	ProductType string
	AmountPaise int64
	Success     bool
	CreatedAt   int64 // Unix milliseconds
}

// GenerateDispenseID generates a dispense record ID: ukdt-{ulid_lowercase}.
func GenerateDispenseID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return DispenseIDPrefix + strings.ToLower(id.String()), nil
}

// AuthAttempt is a write-only audit record of a completed or aborted
// handshake, consumed by the audit sink.
type AuthAttempt struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	CardUID   string `json:"card_uid"`
	MachineID string `json:"machine_id,omitempty"`
	Outcome   string `json:"outcome"` // verified, mismatch, malformed, crypto_error, error
	Challenge string `json:"challenge,omitempty"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Auth attempt outcomes.
const (
	AttemptOutcomeVerified  = "verified"
	AttemptOutcomeMismatch  = "mismatch"
	AttemptOutcomeMalformed = "malformed"
	AttemptOutcomeCrypto    = "crypto_error"
	AttemptOutcomeError     = "error"
)
