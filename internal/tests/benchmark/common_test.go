package benchmark

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"golang.org/x/time/rate"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/internal/core/service"
	"github.com/urbanketl/vendcore/internal/storage/ledger"
	"github.com/urbanketl/vendcore/internal/storage/memory"
	"github.com/urbanketl/vendcore/pkg/desfire"
)

const benchCardUID = "04AABBCCDD22EE"

func benchCardKey() []byte {
	return bytes.Repeat([]byte{0x42}, desfire.KeySize)
}

type staticKeys struct{}

func (staticKeys) Active(_ context.Context, _ string) (*domain.CardKey, error) {
	return &domain.CardKey{CardUID: benchCardUID, Key: benchCardKey(), Index: 1, Version: 1}, nil
}

func newAuthService(b *testing.B) *service.AuthService {
	b.Helper()
	return service.NewAuthService(memory.New(), staticKeys{},
		service.WithGraceDelete(0),
		service.WithRateLimit(rate.Inf, 1))
}

// benchCard simulates the card side of the handshake.
type benchCard struct {
	key  []byte
	rndB []byte
}

func (c *benchCard) firstReply(b *testing.B) []byte {
	b.Helper()
	rndB, err := desfire.RandomNonce()
	if err != nil {
		b.Fatal(err)
	}
	c.rndB = rndB
	enc, err := desfire.Encrypt(rndB, c.key)
	if err != nil {
		b.Fatal(err)
	}
	return enc
}

func (c *benchCard) answer(b *testing.B, challengeAPDU []byte) []byte {
	b.Helper()
	plain, err := desfire.Decrypt(challengeAPDU[5:5+desfire.ChallengeSize], c.key)
	if err != nil {
		b.Fatal(err)
	}
	enc, err := desfire.Encrypt(desfire.RotateLeft(plain[:desfire.NonceSize]), c.key)
	if err != nil {
		b.Fatal(err)
	}
	return enc
}

// newBenchLedger seeds a ledger with one wallet, machine, and card.
// The opening balance is effectively unlimited for debit benchmarks.
func newBenchLedger(b *testing.B) *ledger.Store {
	b.Helper()
	store, err := ledger.Open(filepath.Join(b.TempDir(), "ledger.db"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.CreateWallet(ctx, domain.Wallet{ID: "wallet-1", BusinessUnitID: "unit-1", BalancePaise: 1 << 50}); err != nil {
		b.Fatal(err)
	}
	if err := store.CreateMachine(ctx, domain.Machine{ID: "machine-1", BusinessUnitID: "unit-1", Active: true}); err != nil {
		b.Fatal(err)
	}
	if err := store.CreateCard(ctx, domain.Card{UID: benchCardUID, WalletID: "wallet-1", Active: true}); err != nil {
		b.Fatal(err)
	}
	return store
}
