package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/internal/storage/ledger"
)

func newTestDispense(t *testing.T, balance int64, opts ...DispenseOption) *DispenseService {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.CreateWallet(ctx, domain.Wallet{
		ID: "wallet-1", BusinessUnitID: "unit-1", BalancePaise: balance,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateMachine(ctx, domain.Machine{
		ID: "machine-1", BusinessUnitID: "unit-1", Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateMachine(ctx, domain.Machine{
		ID: "machine-foreign", BusinessUnitID: "unit-2", Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateCard(ctx, domain.Card{
		UID: testCardUID, WalletID: "wallet-1", Active: true,
	}); err != nil {
		t.Fatal(err)
	}

	return NewDispenseService(store, opts...)
}

func TestDispenseService_Success(t *testing.T) {
	svc := newTestDispense(t, 1000)

	result, err := svc.Dispense(context.Background(), &DispenseRequest{
		WalletID:    "wallet-1",
		CardUID:     testCardUID,
		MachineID:   "machine-1",
		ProductType: "ginger_tea",
		AmountPaise: 750,
	})
	if err != nil {
		t.Fatalf("Dispense() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.RemainingPaise != 250 {
		t.Errorf("RemainingPaise = %d, want 250", result.RemainingPaise)
	}
	if result.TransactionID == "" {
		t.Error("TransactionID should be set")
	}
}

func TestDispenseService_InsufficientBalance(t *testing.T) {
	svc := newTestDispense(t, 100)

	result, err := svc.Dispense(context.Background(), &DispenseRequest{
		CardUID:     testCardUID,
		MachineID:   "machine-1",
		AmountPaise: 750,
	})
	if err != nil {
		t.Fatalf("Dispense() error = %v, rejection is a result not an error", err)
	}
	if result.Success || result.Reason != ReasonInsufficientBalance {
		t.Errorf("result = %+v, want insufficient_balance", result)
	}
}

func TestDispenseService_ScopeMismatch(t *testing.T) {
	svc := newTestDispense(t, 1000)

	result, err := svc.Dispense(context.Background(), &DispenseRequest{
		CardUID:     testCardUID,
		MachineID:   "machine-foreign",
		AmountPaise: 100,
	})
	if err != nil {
		t.Fatalf("Dispense() error = %v", err)
	}
	if result.Success || result.Reason != ReasonScopeMismatch {
		t.Errorf("result = %+v, want scope_mismatch", result)
	}
}

func TestDispenseService_Validation(t *testing.T) {
	svc := newTestDispense(t, 1000)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     DispenseRequest
		wantErr *domain.DomainError
	}{
		{"zero amount", DispenseRequest{CardUID: testCardUID, MachineID: "machine-1"}, domain.ErrInvalidAmount},
		{"negative amount", DispenseRequest{CardUID: testCardUID, MachineID: "machine-1", AmountPaise: -5}, domain.ErrInvalidAmount},
		{"missing card", DispenseRequest{MachineID: "machine-1", AmountPaise: 100}, domain.ErrMissingArgument},
		{"missing machine", DispenseRequest{CardUID: testCardUID, AmountPaise: 100}, domain.ErrMissingArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Dispense(ctx, &tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Dispense() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDispenseService_UnknownCard(t *testing.T) {
	svc := newTestDispense(t, 1000)
	_, err := svc.Dispense(context.Background(), &DispenseRequest{
		CardUID:     "DEADBEEF",
		MachineID:   "machine-1",
		AmountPaise: 100,
	})
	if !errors.Is(err, domain.ErrCardNotFound) {
		t.Errorf("Dispense() error = %v, want ErrCardNotFound", err)
	}
}

func TestDispenseService_Hook(t *testing.T) {
	type call struct {
		success bool
		amount  int64
	}
	var calls []call
	svc := newTestDispense(t, 100, WithDispenseHook(func(success bool, amount int64) {
		calls = append(calls, call{success, amount})
	}))
	ctx := context.Background()

	if _, err := svc.Dispense(ctx, &DispenseRequest{CardUID: testCardUID, MachineID: "machine-1", AmountPaise: 60}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Dispense(ctx, &DispenseRequest{CardUID: testCardUID, MachineID: "machine-1", AmountPaise: 60}); err != nil {
		t.Fatal(err)
	}

	want := []call{{true, 60}, {false, 60}}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("hook calls = %+v, want %+v", calls, want)
	}
}
