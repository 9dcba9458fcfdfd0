package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/internal/storage/ledger"
)

// DefaultStatementTimeout bounds how long a dispense may wait on the
// ledger's write lock.
const DefaultStatementTimeout = 5 * time.Second

// Dispense failure reasons surfaced to the caller.
const (
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonScopeMismatch       = "scope_mismatch"
)

// Ledger is the persistence interface for wallet debits.
type Ledger interface {
	Dispense(ctx context.Context, req ledger.DispenseRequest) (*ledger.DispenseOutcome, error)
}

// DispenseService debits wallets for dispensed products. It assumes
// the caller already holds a verified handshake for the card.
type DispenseService struct {
	ledger  Ledger
	logger  *slog.Logger
	timeout time.Duration

	onDispense func(success bool, amountPaise int64)
}

// DispenseOption configures the DispenseService.
type DispenseOption func(*DispenseService)

// WithDispenseLogger sets the logger.
func WithDispenseLogger(l *slog.Logger) DispenseOption {
	return func(s *DispenseService) { s.logger = l }
}

// WithStatementTimeout bounds the ledger lock wait.
func WithStatementTimeout(d time.Duration) DispenseOption {
	return func(s *DispenseService) { s.timeout = d }
}

// WithDispenseHook registers a callback invoked once per completed
// dispense attempt, e.g. to feed metrics.
func WithDispenseHook(fn func(success bool, amountPaise int64)) DispenseOption {
	return func(s *DispenseService) { s.onDispense = fn }
}

// NewDispenseService creates a DispenseService.
func NewDispenseService(l Ledger, opts ...DispenseOption) *DispenseService {
	s := &DispenseService{
		ledger:  l,
		logger:  slog.Default(),
		timeout: DefaultStatementTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DispenseRequest is one product dispense against a wallet.
type DispenseRequest struct {
	WalletID    string // Optional; when set the card must link to it
	CardUID     string // Required
	MachineID   string // Required
	ProductType string
	AmountPaise int64 // Required, > 0
}

// DispenseResult is the structured verdict. Business rejections set
// Success false with a Reason; they are results, not errors.
type DispenseResult struct {
	Success        bool
	Reason         string
	RemainingPaise int64
	TransactionID  string
}

// Dispense atomically debits the wallet linked to the card.
//
// Insufficient balance and business-unit scope mismatches come back as
// a structured failure with an actionable reason. Unknown references
// and storage faults are errors.
func (s *DispenseService) Dispense(ctx context.Context, req *DispenseRequest) (*DispenseResult, error) {
	// Cheap rejections before any lock is taken.
	if req.CardUID == "" || req.MachineID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("card uid and machine id are required")
	}
	if req.AmountPaise <= 0 {
		return nil, domain.ErrInvalidAmount.WithDetails("amount must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outcome, err := s.ledger.Dispense(ctx, ledger.DispenseRequest{
		WalletID:    req.WalletID,
		CardUID:     req.CardUID,
		MachineID:   req.MachineID,
		ProductType: req.ProductType,
		AmountPaise: req.AmountPaise,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInsufficientBalance):
		s.finish(false, req)
		return &DispenseResult{Success: false, Reason: ReasonInsufficientBalance}, nil
	case errors.Is(err, domain.ErrScopeMismatch):
		s.finish(false, req)
		return &DispenseResult{Success: false, Reason: ReasonScopeMismatch}, nil
	default:
		return nil, err
	}

	s.finish(true, req)
	s.logger.Info("product dispensed",
		"transaction_id", outcome.Record.ID,
		"wallet_id", outcome.Record.WalletID,
		"machine_id", req.MachineID,
		"amount_paise", req.AmountPaise,
		"remaining_paise", outcome.RemainingPaise)

	return &DispenseResult{
		Success:        true,
		RemainingPaise: outcome.RemainingPaise,
		TransactionID:  outcome.Record.ID,
	}, nil
}

func (s *DispenseService) finish(success bool, req *DispenseRequest) {
	if s.onDispense != nil {
		s.onDispense(success, req.AmountPaise)
	}
	if !success {
		s.logger.Info("dispense rejected",
			"card_uid", req.CardUID,
			"machine_id", req.MachineID,
			"amount_paise", req.AmountPaise)
	}
}
