// Package ledger persists wallets, machines, cards, and dispense
// transactions in SQLite. The debit path runs as a single IMMEDIATE
// transaction so that concurrent dispenses against one wallet
// serialize at the database and a balance can never be spent twice.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/urbanketl/vendcore/internal/core/domain"
)

// Store is the SQLite-backed wallet ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path and
// applies the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("open ledger").WithCause(err)
	}

	// A single connection sidesteps SQLITE_BUSY between pooled
	// connections; the debit path holds the write lock briefly.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, domain.ErrStorage.WithDetails(pragma).WithCause(err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domain.ErrStorage.WithDetails("apply ledger schema").WithCause(err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DispenseRequest is a debit of one wallet for one dispensed product.
// WalletID is optional; when set, the card must be linked to exactly
// that wallet.
type DispenseRequest struct {
	WalletID    string
	CardUID     string
	MachineID   string
	ProductType string
	AmountPaise int64
}

// DispenseOutcome reports a committed debit.
type DispenseOutcome struct {
	Record         domain.DispenseRecord
	RemainingPaise int64
}

// Dispense atomically debits the wallet linked to the card and records
// the transaction. Either the balance mutation and its record both
// commit, or neither does.
//
// Failure modes map to domain errors: unknown or inactive card,
// unknown wallet, unknown or inactive machine, machine outside the
// wallet's business unit, and insufficient balance. A rejected debit
// leaves both the wallet and the transaction table untouched; a
// transaction row exists only for a committed balance mutation.
func (s *Store) Dispense(ctx context.Context, req DispenseRequest) (*DispenseOutcome, error) {
	if req.AmountPaise <= 0 {
		return nil, domain.ErrInvalidAmount.WithDetails(fmt.Sprintf("%d paise", req.AmountPaise))
	}

	txID, err := domain.GenerateDispenseID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()

	var outcome *DispenseOutcome
	err = s.withImmediateTx(ctx, func(tx *sql.Conn) error {
		var walletID string
		var cardActive bool
		err := tx.QueryRowContext(ctx,
			`SELECT wallet_id, active FROM cards WHERE uid = ?`, req.CardUID,
		).Scan(&walletID, &cardActive)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCardNotFound.WithDetails(req.CardUID)
		}
		if err != nil {
			return domain.ErrStorage.WithDetails("load card").WithCause(err)
		}
		if !cardActive {
			return domain.ErrCardNotFound.WithDetails(req.CardUID + " (inactive)")
		}
		if req.WalletID != "" && req.WalletID != walletID {
			return domain.ErrCardNotFound.WithDetails(
				fmt.Sprintf("card %s not linked to wallet %s", req.CardUID, req.WalletID))
		}

		var walletUnit string
		var balance int64
		err = tx.QueryRowContext(ctx,
			`SELECT business_unit_id, balance_paise FROM wallets WHERE id = ?`, walletID,
		).Scan(&walletUnit, &balance)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrWalletNotFound.WithDetails(walletID)
		}
		if err != nil {
			return domain.ErrStorage.WithDetails("load wallet").WithCause(err)
		}

		var machineUnit string
		var machineActive bool
		err = tx.QueryRowContext(ctx,
			`SELECT business_unit_id, active FROM machines WHERE id = ?`, req.MachineID,
		).Scan(&machineUnit, &machineActive)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrMachineNotFound.WithDetails(req.MachineID)
		}
		if err != nil {
			return domain.ErrStorage.WithDetails("load machine").WithCause(err)
		}
		if !machineActive {
			return domain.ErrMachineNotFound.WithDetails(req.MachineID + " (inactive)")
		}

		if machineUnit != walletUnit {
			return domain.ErrScopeMismatch.WithDetails(
				fmt.Sprintf("machine %s unit %s, wallet unit %s", req.MachineID, machineUnit, walletUnit))
		}

		if balance < req.AmountPaise {
			return domain.ErrInsufficientBalance.WithDetails(
				fmt.Sprintf("have %d, need %d", balance, req.AmountPaise))
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET balance_paise = balance_paise - ?, updated_at = ? WHERE id = ?`,
			req.AmountPaise, now, walletID,
		); err != nil {
			return domain.ErrStorage.WithDetails("debit wallet").WithCause(err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dispense_transactions
				(id, wallet_id, card_uid, machine_id, product_type, amount_paise, success, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			txID, walletID, req.CardUID, req.MachineID, req.ProductType, req.AmountPaise, now,
		); err != nil {
			return domain.ErrStorage.WithDetails("record transaction").WithCause(err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE cards SET last_used_at = ?, last_machine_id = ? WHERE uid = ?`,
			now, req.MachineID, req.CardUID,
		); err != nil {
			return domain.ErrStorage.WithDetails("touch card").WithCause(err)
		}

		outcome = &DispenseOutcome{
			Record: domain.DispenseRecord{
				ID:          txID,
				WalletID:    walletID,
				CardUID:     req.CardUID,
				MachineID:   req.MachineID,
				ProductType: req.ProductType,
				AmountPaise: req.AmountPaise,
				Success:     true,
				CreatedAt:   now,
			},
			RemainingPaise: balance - req.AmountPaise,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// CreateWallet inserts a wallet with an opening balance.
func (s *Store) CreateWallet(ctx context.Context, w domain.Wallet) error {
	if w.ID == "" || w.BusinessUnitID == "" {
		return domain.ErrMissingArgument.WithDetails("wallet id and business unit")
	}
	if w.BalancePaise < 0 {
		return domain.ErrInvalidAmount.WithDetails("opening balance must not be negative")
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallets (id, business_unit_id, balance_paise, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.BusinessUnitID, w.BalancePaise, now, now)
	if err != nil {
		return domain.ErrStorage.WithDetails("create wallet").WithCause(err)
	}
	return nil
}

// CreateMachine inserts a vending machine.
func (s *Store) CreateMachine(ctx context.Context, m domain.Machine) error {
	if m.ID == "" || m.BusinessUnitID == "" {
		return domain.ErrMissingArgument.WithDetails("machine id and business unit")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO machines (id, business_unit_id, active, created_at)
		 VALUES (?, ?, ?, ?)`,
		m.ID, m.BusinessUnitID, m.Active, time.Now().UnixMilli())
	if err != nil {
		return domain.ErrStorage.WithDetails("create machine").WithCause(err)
	}
	return nil
}

// CreateCard links a card to an existing wallet.
func (s *Store) CreateCard(ctx context.Context, c domain.Card) error {
	if !domain.IsValidCardUID(c.UID) {
		return domain.ErrInvalidArgument.WithDetails("card uid must be hex")
	}
	if c.WalletID == "" {
		return domain.ErrMissingArgument.WithDetails("wallet id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (uid, wallet_id, active, created_at)
		 VALUES (?, ?, ?, ?)`,
		c.UID, c.WalletID, c.Active, time.Now().UnixMilli())
	if err != nil {
		return domain.ErrStorage.WithDetails("create card").WithCause(err)
	}
	return nil
}

// Credit adds funds to a wallet. Top-ups run outside the dispense path
// but use the same IMMEDIATE transaction discipline.
func (s *Store) Credit(ctx context.Context, walletID string, amountPaise int64) (int64, error) {
	if amountPaise <= 0 {
		return 0, domain.ErrInvalidAmount.WithDetails(fmt.Sprintf("%d paise", amountPaise))
	}

	var remaining int64
	err := s.withImmediateTx(ctx, func(tx *sql.Conn) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE wallets SET balance_paise = balance_paise + ?, updated_at = ? WHERE id = ?`,
			amountPaise, time.Now().UnixMilli(), walletID)
		if err != nil {
			return domain.ErrStorage.WithDetails("credit wallet").WithCause(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrWalletNotFound.WithDetails(walletID)
		}
		return tx.QueryRowContext(ctx,
			`SELECT balance_paise FROM wallets WHERE id = ?`, walletID).Scan(&remaining)
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// WalletBalance returns the current balance in paise.
func (s *Store) WalletBalance(ctx context.Context, walletID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance_paise FROM wallets WHERE id = ?`, walletID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrWalletNotFound.WithDetails(walletID)
	}
	if err != nil {
		return 0, domain.ErrStorage.WithDetails("load balance").WithCause(err)
	}
	return balance, nil
}

// CardByUID returns the card row, active or not.
func (s *Store) CardByUID(ctx context.Context, uid string) (*domain.Card, error) {
	var c domain.Card
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, wallet_id, active, last_used_at, last_machine_id FROM cards WHERE uid = ?`,
		uid).Scan(&c.UID, &c.WalletID, &c.Active, &c.LastUsedAt, &c.LastMachineID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCardNotFound.WithDetails(uid)
	}
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("load card").WithCause(err)
	}
	return &c, nil
}

// History returns the most recent dispense transactions for a wallet,
// newest first.
func (s *Store) History(ctx context.Context, walletID string, limit int) ([]domain.DispenseRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wallet_id, card_uid, machine_id, product_type, amount_paise, success, created_at
		 FROM dispense_transactions
		 WHERE wallet_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, walletID, limit)
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("load history").WithCause(err)
	}
	defer rows.Close()

	var records []domain.DispenseRecord
	for rows.Next() {
		var r domain.DispenseRecord
		if err := rows.Scan(&r.ID, &r.WalletID, &r.CardUID, &r.MachineID,
			&r.ProductType, &r.AmountPaise, &r.Success, &r.CreatedAt); err != nil {
			return nil, domain.ErrStorage.WithDetails("scan history").WithCause(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStorage.WithDetails("iterate history").WithCause(err)
	}
	return records, nil
}

// withImmediateTx runs fn inside a BEGIN IMMEDIATE transaction on a
// dedicated connection. IMMEDIATE takes the write lock up front, so a
// balance read inside fn cannot be invalidated by a concurrent writer
// before the matching UPDATE commits.
func (s *Store) withImmediateTx(ctx context.Context, fn func(tx *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return domain.ErrStorage.WithDetails("acquire connection").WithCause(err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return domain.ErrStorage.WithDetails("begin transaction").WithCause(err)
	}

	if err := fn(conn); err != nil {
		// fn's error carries the verdict; a rollback failure rides along.
		if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
			return errors.Join(err, domain.ErrStorage.WithDetails("rollback").WithCause(rbErr))
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		return domain.ErrStorage.WithDetails("commit").WithCause(err)
	}
	return nil
}
