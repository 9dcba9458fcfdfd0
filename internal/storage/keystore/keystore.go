// Package keystore stores per-card authentication keys, encrypted at
// rest. Keys are versioned; provisioning a new version deactivates the
// previous one, and lookups always return the active version so a
// fleet-wide rotation needs no reader coordination.
package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/pkg/keywrap"
)

const schema = `
CREATE TABLE IF NOT EXISTS card_keys (
	card_uid    TEXT NOT NULL,
	version     INTEGER NOT NULL,
	key_index   INTEGER NOT NULL DEFAULT 0,
	wrapped_key BLOB NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (card_uid, version)
);
CREATE INDEX IF NOT EXISTS idx_card_keys_active ON card_keys(card_uid) WHERE active = 1;
`

// Store is the SQLite-backed card key store.
type Store struct {
	db      *sql.DB
	wrapper *keywrap.Wrapper
}

// Open opens the key database at path. Card keys are sealed with
// masterKey before they touch disk.
func Open(path string, masterKey []byte) (*Store, error) {
	wrapper, err := keywrap.New(masterKey)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails("master key").WithCause(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("open keystore").WithCause(err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, domain.ErrStorage.WithDetails(pragma).WithCause(err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domain.ErrStorage.WithDetails("apply keystore schema").WithCause(err)
	}
	return &Store{db: db, wrapper: wrapper}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put provisions a key for a card. The version is the previous active
// version plus one; older versions are deactivated in the same
// transaction.
func (s *Store) Put(ctx context.Context, cardUID string, keyIndex uint8, key []byte) (version int, err error) {
	if !domain.IsValidCardUID(cardUID) {
		return 0, domain.ErrInvalidArgument.WithDetails("card uid must be hex")
	}
	if len(key) != 16 {
		return 0, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("key must be 16 bytes, got %d", len(key)))
	}
	cardUID = strings.ToUpper(cardUID)

	wrapped, err := s.wrapper.Seal(key, cardUID)
	if err != nil {
		return 0, domain.ErrCryptoFailure.WithDetails("seal card key").WithCause(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.ErrStorage.WithDetails("begin keystore tx").WithCause(err)
	}
	defer tx.Rollback()

	var current sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM card_keys WHERE card_uid = ?`, cardUID,
	).Scan(&current); err != nil {
		return 0, domain.ErrStorage.WithDetails("load key version").WithCause(err)
	}
	version = int(current.Int64) + 1

	if _, err := tx.ExecContext(ctx,
		`UPDATE card_keys SET active = 0 WHERE card_uid = ? AND active = 1`, cardUID,
	); err != nil {
		return 0, domain.ErrStorage.WithDetails("deactivate old keys").WithCause(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO card_keys (card_uid, version, key_index, wrapped_key, active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		cardUID, version, keyIndex, wrapped, time.Now().UnixMilli(),
	); err != nil {
		return 0, domain.ErrStorage.WithDetails("store card key").WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.ErrStorage.WithDetails("commit keystore tx").WithCause(err)
	}
	return version, nil
}

// Active returns the card's active key, unsealed.
func (s *Store) Active(ctx context.Context, cardUID string) (*domain.CardKey, error) {
	cardUID = strings.ToUpper(cardUID)

	var (
		version  int
		keyIndex int
		wrapped  []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, key_index, wrapped_key FROM card_keys
		 WHERE card_uid = ? AND active = 1
		 ORDER BY version DESC LIMIT 1`, cardUID,
	).Scan(&version, &keyIndex, &wrapped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrKeyNotFound.WithDetails(cardUID)
	}
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("load card key").WithCause(err)
	}

	key, err := s.wrapper.Open(wrapped, cardUID)
	if err != nil {
		return nil, domain.ErrCryptoFailure.WithDetails("unseal card key").WithCause(err)
	}

	return &domain.CardKey{
		CardUID: cardUID,
		Key:     key,
		Index:   uint8(keyIndex),
		Version: version,
	}, nil
}

// Versions returns how many key versions exist for a card, active or
// not. Used by the admin tool to report rotation state.
func (s *Store) Versions(ctx context.Context, cardUID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM card_keys WHERE card_uid = ?`,
		strings.ToUpper(cardUID)).Scan(&count)
	if err != nil {
		return 0, domain.ErrStorage.WithDetails("count key versions").WithCause(err)
	}
	return count, nil
}
