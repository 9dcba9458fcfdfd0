package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Verify validates the configuration. Directories for the ledger,
// keystore, and audit trail are created if missing.
func Verify(cfg *ServerConfig) error {
	if cfg.Local.SocketPath == "" {
		return errors.New("local.socket is required")
	}
	if err := verifySession(&cfg.Session); err != nil {
		return err
	}
	if err := verifyLedger(&cfg.Ledger); err != nil {
		return err
	}
	if err := verifyKeystore(&cfg.Keystore); err != nil {
		return err
	}
	if err := verifyAudit(&cfg.Audit); err != nil {
		return err
	}
	if err := verifyRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	return nil
}

func verifySession(cfg *SessionSection) error {
	if cfg.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("session.sweep must be positive")
	}
	if cfg.GraceDelete < 0 {
		return errors.New("session.grace must not be negative")
	}
	return nil
}

func verifyLedger(cfg *LedgerSection) error {
	if cfg.Path == "" {
		return errors.New("ledger.path is required")
	}
	if err := ensureParentDir(cfg.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	if cfg.StatementTimeout <= 0 {
		return errors.New("ledger.timeout must be positive")
	}
	return nil
}

func verifyKeystore(cfg *KeystoreSection) error {
	if cfg.Path == "" {
		return errors.New("keystore.path is required")
	}
	if err := ensureParentDir(cfg.Path); err != nil {
		return fmt.Errorf("keystore.path: %w", err)
	}
	if cfg.MasterKey == "" {
		return errors.New("keystore.masterkey is required")
	}
	raw, err := hex.DecodeString(cfg.MasterKey)
	if err != nil {
		return errors.New("keystore.masterkey must be hex encoded")
	}
	if len(raw) != 32 {
		return fmt.Errorf("keystore.masterkey must be 32 bytes, got %d", len(raw))
	}
	return nil
}

func verifyAudit(cfg *AuditSection) error {
	if cfg.Dir == "" {
		return errors.New("audit.dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return fmt.Errorf("cannot create audit directory: %w", err)
	}
	if cfg.Retention <= 0 {
		return errors.New("audit.retention must be positive")
	}
	return nil
}

func verifyRateLimit(cfg *RateLimitSection) error {
	if cfg.PerSecond <= 0 {
		return errors.New("ratelimit.rate must be positive")
	}
	if cfg.Burst < 1 {
		return errors.New("ratelimit.burst must be at least 1")
	}
	return nil
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o750)
}
