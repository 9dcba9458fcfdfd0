// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for vendcore-server.
type ServerConfig struct {
	Local     LocalSection     `koanf:"local"`
	Session   SessionSection   `koanf:"session"`
	Ledger    LedgerSection    `koanf:"ledger"`
	Keystore  KeystoreSection  `koanf:"keystore"`
	Audit     AuditSection     `koanf:"audit"`
	Metrics   MetricsSection   `koanf:"metrics"`
	RateLimit RateLimitSection `koanf:"ratelimit"`
	Log       LogSection       `koanf:"log"`
}

// LocalSection configures the Unix socket service endpoint.
//
// Key names are single words so environment overrides map cleanly:
// VENDCORE_LOCAL_SOCKET sets local.socket. The same convention holds
// for every section below.
type LocalSection struct {
	SocketPath string `koanf:"socket"`
}

// SessionSection configures the in-memory authentication session store.
type SessionSection struct {
	// TTL is how long an idle session survives before expiring.
	TTL time.Duration `koanf:"ttl"`

	// SweepInterval is how often expired sessions are purged.
	SweepInterval time.Duration `koanf:"sweep"`

	// GraceDelete is how long a verified session is kept before
	// deletion. Zero deletes immediately on verification.
	GraceDelete time.Duration `koanf:"grace"`
}

// LedgerSection configures the wallet ledger database.
type LedgerSection struct {
	Path             string        `koanf:"path"`
	StatementTimeout time.Duration `koanf:"timeout"`
}

// KeystoreSection configures the card key database.
type KeystoreSection struct {
	Path string `koanf:"path"`

	// MasterKey is the hex-encoded 32-byte key used to wrap card
	// keys at rest. Usually supplied via VENDCORE_KEYSTORE_MASTERKEY.
	MasterKey string `koanf:"masterkey"`
}

// AuditSection configures the authentication audit trail.
type AuditSection struct {
	Dir       string        `koanf:"dir"`
	Retention time.Duration `koanf:"retention"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// RateLimitSection configures per-machine authentication throttling.
type RateLimitSection struct {
	PerSecond float64 `koanf:"rate"`
	Burst     int     `koanf:"burst"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
