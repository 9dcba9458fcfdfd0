package config

import "time"

// Default configuration values.
const (
	DefaultLocalSocket = "/var/run/vendcore/vendcore.sock"

	DefaultSessionTTL    = 30 * time.Second
	DefaultSweepInterval = 60 * time.Second
	DefaultGraceDelete   = 5 * time.Second

	DefaultLedgerPath       = "/var/lib/vendcore/ledger.db"
	DefaultStatementTimeout = 5 * time.Second

	DefaultKeystorePath = "/var/lib/vendcore/keystore.db"

	DefaultAuditDir       = "/var/lib/vendcore/audit"
	DefaultAuditRetention = 90 * 24 * time.Hour

	DefaultMetricsAddr = "127.0.0.1:9464"

	DefaultRatePerSecond = 2.0
	DefaultRateBurst     = 5

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Local: LocalSection{
			SocketPath: DefaultLocalSocket,
		},
		Session: SessionSection{
			TTL:           DefaultSessionTTL,
			SweepInterval: DefaultSweepInterval,
			GraceDelete:   DefaultGraceDelete,
		},
		Ledger: LedgerSection{
			Path:             DefaultLedgerPath,
			StatementTimeout: DefaultStatementTimeout,
		},
		Keystore: KeystoreSection{
			Path: DefaultKeystorePath,
		},
		Audit: AuditSection{
			Dir:       DefaultAuditDir,
			Retention: DefaultAuditRetention,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		RateLimit: RateLimitSection{
			PerSecond: DefaultRatePerSecond,
			Burst:     DefaultRateBurst,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
