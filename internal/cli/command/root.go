// Package command provides CLI command definitions for vendcore-admin.
//
// vendcore-admin operates directly on the databases while the server
// is offline, or on copies of them: provisioning wallets, machines,
// cards and card keys, crediting balances, and inspecting history and
// authentication attempts.
package command

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/urbanketl/vendcore/internal/audit"
	"github.com/urbanketl/vendcore/internal/cli/output"
	"github.com/urbanketl/vendcore/internal/infra/buildinfo"
	"github.com/urbanketl/vendcore/internal/storage/keystore"
	"github.com/urbanketl/vendcore/internal/storage/ledger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "vendcore-admin",
		Usage:   "VendCore provisioning and inspection tool",
		Version: buildinfo.Get().String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			WalletCommand(),
			MachineCommand(),
			CardCommand(),
			AttemptsCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "ledger",
			Aliases: []string{"l"},
			Usage:   "Path to the ledger database",
			EnvVars: []string{"VENDCORE_LEDGER_PATH"},
			Value:   "/var/lib/vendcore/ledger.db",
		},
		&cli.StringFlag{
			Name:    "keystore",
			Usage:   "Path to the card key database",
			EnvVars: []string{"VENDCORE_KEYSTORE_PATH"},
			Value:   "/var/lib/vendcore/keystore.db",
		},
		&cli.StringFlag{
			Name:    "master-key",
			Usage:   "Hex-encoded 32-byte key-wrapping master key",
			EnvVars: []string{"VENDCORE_KEYSTORE_MASTERKEY"},
		},
		&cli.StringFlag{
			Name:    "audit-dir",
			Usage:   "Path to the authentication audit directory",
			EnvVars: []string{"VENDCORE_AUDIT_DIR"},
			Value:   "/var/lib/vendcore/audit",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json",
			Value:   "table",
		},
	}
}

// formatter builds the output formatter selected by --output.
func formatter(c *cli.Context) output.Formatter {
	return output.New(output.Format(c.String("output")))
}

// openLedger opens the ledger database from the global flag.
func openLedger(c *cli.Context) (*ledger.Store, error) {
	store, err := ledger.Open(c.String("ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", c.String("ledger"), err)
	}
	return store, nil
}

// openKeystore opens the card key database; it requires --master-key.
func openKeystore(c *cli.Context) (*keystore.Store, error) {
	masterHex := c.String("master-key")
	if masterHex == "" {
		return nil, fmt.Errorf("--master-key is required (or VENDCORE_KEYSTORE_MASTERKEY)")
	}
	masterKey, err := hex.DecodeString(masterHex)
	if err != nil {
		return nil, fmt.Errorf("master key must be hex encoded")
	}
	store, err := keystore.Open(c.String("keystore"), masterKey)
	if err != nil {
		return nil, fmt.Errorf("open keystore %s: %w", c.String("keystore"), err)
	}
	return store, nil
}

// openAudit opens the audit sink for inspection.
func openAudit(c *cli.Context) (*audit.Sink, error) {
	sink, err := audit.Open(c.String("audit-dir"))
	if err != nil {
		return nil, fmt.Errorf("open audit dir %s: %w", c.String("audit-dir"), err)
	}
	return sink, nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
