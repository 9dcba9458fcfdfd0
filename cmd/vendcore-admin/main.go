// Package main provides the entry point for vendcore-admin.
//
// The admin tool provides direct access to the VendCore databases for:
//
//   - Wallet provisioning (create, credit, balance, history)
//   - Machine registration
//   - Card linking and key provisioning
//   - Authentication attempt inspection
//
// Usage:
//
//	vendcore-admin [command] [flags]
//	vendcore-admin wallet create --id wallet-1 --business-unit unit-1
//	vendcore-admin --output json wallet balance wallet-1
package main

import (
	"fmt"
	"os"

	"github.com/urbanketl/vendcore/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
