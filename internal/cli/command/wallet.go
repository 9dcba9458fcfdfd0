package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/urbanketl/vendcore/internal/cli/output"
	"github.com/urbanketl/vendcore/internal/core/domain"
)

// WalletCommand returns the wallet subcommand group.
func WalletCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Manage prepaid wallets",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Wallet ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "business-unit",
						Aliases:  []string{"b"},
						Usage:    "Business unit the wallet belongs to",
						Required: true,
					},
					&cli.Int64Flag{
						Name:  "balance",
						Usage: "Opening balance in paise",
					},
				},
				Action: walletCreate,
			},
			{
				Name:      "credit",
				Usage:     "Credit a wallet",
				ArgsUsage: "WALLET_ID",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "amount",
						Aliases:  []string{"a"},
						Usage:    "Amount in paise",
						Required: true,
					},
				},
				Action: walletCredit,
			},
			{
				Name:      "balance",
				Usage:     "Show a wallet balance",
				ArgsUsage: "WALLET_ID",
				Action:    walletBalance,
			},
			{
				Name:      "history",
				Usage:     "Show dispense history for a wallet",
				ArgsUsage: "WALLET_ID",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Value:   20,
						Usage:   "Maximum rows to show",
					},
				},
				Action: walletHistory,
			},
		},
	}
}

func walletCreate(c *cli.Context) error {
	store, err := openLedger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	wallet := domain.Wallet{
		ID:             c.String("id"),
		BusinessUnitID: c.String("business-unit"),
		BalancePaise:   c.Int64("balance"),
	}
	if err := store.CreateWallet(context.Background(), wallet); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Wallet %s created (balance %s)\n", wallet.ID, formatPaise(wallet.BalancePaise))
	return nil
}

func walletCredit(c *cli.Context) error {
	walletID := c.Args().First()
	if walletID == "" {
		return fmt.Errorf("wallet ID required")
	}

	store, err := openLedger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	balance, err := store.Credit(context.Background(), walletID, c.Int64("amount"))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Wallet %s credited, balance %s\n", walletID, formatPaise(balance))
	return nil
}

func walletBalance(c *cli.Context) error {
	walletID := c.Args().First()
	if walletID == "" {
		return fmt.Errorf("wallet ID required")
	}

	store, err := openLedger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	balance, err := store.WalletBalance(context.Background(), walletID)
	if err != nil {
		return err
	}

	return formatter(c).Format(c.App.Writer, map[string]any{
		"wallet_id":     walletID,
		"balance_paise": balance,
		"balance":       formatPaise(balance),
	})
}

func walletHistory(c *cli.Context) error {
	walletID := c.Args().First()
	if walletID == "" {
		return fmt.Errorf("wallet ID required")
	}

	store, err := openLedger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.History(context.Background(), walletID, c.Int("limit"))
	if err != nil {
		return err
	}

	if c.String("output") == string(output.FormatJSON) {
		return formatter(c).Format(c.App.Writer, records)
	}

	table := &output.Table{
		Headers: []string{"TRANSACTION", "CARD", "MACHINE", "PRODUCT", "AMOUNT", "RESULT", "AT"},
	}
	for _, rec := range records {
		result := "ok"
		if !rec.Success {
			result = "failed"
		}
		table.AddRow(
			rec.ID,
			rec.CardUID,
			rec.MachineID,
			rec.ProductType,
			formatPaise(rec.AmountPaise),
			result,
			formatMillis(rec.CreatedAt),
		)
	}
	return table.Render(c.App.Writer)
}

// formatPaise renders paise as rupees with two decimals.
func formatPaise(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%sRs %d.%02d", sign, paise/100, paise%100)
}

// formatMillis renders a Unix-millisecond timestamp for display.
func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}
