package command

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/pkg/desfire"
)

// CardCommand returns the card subcommand group.
func CardCommand() *cli.Command {
	return &cli.Command{
		Name:  "card",
		Usage: "Manage RFID cards and their keys",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Link a card to a wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "uid",
						Usage:    "Card UID (hex)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "wallet",
						Aliases:  []string{"w"},
						Usage:    "Wallet the card debits",
						Required: true,
					},
				},
				Action: cardCreate,
			},
			{
				Name:      "show",
				Usage:     "Show a card",
				ArgsUsage: "CARD_UID",
				Action:    cardShow,
			},
			{
				Name:      "provision-key",
				Usage:     "Store a new AES key version for a card",
				ArgsUsage: "CARD_UID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Usage:    "AES-128 key, 32 hex characters",
						Required: true,
					},
					&cli.UintFlag{
						Name:  "key-index",
						Usage: "DESFire key slot on the card",
						Value: 1,
					},
				},
				Action: cardProvisionKey,
			},
		},
	}
}

func cardCreate(c *cli.Context) error {
	uid := c.String("uid")
	if !domain.IsValidCardUID(uid) {
		return fmt.Errorf("card uid must be hex")
	}

	store, err := openLedger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	card := domain.Card{
		UID:      uid,
		WalletID: c.String("wallet"),
		Active:   true,
	}
	if err := store.CreateCard(context.Background(), card); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Card %s linked to wallet %s\n", card.UID, card.WalletID)
	return nil
}

func cardShow(c *cli.Context) error {
	uid := c.Args().First()
	if uid == "" {
		return fmt.Errorf("card UID required")
	}

	store, err := openLedger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	card, err := store.CardByUID(context.Background(), uid)
	if err != nil {
		return err
	}

	return formatter(c).Format(c.App.Writer, map[string]any{
		"uid":             card.UID,
		"wallet_id":       card.WalletID,
		"active":          card.Active,
		"last_used_at":    formatMillis(card.LastUsedAt),
		"last_machine_id": card.LastMachineID,
	})
}

func cardProvisionKey(c *cli.Context) error {
	uid := c.Args().First()
	if uid == "" {
		return fmt.Errorf("card UID required")
	}

	key, err := hex.DecodeString(c.String("key"))
	if err != nil {
		return fmt.Errorf("key must be hex encoded")
	}
	if len(key) != desfire.KeySize {
		return fmt.Errorf("key must be %d bytes, got %d", desfire.KeySize, len(key))
	}
	keyIndex := c.Uint("key-index")
	if keyIndex > 0xFF {
		return fmt.Errorf("key index must fit one byte")
	}

	store, err := openKeystore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := store.Put(context.Background(), uid, uint8(keyIndex), key)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Key version %d stored for card %s\n", version, uid)
	return nil
}
