package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/urbanketl/vendcore/internal/core/domain"
)

// MachineCommand returns the machine subcommand group.
func MachineCommand() *cli.Command {
	return &cli.Command{
		Name:  "machine",
		Usage: "Manage vending machines",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Register a vending machine",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Machine ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "business-unit",
						Aliases:  []string{"b"},
						Usage:    "Business unit the machine belongs to",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "inactive",
						Usage: "Register the machine as inactive",
					},
				},
				Action: machineCreate,
			},
		},
	}
}

func machineCreate(c *cli.Context) error {
	store, err := openLedger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	machine := domain.Machine{
		ID:             c.String("id"),
		BusinessUnitID: c.String("business-unit"),
		Active:         !c.Bool("inactive"),
	}
	if err := store.CreateMachine(context.Background(), machine); err != nil {
		return err
	}

	state := "active"
	if !machine.Active {
		state = "inactive"
	}
	fmt.Fprintf(c.App.Writer, "Machine %s registered (%s, unit %s)\n", machine.ID, state, machine.BusinessUnitID)
	return nil
}
