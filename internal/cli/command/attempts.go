package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/urbanketl/vendcore/internal/cli/output"
)

// AttemptsCommand returns the authentication attempt inspection group.
func AttemptsCommand() *cli.Command {
	return &cli.Command{
		Name:  "attempts",
		Usage: "Inspect authentication attempts",
		Subcommands: []*cli.Command{
			{
				Name:  "recent",
				Usage: "Show recent attempts, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Value:   20,
						Usage:   "Maximum attempts to show",
					},
				},
				Action: attemptsRecent,
			},
		},
	}
}

func attemptsRecent(c *cli.Context) error {
	sink, err := openAudit(c)
	if err != nil {
		return err
	}
	defer sink.Close()

	attempts, err := sink.Recent(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}

	if c.String("output") == string(output.FormatJSON) {
		return formatter(c).Format(c.App.Writer, attempts)
	}

	table := &output.Table{
		Headers: []string{"AT", "CARD", "MACHINE", "OUTCOME", "ERROR"},
	}
	for _, attempt := range attempts {
		table.AddRow(
			formatMillis(attempt.CreatedAt),
			attempt.CardUID,
			attempt.MachineID,
			attempt.Outcome,
			attempt.Error,
		)
	}
	return table.Render(c.App.Writer)
}
