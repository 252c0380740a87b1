package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/khm-preview/internal/cli/connection"
	"github.com/yndnr/khm-preview/internal/server/httpserver/handler"
)

// SecretCommand returns the secret subcommand group.
func SecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage the preview signing secret",
		Subcommands: []*cli.Command{
			{
				Name:  "rotate",
				Usage: "Replace the signing secret; every issued token stops working",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: secretRotate,
			},
		},
	}
}

func secretRotate(c *cli.Context) error {
	if !c.Bool("force") && !confirm(c, "Rotate the secret and invalidate every preview link?") {
		fmt.Fprintln(c.App.ErrWriter, "Cancelled.")
		return nil
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.cancel()

	resp, err := s.client.Post(s.ctx, "/admin/v1/secret/rotate", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result handler.RotateSecretResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, s.flags, result)
}
