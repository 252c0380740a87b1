package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/pkg/token"
)

// TokenCommand returns the token subcommand group. Both subcommands work
// offline.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Generate and hash preview tokens locally",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Print a random hex token",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "length",
						Aliases: []string{"l"},
						Value:   domain.TokenBytesLength,
						Usage:   "Random bytes; the token has twice as many hex characters",
					},
				},
				Action: tokenGenerate,
			},
			{
				Name:      "hash",
				Usage:     "Print the HMAC-SHA-256 digest of a token",
				ArgsUsage: "TOKEN",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "secret",
						Usage: "Signing secret",
					},
					&cli.StringFlag{
						Name:  "secret-env",
						Usage: "Environment variable holding the signing secret",
					},
				},
				Action: tokenHash,
			},
		},
	}
}

func tokenGenerate(c *cli.Context) error {
	tok, err := token.GenerateHex(c.Int("length"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, tok)
	return nil
}

func tokenHash(c *cli.Context) error {
	tok := c.Args().First()
	if tok == "" {
		return fmt.Errorf("token required")
	}

	secret, err := secretFromFlags(c)
	if err != nil {
		return err
	}

	tok = domain.NormalizeToken(tok)
	if !domain.ValidateTokenFormat(tok) {
		fmt.Fprintf(c.App.ErrWriter, "warning: token is not %d hex characters\n", domain.TokenLength)
	}
	fmt.Fprintln(c.App.Writer, token.Digest(secret, tok))
	return nil
}

// secretFromFlags reads the secret from exactly one of --secret and
// --secret-env.
func secretFromFlags(c *cli.Context) (string, error) {
	inline, envName := c.String("secret"), c.String("secret-env")
	switch {
	case inline != "" && envName != "":
		return "", fmt.Errorf("use only one of --secret and --secret-env")
	case inline != "":
		return inline, nil
	case envName != "":
		v, ok := os.LookupEnv(envName)
		if !ok || v == "" {
			return "", fmt.Errorf("environment variable %s is empty", envName)
		}
		return v, nil
	default:
		return "", fmt.Errorf("secret required (--secret or --secret-env)")
	}
}
