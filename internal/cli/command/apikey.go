package command

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/khm-preview/internal/core/domain"
)

// APIKeyCommand returns the apikey subcommand group.
func APIKeyCommand() *cli.Command {
	return &cli.Command{
		Name:    "apikey",
		Aliases: []string{"key"},
		Usage:   "Prepare API keys for the server config",
		Subcommands: []*cli.Command{
			{
				Name:  "hash",
				Usage: "Hash an API key secret for auth.keys[].secret_hash",
				Description: "The secret comes from --secret, --secret-env, --generate or the first\n" +
					"line of standard input.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Key ID to put in the printed entry",
					},
					&cli.StringFlag{
						Name:  "role",
						Usage: "Key role (admin, editor, metrics)",
						Value: string(domain.RoleEditor),
					},
					&cli.StringFlag{
						Name:  "secret",
						Usage: "Secret to hash",
					},
					&cli.StringFlag{
						Name:  "secret-env",
						Usage: "Environment variable holding the secret",
					},
					&cli.BoolFlag{
						Name:  "generate",
						Usage: "Generate a new secret",
					},
				},
				Action: apikeyHash,
			},
		},
	}
}

// apiKeyEntry is printed in the shape of an auth.keys[] config entry.
type apiKeyEntry struct {
	ID         string `json:"id,omitempty"`
	Role       string `json:"role"`
	SecretHash string `json:"secret_hash"`

	// Secret is only shown when it was generated.
	Secret string `json:"secret,omitempty"`
}

func apikeyHash(c *cli.Context) error {
	role := c.String("role")
	if !domain.IsValidRole(role) {
		return fmt.Errorf("unknown role %q (want admin, editor or metrics)", role)
	}

	var (
		secret    string
		generated bool
		err       error
	)
	switch {
	case c.Bool("generate"):
		if c.IsSet("secret") || c.IsSet("secret-env") {
			return fmt.Errorf("--generate cannot be combined with --secret or --secret-env")
		}
		secret, err = domain.NewAPISecret()
		generated = true
	case c.IsSet("secret") || c.IsSet("secret-env"):
		secret, err = secretFromFlags(c)
	default:
		line, _ := bufio.NewReader(c.App.Reader).ReadString('\n')
		secret = strings.TrimSpace(line)
	}
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("secret required")
	}

	hash, err := domain.HashAPISecret(secret)
	if err != nil {
		return err
	}

	entry := apiKeyEntry{ID: c.String("id"), Role: role, SecretHash: hash}
	if generated {
		entry.Secret = secret
	}

	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	if err := render(c, flags, entry); err != nil {
		return err
	}
	if generated {
		fmt.Fprintln(c.App.ErrWriter, "\nSave this secret - only its hash goes into the server config.")
	}
	return nil
}
