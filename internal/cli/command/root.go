package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/khm-preview/internal/cli/config"
	"github.com/yndnr/khm-preview/internal/cli/connection"
	"github.com/yndnr/khm-preview/internal/cli/output"
	"github.com/yndnr/khm-preview/internal/infra/buildinfo"
	"github.com/yndnr/khm-preview/internal/infra/tlsroots"
)

const cliConfigKey = "cliConfig"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "khm-preview-cli",
		Usage:   "Manage preview links of a khm-preview-server",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			TokenCommand(),
			APIKeyCommand(),
			LinkCommand(),
			SecretCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.App.Metadata == nil {
				c.App.Metadata = make(map[string]any)
			}
			c.App.Metadata[cliConfigKey] = cfg
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file (default: ~/.khm-preview/cli.yaml)",
			EnvVars: []string{"KHMPREVIEW_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "khm-preview-server URL (e.g., http://127.0.0.1:8080)",
			EnvVars: []string{"KHMPREVIEW_SERVER"},
		},
		&cli.StringFlag{
			Name:    "api-key-id",
			Aliases: []string{"k"},
			Usage:   "API key ID for authentication",
			EnvVars: []string{"KHMPREVIEW_API_KEY_ID"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Aliases: []string{"K"},
			Usage:   "API key secret for authentication",
			EnvVars: []string{"KHMPREVIEW_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM file with CA certificates trusted for https servers",
			EnvVars: []string{"KHMPREVIEW_CA_FILE"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: connection.DefaultTimeout,
		},
	}
}

// GlobalFlags holds the resolved global settings.
type GlobalFlags struct {
	Server   string
	APIKeyID string
	APIKey   string
	CAFile   string

	Output output.Format
	Wide   bool

	Timeout time.Duration
}

// ParseGlobalFlags resolves global settings. Flags and environment
// variables override the CLI config file.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	cfg, ok := c.App.Metadata[cliConfigKey].(*config.CLIConfig)
	if !ok {
		cfg = config.Default()
	}

	pick := func(name, fallback string) string {
		if c.IsSet(name) {
			return c.String(name)
		}
		return fallback
	}

	format, err := output.ParseFormat(pick("output", cfg.Output))
	if err != nil {
		return nil, err
	}

	return &GlobalFlags{
		Server:   pick("server", cfg.Server),
		APIKeyID: pick("api-key-id", cfg.APIKeyID),
		APIKey:   pick("api-key", cfg.APIKey),
		CAFile:   pick("ca-file", cfg.CAFile),
		Output:   format,
		Wide:     c.Bool("wide"),
		Timeout:  c.Duration("timeout"),
	}, nil
}

// session bundles what a remote command needs.
type session struct {
	flags  *GlobalFlags
	client *connection.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc
}

// connect resolves the global flags and creates the HTTP client.
func connect(c *cli.Context) (*session, error) {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return nil, err
	}
	if flags.Server == "" {
		return nil, fmt.Errorf("server address required (--server or KHMPREVIEW_SERVER)")
	}
	if flags.APIKeyID == "" || flags.APIKey == "" {
		return nil, fmt.Errorf("API key required (--api-key-id and --api-key)")
	}

	var opts []connection.ClientOption
	if flags.CAFile != "" {
		httpClient, err := trustingClient(flags.CAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, connection.WithHTTPClient(httpClient))
	}

	ctx, cancel := context.WithTimeout(c.Context, flags.Timeout)
	return &session{
		flags:  flags,
		client: connection.NewHTTPClient(flags.Server, flags.APIKeyID, flags.APIKey, opts...),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// trustingClient returns an HTTP client that also trusts the CAs in caFile.
func trustingClient(caFile string) (*http.Client, error) {
	pool := tlsroots.NewPool()
	if err := pool.AddCertFile(caFile); err != nil {
		return nil, fmt.Errorf("load CA file: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = pool.ClientConfig()
	return &http.Client{Timeout: connection.DefaultTimeout, Transport: transport}, nil
}

// render writes data in the selected output format.
func render(c *cli.Context, flags *GlobalFlags, data any) error {
	return output.NewFormatter(flags.Output, flags.Wide).Format(c.App.Writer, data)
}

// confirm asks a yes/no question on the app's reader.
func confirm(c *cli.Context, prompt string) bool {
	fmt.Fprintf(c.App.ErrWriter, "%s [y/N]: ", prompt)
	var in io.Reader = c.App.Reader
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
