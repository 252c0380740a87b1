package config

// CLIConfig is the configuration for khm-preview-cli.
type CLIConfig struct {
	// Server is the khm-preview-server base URL.
	Server string `yaml:"server"`

	APIKeyID string `yaml:"api_key_id"`
	APIKey   string `yaml:"api_key"`

	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `yaml:"ca_file,omitempty"`

	// Output is table, json or yaml.
	Output string `yaml:"output"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server: "http://127.0.0.1:8080",
		Output: "table",
	}
}
