package cmd

import (
	"context"
	"fmt"
	"os"

	"fablab-opendata/lib/configuration"
	"fablab-opendata/lib/export"

	"github.com/spf13/cobra"
)

// Config is read from fabdata.json5 (with fabdata.local.json5 overrides)
// in the working directory or any parent.
type Config struct {
	BaseURL string `json:"base_url"`
	// TokenEnv names the environment variable that holds the Open API
	// token. The token itself never lives in a config file.
	TokenEnv         string            `json:"token_env"`
	CloudflareBypass bool              `json:"cloudflare_bypass"`
	Namespace        string            `json:"namespace"`
	Journal          string            `json:"journal"`
	Provenance       export.Provenance `json:"provenance"`
}

func readConfig() (Config, error) {
	cfg, err := configuration.ReadRecursively[Config]("fabdata.json5")
	if err != nil {
		return Config{}, fmt.Errorf("read fabdata.json5: %w", err)
	}
	return cfg, nil
}

func (c Config) token() (string, error) {
	env := c.TokenEnv
	if env == "" {
		env = "FABMANAGER_API_TOKEN"
	}
	token := os.Getenv(env)
	if token == "" {
		return "", fmt.Errorf("api token not set: export %s", env)
	}
	return token, nil
}

var rootCmd = &cobra.Command{
	Use:   "fabdata",
	Short: "fabdata extracts, anonymizes and publishes fab lab open data.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(message string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
	os.Exit(1)
}
