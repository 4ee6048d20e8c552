// Package cli implements the datachat CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/datachat-go/internal/infrastructure/config"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "datachat.yaml"

// NewRootCmd builds the top-level command.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "datachat",
		Short:         "Chat with your CSV files",
		Long:          "A conversational data assistant: load a CSV, ask questions, get tables and charts back.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $DATACHAT_CONFIG or ./datachat.yaml)")

	path := func() string {
		if configPath != "" {
			return configPath
		}
		if env := os.Getenv("DATACHAT_CONFIG"); env != "" {
			return env
		}
		return DefaultConfigPath
	}

	root.AddCommand(newServeCmd(path), newAskCmd(path), newConfigCmd(path))
	return root
}

// loadOrDefault reads path when it exists and otherwise returns defaults
// without touching the filesystem.
func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}
