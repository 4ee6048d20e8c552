package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/datachat-go/internal/infrastructure/config"
)

func newConfigCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Write(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault(configPath())
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.LLM.APIKey != "" {
				redacted.LLM.APIKey = "REDACTED"
			}
			if redacted.MetaStore.RedisPassword != "" {
				redacted.MetaStore.RedisPassword = "REDACTED"
			}
			return printJSON(cmd.OutOrStdout(), redacted)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
