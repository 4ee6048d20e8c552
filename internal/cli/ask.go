package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/datachat-go/internal/infrastructure/logging"
)

func newAskCmd(configPath func() string) *cobra.Command {
	var (
		csvSource string
		session   string
		noLLM     bool
	)

	cmd := &cobra.Command{
		Use:   "ask --csv <file|url> <question>",
		Short: "Answer one question about a CSV and print the block as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault(configPath())
			if err != nil {
				return err
			}
			// One-shot runs keep nothing beyond the process.
			cfg.MetaStore.Driver = "none"
			cfg.Metrics.Enabled = false
			if noLLM {
				cfg.LLM.Enabled = false
			}

			logger := logging.NewWithWriter(cmd.ErrOrStderr(), "warn", "console")
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.ingest.Ingest(ctx, session, csvSource); err != nil {
				return fmt.Errorf("loading %s: %w", csvSource, err)
			}

			block := a.orchestrator.Run(ctx, session, strings.Join(args, " "))
			return printJSON(cmd.OutOrStdout(), block)
		},
	}
	cmd.Flags().StringVar(&csvSource, "csv", "", "CSV file path or http(s) URL")
	cmd.Flags().StringVar(&session, "session", "cli", "Session id to load the dataset under")
	cmd.Flags().BoolVar(&noLLM, "no-llm", false, "Never fall back to the language model")
	cmd.MarkFlagRequired("csv")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
