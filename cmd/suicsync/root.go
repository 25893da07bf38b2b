package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tigerroll/suicsync/internal/app"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// rootOptions holds the global flags.
type rootOptions struct {
	EnvFile string
	Verbose bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "suicsync",
		Short: "Cross-database SUIC batch sync",
		Long: `suicsync moves SUIC rows from the source store into the destination store,
tracks the three-step workflow of each run and follows the external processes
launched for it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", envOr("ENV_FILE_PATH", ".env"), "path to the .env file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newFlowCommand(opts))
	cmd.AddCommand(newTransferCommand(opts))
	cmd.AddCommand(newSaveCommand(opts))
	cmd.AddCommand(newLaunchCommand(opts))
	cmd.AddCommand(newPollCommand(opts))
	cmd.AddCommand(newReportCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

// run wires the application and calls fn with its components.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, c app.Components) error) error {
	return app.Run(cmd.Context(), o.EnvFile, embeddedConfig, func(ctx context.Context, c app.Components) error {
		if o.Verbose {
			logger.SetLogLevel("DEBUG")
		}
		return fn(ctx, c)
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
