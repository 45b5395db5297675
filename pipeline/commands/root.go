// Package commands implements the pipeline CLI: one subcommand per stage
// plus status and a full run.
package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DeafMist/issue-harvester/internal/logger"
)

var log = slog.Default()

var rootCmd = &cobra.Command{
	Use:           "pipeline",
	Short:         "pipeline harvests Jira issues into cleaned JSONL and tabular exports.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logger.New("pipeline").With(
			slog.String("run_id", uuid.NewString()),
			slog.String("command", cmd.Name()),
		)
	},
}

// ExecuteContext runs the CLI. Failures are logged before they are returned.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		log.Error("command failed", slog.Any("err", err))
	}
	return err
}

// interrupted turns a cancellation into a clean exit; all progress up to the
// last checkpoint is already persisted.
func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		log.Warn("interrupted, progress saved")
		return nil
	}
	return err
}
