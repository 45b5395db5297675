package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DeafMist/issue-harvester/internal/config"
	"github.com/DeafMist/issue-harvester/internal/publish"
	"github.com/DeafMist/issue-harvester/internal/state"
)

func init() {
	rootCmd.AddCommand(publishCmd)
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Streams cleaned issues not yet published into the Kafka topic.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadPublisher()
		if err != nil {
			return err
		}
		return interrupted(runPublish(cmd.Context(), cfg))
	},
}

func runPublish(ctx context.Context, cfg *config.Publisher) error {
	in, err := os.Open(cfg.CleanedLog)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("cleaned log missing, nothing to publish", slog.String("path", cfg.CleanedLog))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open cleaned log: %w", err)
	}
	defer in.Close()

	w := publish.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer w.Close()

	store := state.NewCheckpointStore(cfg.PublishCheckpointFile, []string{publish.Partition}, log)
	_, err = publish.New(w, store, cfg.BatchSize, log).Run(ctx, in)
	return err
}
