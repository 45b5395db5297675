package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DeafMist/issue-harvester/internal/config"
	"github.com/DeafMist/issue-harvester/internal/jsonl"
	"github.com/DeafMist/issue-harvester/internal/state"
	"github.com/DeafMist/issue-harvester/internal/transform"
)

var transformBatch int

func init() {
	transformCmd.Flags().IntVar(&transformBatch, "batch", 0, "Records per cleaned log write (overrides TRANSFORM_BATCH_SIZE).")
	rootCmd.AddCommand(transformCmd)
}

var transformCmd = &cobra.Command{
	Use:   "transform [--batch N]",
	Short: "Cleans raw issues not seen before and appends them to the cleaned log.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadTransformer()
		if err != nil {
			return err
		}
		if transformBatch > 0 {
			cfg.BatchSize = transformBatch
		}
		return interrupted(runTransform(cmd.Context(), cfg))
	},
}

func runTransform(ctx context.Context, cfg *config.Transformer) error {
	in, err := os.Open(cfg.RawLog)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("raw log missing, nothing to transform", slog.String("path", cfg.RawLog))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open raw log: %w", err)
	}
	defer in.Close()

	out, err := jsonl.OpenWriter(cfg.CleanedLog)
	if err != nil {
		return err
	}
	defer out.Close()

	t := transform.New(transform.Config{
		BatchSize:     cfg.BatchSize,
		ProgressEvery: cfg.ProgressEvery,
	}, state.NewSeenStore(cfg.SeenFile, log), log)

	_, err = t.Run(ctx, in, out)
	return err
}
