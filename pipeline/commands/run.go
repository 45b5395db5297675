package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeafMist/issue-harvester/internal/config"
)

var runInterval time.Duration

func init() {
	runCmd.Flags().StringSliceVar(&scrapeProjects, "projects", nil, "Projects to harvest, in order (overrides SCRAPER_PROJECTS).")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Repeat the run at this interval until interrupted. Zero runs once.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--projects A,B] [--interval 6h]",
	Short: "Runs scrape, transform and export in sequence.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if runInterval <= 0 {
			return interrupted(runOnce(ctx))
		}

		ticker := time.NewTicker(runInterval)
		defer ticker.Stop()

		log.Info("harvest loop running", slog.Duration("interval", runInterval))
		for {
			// A failed pass is retried on the next tick.
			if err := runOnce(ctx); err != nil {
				if interrupted(err) == nil {
					return nil
				}
				log.Warn("harvest pass failed", slog.Any("err", err))
			}

			select {
			case <-ctx.Done():
				log.Info("shutdown signal received")
				return nil
			case <-ticker.C:
			}
		}
	},
}

func runOnce(ctx context.Context) error {
	scrapeCfg, err := config.LoadScraper()
	if err != nil {
		return err
	}
	applyScrapeFlags(scrapeCfg)
	if err := runScrape(ctx, scrapeCfg); err != nil {
		return err
	}

	transformCfg, err := config.LoadTransformer()
	if err != nil {
		return err
	}
	if err := runTransform(ctx, transformCfg); err != nil {
		return err
	}

	exportCfg, err := config.LoadExporter()
	if err != nil {
		return err
	}
	return runExport(ctx, exportCfg)
}
