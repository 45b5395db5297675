package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeafMist/issue-harvester/internal/config"
	"github.com/DeafMist/issue-harvester/internal/fetch"
	"github.com/DeafMist/issue-harvester/internal/jsonl"
	"github.com/DeafMist/issue-harvester/internal/scraper"
	"github.com/DeafMist/issue-harvester/internal/state"
)

var (
	scrapeProjects []string
	scrapePageSize int
)

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeProjects, "projects", nil, "Projects to harvest, in order (overrides SCRAPER_PROJECTS).")
	scrapeCmd.Flags().IntVar(&scrapePageSize, "page-size", 0, "Issues requested per page (overrides SCRAPER_PAGE_SIZE).")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--projects A,B] [--page-size N]",
	Short: "Appends new issues of every project to the raw log, resuming from the checkpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadScraper()
		if err != nil {
			return err
		}
		applyScrapeFlags(cfg)
		return interrupted(runScrape(cmd.Context(), cfg))
	},
}

func applyScrapeFlags(cfg *config.Scraper) {
	if len(scrapeProjects) > 0 {
		cfg.Projects = scrapeProjects
	}
	if scrapePageSize > 0 {
		cfg.PageSize = scrapePageSize
	}
}

func runScrape(ctx context.Context, cfg *config.Scraper) error {
	client := fetch.New(fetch.Config{
		Timeout:           cfg.Timeout,
		MaxAttempts:       cfg.MaxAttempts,
		Backoff:           cfg.Backoff,
		MaxBackoff:        cfg.MaxBackoff,
		RateLimitCooldown: cfg.RateLimitCooldown,
	}, log)
	src := scraper.NewJiraSource(client, cfg.BaseURL, cfg.SearchPath, cfg.Fields)
	store := state.NewCheckpointStore(cfg.CheckpointFile, cfg.Projects, log)

	out, err := jsonl.OpenWriter(cfg.RawLog)
	if err != nil {
		return err
	}
	defer out.Close()

	s := scraper.New(scraper.Config{
		Partitions: cfg.Projects,
		PageSize:   cfg.PageSize,
		Politeness: cfg.Politeness,
	}, src, store, out, log)

	start := time.Now()
	stats, err := s.Run(ctx)
	log.Info("scrape finished",
		slog.Int("pages", stats.Pages),
		slog.Int("records", stats.Records),
		slog.Any("stalled", stats.Stalled),
		slog.Duration("elapsed", time.Since(start)))
	return err
}
