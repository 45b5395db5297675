package commands

import (
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/DeafMist/issue-harvester/internal/config"
	"github.com/DeafMist/issue-harvester/internal/jsonl"
	"github.com/DeafMist/issue-harvester/internal/publish"
	"github.com/DeafMist/issue-harvester/internal/state"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints checkpoint offsets, seen-set size and log line counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadScraper()
		if err != nil {
			return err
		}
		return renderStatus(cmd.OutOrStdout(), cfg.Paths, cfg.Projects)
	},
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderStatus(w io.Writer, paths config.Paths, projects []string) error {
	cp := state.NewCheckpointStore(paths.CheckpointFile, projects, log).Load()
	partitions := make([]string, 0, len(cp))
	for p := range cp {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)

	offsets := newTable(w)
	offsets.SetTitle("Checkpoint")
	offsets.AppendHeader(table.Row{"Project", "Next offset"})
	var total int64
	for _, p := range partitions {
		offsets.AppendRow(table.Row{p, cp[p]})
		total += cp[p]
	}
	offsets.AppendFooter(table.Row{"Total", total})
	offsets.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight}})
	offsets.Render()

	rawLines, err := jsonl.CountLines(paths.RawLog)
	if err != nil {
		return err
	}
	cleanedLines, err := jsonl.CountLines(paths.CleanedLog)
	if err != nil {
		return err
	}
	seen := state.NewSeenStore(paths.SeenFile, log).Load()
	published := state.NewCheckpointStore(paths.PublishCheckpointFile, []string{publish.Partition}, log).Load()

	files := newTable(w)
	files.SetTitle("Logs")
	files.AppendHeader(table.Row{"Item", "Path", "Count"})
	files.AppendRows([]table.Row{
		{"raw records", paths.RawLog, rawLines},
		{"cleaned records", paths.CleanedLog, cleanedLines},
		{"seen hashes", paths.SeenFile, seen.Len()},
		{"published lines", paths.PublishCheckpointFile, published.Offset(publish.Partition)},
	})
	files.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	files.Render()
	return nil
}
