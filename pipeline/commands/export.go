package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/DeafMist/issue-harvester/internal/config"
	"github.com/DeafMist/issue-harvester/internal/export"
)

var (
	exportFormat string
	exportOutput string
	exportUpload bool
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "csv or parquet (overrides EXPORT_FORMAT).")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Destination file (overrides EXPORT_OUTPUT).")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Upload the artifact to EXPORT_BUCKET.")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [--format csv|parquet] [-o path] [--upload]",
	Short: "Writes the cleaned log as a flat table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadExporter()
		if err != nil {
			return err
		}
		return interrupted(runExport(cmd.Context(), cfg))
	},
}

func runExport(ctx context.Context, cfg *config.Exporter) error {
	formatName := cfg.Format
	if exportFormat != "" {
		formatName = exportFormat
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	output := cfg.Output
	if exportOutput != "" {
		output = exportOutput
	}

	if _, err := export.WriteFile(ctx, cfg.CleanedLog, output, format, log); err != nil {
		return err
	}
	if !exportUpload {
		return nil
	}

	uploader, err := export.NewS3Uploader(export.S3Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
		Bucket:    cfg.Bucket,
		Prefix:    cfg.UploadPrefix,
	})
	if err != nil {
		return err
	}
	location, err := uploader.Upload(ctx, output, format)
	if err != nil {
		return err
	}
	log.Info("export uploaded", slog.String("location", location))
	return nil
}
