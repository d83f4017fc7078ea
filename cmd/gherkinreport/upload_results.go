package main

import (
	"fmt"
	"os"

	"github.com/ethpandaops/gherkinreport/pkg/storage"
	"github.com/ethpandaops/gherkinreport/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	uploadMethod string
	uploadRunID  string
)

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload a recorded run to remote storage",
	Long:  `Upload a local run directory to S3-compatible storage using the config file settings.`,
	RunE:  runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringVar(&uploadMethod, "method", "s3",
		"Upload method (currently only \"s3\")")
	uploadResultsCmd.Flags().StringVar(&uploadRunID, "run-id", "",
		"Run ID whose directory under results.dir is uploaded")

	_ = uploadResultsCmd.MarkFlagRequired("run-id")
}

func runUploadResults(cmd *cobra.Command, args []string) error {
	if len(cfgFiles) == 0 {
		return fmt.Errorf("config file is required (use --config)")
	}

	if uploadMethod != "s3" {
		return fmt.Errorf("unsupported method %q (only \"s3\" is supported)", uploadMethod)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Results.Upload == nil ||
		cfg.Results.Upload.S3 == nil ||
		!cfg.Results.Upload.S3.Enabled {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	if err := storage.ValidateRunID(uploadRunID); err != nil {
		return err
	}

	runDir := storage.RunDir(cfg.Results.Dir, uploadRunID)
	if _, err := os.Stat(runDir); err != nil {
		return fmt.Errorf("run directory: %w", err)
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Results.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("s3 preflight: %w", err)
	}

	log.WithField("dir", runDir).Info("Uploading results")

	n, err := uploader.Upload(ctx, uploadRunID, runDir)
	if err != nil {
		return fmt.Errorf("uploading results: %w", err)
	}

	log.WithField("files", n).Info("Upload completed successfully")

	return nil
}
