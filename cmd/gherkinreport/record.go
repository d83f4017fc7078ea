package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethpandaops/gherkinreport/pkg/cache"
	"github.com/ethpandaops/gherkinreport/pkg/config"
	"github.com/ethpandaops/gherkinreport/pkg/fsutil"
	"github.com/ethpandaops/gherkinreport/pkg/indexstore"
	"github.com/ethpandaops/gherkinreport/pkg/markdown"
	"github.com/ethpandaops/gherkinreport/pkg/recorder"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/ethpandaops/gherkinreport/pkg/storage"
	"github.com/ethpandaops/gherkinreport/pkg/upload"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	recordRunID          string
	recordIgnoreBadSteps bool
	recordAllowEmpty     bool
	recordMarkdownOutput string
	recordSkipUpload     bool
)

var recordCmd = &cobra.Command{
	Use:   "record [flags] <report.json|glob>...",
	Short: "Record a run from behave/cucumber JSON reports",
	Long: `Parse the given JSON report files into a single tallied report tree,
archive its attachments under the results directory, persist the tree and
index it. Exits non-zero when the run outcome is a failure.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVar(&recordRunID, "run-id", "",
		"Run ID (default: <unix time>_<random>)")
	recordCmd.Flags().BoolVar(&recordIgnoreBadSteps, "ignore-bad-steps", false,
		"Drop steps that restart before finishing instead of failing (overrides parser.ignore_bad_steps)")
	recordCmd.Flags().BoolVar(&recordAllowEmpty, "allow-empty", false,
		"Treat a run without results as a success (overrides parser.fail_on_empty)")
	recordCmd.Flags().StringVar(&recordMarkdownOutput, "markdown-output", "",
		"Also write a markdown summary to this file")
	recordCmd.Flags().BoolVar(&recordSkipUpload, "skip-upload", false,
		"Do not upload the run even when results.upload.s3 is enabled")
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("ignore-bad-steps") {
		cfg.Parser.IgnoreBadSteps = recordIgnoreBadSteps
	}

	if cmd.Flags().Changed("allow-empty") {
		cfg.Parser.FailOnEmpty = !recordAllowEmpty
	}

	owner, err := fsutil.ParseOwner(cfg.Results.Owner)
	if err != nil {
		return fmt.Errorf("parsing results.owner: %w", err)
	}

	runID := recordRunID
	if runID == "" {
		runID = newRunID()
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	store, err := openResults(cfg)
	if err != nil {
		return err
	}

	var index indexstore.Store

	if cfg.Results.Index != nil {
		index = indexstore.NewStore(log, cfg.Results.Index)

		if err := index.Start(ctx); err != nil {
			return fmt.Errorf("starting index store: %w", err)
		}

		defer func() {
			if err := index.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop index store")
			}
		}()
	}

	rec := recorder.New(log, recorder.Options{
		ResultsDir:     cfg.Results.Dir,
		StagingDir:     cfg.Parser.StagingDir,
		IgnoreBadSteps: cfg.Parser.IgnoreBadSteps,
		FailOnEmpty:    cfg.Parser.FailOnEmpty,
		Owner:          owner,
	}, cache.NewRegistry(log, store, 0), index)

	result, err := rec.Record(ctx, runID, args)
	if result == nil {
		return fmt.Errorf("recording run: %w", err)
	}

	if err != nil {
		log.WithError(err).Error("Run recorded without results")
	}

	if recordMarkdownOutput != "" {
		md := markdown.GenerateRunMarkdown(runID, result.Suite, maxMarkdownChars)
		if err := os.WriteFile(recordMarkdownOutput, []byte(md), 0o644); err != nil {
			return fmt.Errorf("writing markdown summary: %w", err)
		}
	}

	if err == nil && !recordSkipUpload {
		if err := uploadRun(ctx, cfg, runID); err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{
		"run_id":      runID,
		"outcome":     result.Outcome,
		"files":       len(result.Files),
		"attachments": result.Attachments,
		"duration":    report.FormatDuration(result.Suite.Duration()),
	}).Info("Run recorded")

	fmt.Println(runID)

	if result.Outcome == report.OutcomeFailure {
		return fmt.Errorf("run %s finished with outcome %s", runID, result.Outcome)
	}

	return nil
}

// uploadRun pushes the local run directory when S3 upload is enabled.
func uploadRun(ctx context.Context, cfg *config.Config, runID string) error {
	if cfg.Results.Upload == nil || cfg.Results.Upload.S3 == nil ||
		!cfg.Results.Upload.S3.Enabled {
		return nil
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Results.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("s3 preflight: %w", err)
	}

	if _, err := uploader.Upload(
		ctx, runID, storage.RunDir(cfg.Results.Dir, runID),
	); err != nil {
		return fmt.Errorf("uploading run: %w", err)
	}

	return nil
}

// newRunID returns "<unix seconds>_<8 hex chars>".
func newRunID() string {
	return fmt.Sprintf("%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}
