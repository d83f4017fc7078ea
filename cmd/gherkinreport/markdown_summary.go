package main

import (
	"fmt"
	"os"

	"github.com/ethpandaops/gherkinreport/pkg/cache"
	"github.com/ethpandaops/gherkinreport/pkg/markdown"
	"github.com/spf13/cobra"
)

var generateMarkdownSummaryCmd = &cobra.Command{
	Use:   "generate-markdown-summary",
	Short: "Generate a markdown summary of a recorded run",
	Long:  `Reads a recorded run from the results storage and produces a markdown summary file.`,
	RunE:  runGenerateMarkdownSummary,
}

var (
	mdRunID  string
	mdOutput string
)

const maxMarkdownChars = 65000

func init() {
	rootCmd.AddCommand(generateMarkdownSummaryCmd)
	generateMarkdownSummaryCmd.Flags().StringVar(&mdRunID, "run-id", "",
		"Recorded run to summarize")
	generateMarkdownSummaryCmd.Flags().StringVar(&mdOutput, "output", "",
		"Output file path (default: summary-<run_id>.md)")

	if err := generateMarkdownSummaryCmd.MarkFlagRequired("run-id"); err != nil {
		panic(err)
	}
}

func runGenerateMarkdownSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openResults(cfg)
	if err != nil {
		return err
	}

	log.WithField("run_id", mdRunID).Info("Generating markdown summary")

	c := cache.New(log, store, mdRunID)
	suite := c.GetResult(cmd.Context())

	if err := c.LoadErr(); err != nil {
		return fmt.Errorf("loading run %s: %w", mdRunID, err)
	}

	md := markdown.GenerateRunMarkdown(mdRunID, suite, maxMarkdownChars)

	output := mdOutput
	if output == "" {
		output = fmt.Sprintf("summary-%s.md", mdRunID)
	}

	if err := os.WriteFile(output, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", output).
		Info("Markdown summary generated successfully")

	return nil
}
