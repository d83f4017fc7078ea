package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/ethpandaops/gherkinreport/pkg/attachment"
	"github.com/ethpandaops/gherkinreport/pkg/cache"
	"github.com/ethpandaops/gherkinreport/pkg/config"
	"github.com/ethpandaops/gherkinreport/pkg/parser"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	summaryRunID   string
	summaryOutput  string
	summaryPerFile bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary [flags] [report.json|glob]...",
	Short: "Print the figures of a recorded run or of report files",
	Long: `With --run-id, print the figures of a recorded run read through the
report cache. Otherwise parse the given report files without recording them,
as one run or, with --per-file, as one run per file.`,
	RunE: runSummaryCmd,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().StringVar(&summaryRunID, "run-id", "",
		"Recorded run to summarize")
	summaryCmd.Flags().StringVarP(&summaryOutput, "output", "o", "text",
		"Output format (text, json, yaml)")
	summaryCmd.Flags().BoolVar(&summaryPerFile, "per-file", false,
		"Summarize each report file on its own")
}

// runSummary is the printable form of a suite.
type runSummary struct {
	RunID          string           `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Source         string           `json:"source,omitempty" yaml:"source,omitempty"`
	Outcome        report.Outcome   `json:"outcome" yaml:"outcome"`
	Total          int              `json:"total" yaml:"total"`
	Passed         int              `json:"passed" yaml:"passed"`
	Failed         int              `json:"failed" yaml:"failed"`
	Skipped        int              `json:"skipped" yaml:"skipped"`
	Duration       float64          `json:"duration" yaml:"duration"`
	DurationString string           `json:"duration_string" yaml:"duration_string"`
	Attachments    int              `json:"attachments" yaml:"attachments"`
	AttachmentSize int64            `json:"attachment_bytes" yaml:"attachment_bytes"`
	Features       []featureSummary `json:"features" yaml:"features"`
}

type featureSummary struct {
	Name      string  `json:"name" yaml:"name"`
	URI       string  `json:"uri,omitempty" yaml:"uri,omitempty"`
	Scenarios int     `json:"scenarios" yaml:"scenarios"`
	Passed    int     `json:"passed" yaml:"passed"`
	Failed    int     `json:"failed" yaml:"failed"`
	Skipped   int     `json:"skipped" yaml:"skipped"`
	Duration  float64 `json:"duration" yaml:"duration"`
}

func runSummaryCmd(cmd *cobra.Command, args []string) error {
	switch summaryOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q", summaryOutput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	var suite *report.Suite

	switch {
	case summaryRunID != "" && len(args) > 0:
		return fmt.Errorf("--run-id and report files are mutually exclusive")
	case summaryRunID != "":
		store, err := openResults(cfg)
		if err != nil {
			return err
		}

		c := cache.New(log, store, summaryRunID)
		suite = c.GetResult(ctx)

		if err := c.LoadErr(); err != nil {
			return fmt.Errorf("loading run %s: %w", summaryRunID, err)
		}
	case len(args) > 0:
		files, err := parser.ExpandPatterns(args)
		if err != nil {
			return err
		}

		if len(files) == 0 {
			return fmt.Errorf("no report files matched %v", args)
		}

		if summaryPerFile {
			sums, err := summarizeFiles(ctx, cfg.Parser, files)
			if err != nil {
				return err
			}

			return writeSummaries(os.Stdout, sums, summaryOutput)
		}

		// Attachments are discarded here; only their sizes are reported.
		p := parser.New(log, attachment.DiscardSink{}, parser.Options{
			IgnoreBadSteps: cfg.Parser.IgnoreBadSteps,
		})

		suite, err = p.Parse(ctx, files...)
		if err != nil && !errors.Is(err, parser.ErrEmptyResultSet) {
			return err
		}
	default:
		return fmt.Errorf("either --run-id or report files are required")
	}

	sum := summarize(summaryRunID, suite, cfg.Parser.FailOnEmpty)

	return writeSummary(os.Stdout, sum, summaryOutput)
}

// summarizeFiles parses every file as an independent run.
func summarizeFiles(
	ctx context.Context, cfg config.ParserConfig, files []string,
) ([]*runSummary, error) {
	batches := make([][]string, len(files))
	for i, f := range files {
		batches[i] = []string{f}
	}

	p := parser.New(log, attachment.DiscardSink{}, parser.Options{
		IgnoreBadSteps: cfg.IgnoreBadSteps,
		Concurrency:    cfg.Concurrency,
	})

	suites, err := p.ParseAll(ctx, batches)
	if err != nil {
		return nil, err
	}

	sums := make([]*runSummary, 0, len(suites))

	for i, suite := range suites {
		sum := summarize("", suite, cfg.FailOnEmpty)
		sum.Source = files[i]
		sums = append(sums, sum)
	}

	return sums, nil
}

func summarize(runID string, s *report.Suite, failOnEmpty bool) *runSummary {
	sum := &runSummary{
		RunID:          runID,
		Outcome:        report.OutcomeOf(s, failOnEmpty),
		Total:          s.TotalCount(),
		Passed:         s.PassCount(),
		Failed:         s.FailCount(),
		Skipped:        s.SkipCount(),
		Duration:       s.Duration(),
		DurationString: report.FormatDuration(s.Duration()),
		Features:       make([]featureSummary, 0, len(s.Features)),
	}

	for _, f := range s.Features {
		sum.Features = append(sum.Features, featureSummary{
			Name:      f.Name,
			URI:       f.URI,
			Scenarios: len(f.Scenarios),
			Passed:    f.PassCount(),
			Failed:    f.FailCount(),
			Skipped:   f.SkipCount(),
			Duration:  f.Duration(),
		})

		for _, sc := range f.Scenarios {
			for _, a := range sc.Attachments {
				sum.Attachments++
				sum.AttachmentSize += a.Size
			}
		}
	}

	return sum
}

func writeSummary(w io.Writer, sum *runSummary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(sum)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(sum); err != nil {
			return err
		}

		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if sum.RunID != "" {
		fmt.Fprintf(tw, "Run:\t%s\n", sum.RunID)
	}

	if sum.Source != "" {
		fmt.Fprintf(tw, "Source:\t%s\n", sum.Source)
	}

	fmt.Fprintf(tw, "Outcome:\t%s\n", sum.Outcome)
	fmt.Fprintf(tw, "Steps:\t%d total, %d passed, %d failed, %d skipped\n",
		sum.Total, sum.Passed, sum.Failed, sum.Skipped)
	fmt.Fprintf(tw, "Duration:\t%s\n", sum.DurationString)
	fmt.Fprintf(tw, "Attachments:\t%d (%s)\n",
		sum.Attachments, units.HumanSize(float64(sum.AttachmentSize)))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "FEATURE\tSCENARIOS\tPASSED\tFAILED\tSKIPPED\tDURATION")

	for _, f := range sum.Features {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			f.Name, f.Scenarios, f.Passed, f.Failed, f.Skipped,
			report.FormatDuration(f.Duration))
	}

	return tw.Flush()
}

func writeSummaries(w io.Writer, sums []*runSummary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(sums)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(sums); err != nil {
			return err
		}

		return enc.Close()
	}

	for i, sum := range sums {
		if i > 0 {
			fmt.Fprintln(w)
		}

		if err := writeSummary(w, sum, format); err != nil {
			return err
		}
	}

	return nil
}
