// Package markdown renders recorded runs as markdown summaries, e.g. for
// CI job summaries.
package markdown

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/ethpandaops/gherkinreport/pkg/report"
)

// failedScenarioInfo holds the failing parts of one scenario.
type failedScenarioInfo struct {
	Feature     string
	Scenario    string
	FailedSteps []string
}

// GenerateRunMarkdown generates a markdown summary of a tallied suite. The
// output is capped at maxChars characters; zero means no cap.
func GenerateRunMarkdown(
	runID string,
	suite *report.Suite,
	maxChars int,
) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, runID)
	writeOverview(&sb, suite)
	writeTestResults(&sb, suite)
	writeFeatures(&sb, suite)
	writeAttachments(&sb, suite)

	// Failed scenarios section is last; it gets truncated if needed.
	writeFailedScenarios(&sb, collectFailedScenarios(suite), maxChars)

	return sb.String()
}

func writeTitle(sb *strings.Builder, runID string) {
	fmt.Fprintf(sb, "# Test Run: %s\n\n", runID)
}

func writeOverview(sb *strings.Builder, s *report.Suite) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	result := "passed"

	switch {
	case s.TotalCount() == 0:
		result = "no results"
	case !s.IsPassed():
		result = "failed"
	}

	fmt.Fprintf(sb, "| Result | %s |\n", result)
	fmt.Fprintf(sb, "| Features | %d |\n", len(s.Features))
	fmt.Fprintf(sb, "| Scenarios | %d |\n", len(s.Scenarios()))
	fmt.Fprintf(sb, "| Duration | %s |\n", report.FormatDuration(s.Duration()))

	sb.WriteByte('\n')
}

func writeTestResults(sb *strings.Builder, s *report.Suite) {
	sb.WriteString("## Test Results\n\n")
	sb.WriteString("| Total | Passed | Failed | Skipped |\n")
	sb.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d |\n\n",
		s.TotalCount(), s.PassCount(), s.FailCount(), s.SkipCount())
}

func writeFeatures(sb *strings.Builder, s *report.Suite) {
	if len(s.Features) == 0 {
		return
	}

	sb.WriteString("## Features\n\n")
	sb.WriteString("| Feature | Scenarios | Passed | Failed | Skipped | Duration |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")

	for _, f := range s.Features {
		fmt.Fprintf(sb, "| %s | %d | %d | %d | %d | %s |\n",
			cell(f.Name),
			len(f.Scenarios),
			f.PassCount(),
			f.FailCount(),
			f.SkipCount(),
			report.FormatDuration(f.Duration()),
		)
	}

	sb.WriteByte('\n')
}

func writeAttachments(sb *strings.Builder, s *report.Suite) {
	var (
		rows  []string
		total int64
	)

	for _, f := range s.Features {
		for _, sc := range f.Scenarios {
			for _, a := range sc.Attachments {
				rows = append(rows, fmt.Sprintf("| %s | %s | %s | %s |\n",
					cell(sc.Name), cell(a.FileName), a.MimeType,
					units.HumanSize(float64(a.Size))))
				total += a.Size
			}
		}
	}

	if len(rows) == 0 {
		return
	}

	fmt.Fprintf(sb, "## Attachments (%d, %s)\n\n",
		len(rows), units.HumanSize(float64(total)))
	sb.WriteString("| Scenario | File | Type | Size |\n")
	sb.WriteString("|---|---|---|---|\n")

	for _, row := range rows {
		sb.WriteString(row)
	}

	sb.WriteByte('\n')
}

func writeFailedScenarios(
	sb *strings.Builder,
	failed []failedScenarioInfo,
	maxChars int,
) {
	if len(failed) == 0 {
		return
	}

	sb.WriteString("## Failed Scenarios\n\n")
	sb.WriteString("| Feature | Scenario | Failed Steps |\n")
	sb.WriteString("|---|---|---|\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	for i, fs := range failed {
		row := fmt.Sprintf("| %s | %s | %s |\n",
			cell(fs.Feature), cell(fs.Scenario),
			cell(strings.Join(fs.FailedSteps, ", ")))

		// Check if adding this row would exceed maxChars.
		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			remaining := len(failed) - i
			fmt.Fprintf(sb,
				"\n*%d more failed scenario(s) not shown "+
					"(output truncated at %d chars)*\n",
				remaining, maxChars)

			return
		}

		sb.WriteString(row)
	}
}

// collectFailedScenarios returns scenarios with at least one failure in
// arrival order, naming the failed steps and hooks of each.
func collectFailedScenarios(s *report.Suite) []failedScenarioInfo {
	failed := make([]failedScenarioInfo, 0)

	for _, f := range s.Features {
		for _, sc := range f.Scenarios {
			if sc.FailCount() == 0 {
				continue
			}

			var names []string

			for _, h := range sc.Before {
				if h.FailCount() > 0 {
					names = append(names, "before: "+h.Name())
				}
			}

			if sc.Background != nil {
				for _, st := range sc.Background.Steps {
					if st.FailCount() > 0 {
						names = append(names, "background: "+stepLabel(st))
					}
				}
			}

			for _, st := range sc.Steps {
				if st.FailCount() > 0 {
					names = append(names, stepLabel(st))
				}
			}

			for _, h := range sc.After {
				if h.FailCount() > 0 {
					names = append(names, "after: "+h.Name())
				}
			}

			failed = append(failed, failedScenarioInfo{
				Feature:     f.Name,
				Scenario:    sc.Name,
				FailedSteps: names,
			})
		}
	}

	return failed
}

func stepLabel(st *report.Step) string {
	return strings.TrimSpace(st.Keyword + st.Name)
}

// cell escapes text for use inside a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)

	return strings.ReplaceAll(s, "\n", " ")
}
