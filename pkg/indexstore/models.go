package indexstore

import (
	"time"

	"github.com/ethpandaops/gherkinreport/pkg/report"
)

// Run represents the root figures of one recorded run.
type Run struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"not null;uniqueIndex"`
	Outcome   string `gorm:"index"`
	Features  int
	Scenarios int

	Total           int
	Passed          int
	Failed          int
	Skipped         int
	DurationSeconds float64

	IndexedAt   time.Time
	ReindexedAt *time.Time
}

// FeatureSummary holds the tallied figures of one feature of a run.
type FeatureSummary struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"not null;uniqueIndex:idx_fs_run_pos"`
	Position  int    `gorm:"not null;uniqueIndex:idx_fs_run_pos"`
	URI       string
	Name      string
	Scenarios int

	Total           int
	Passed          int
	Failed          int
	Skipped         int
	DurationSeconds float64
}

// FromSuite builds the index rows for a tallied suite.
func FromSuite(
	runID string, outcome report.Outcome, s *report.Suite,
) (*Run, []*FeatureSummary) {
	run := &Run{
		RunID:           runID,
		Outcome:         string(outcome),
		Features:        len(s.Features),
		Scenarios:       len(s.Scenarios()),
		Total:           s.TotalCount(),
		Passed:          s.PassCount(),
		Failed:          s.FailCount(),
		Skipped:         s.SkipCount(),
		DurationSeconds: s.Duration(),
	}

	features := make([]*FeatureSummary, 0, len(s.Features))
	for i, f := range s.Features {
		c := f.Counts()

		features = append(features, &FeatureSummary{
			RunID:           runID,
			Position:        i,
			URI:             f.URI,
			Name:            f.Name,
			Scenarios:       len(f.Scenarios),
			Total:           c.Total(),
			Passed:          c.Passed,
			Failed:          c.Failed,
			Skipped:         c.Skipped,
			DurationSeconds: c.Duration,
		})
	}

	return run, features
}
