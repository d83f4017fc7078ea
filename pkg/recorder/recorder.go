// Package recorder turns report files into a recorded run: parsed tree,
// archived attachments, persisted result and index entry.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethpandaops/gherkinreport/pkg/attachment"
	"github.com/ethpandaops/gherkinreport/pkg/cache"
	"github.com/ethpandaops/gherkinreport/pkg/fsutil"
	"github.com/ethpandaops/gherkinreport/pkg/indexstore"
	"github.com/ethpandaops/gherkinreport/pkg/parser"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/ethpandaops/gherkinreport/pkg/storage"
	"github.com/sirupsen/logrus"
)

// ErrNoInputFiles is returned when the patterns match no file.
var ErrNoInputFiles = errors.New("no report files matched")

// Options configures a Recorder.
type Options struct {
	// ResultsDir is the local directory receiving archived attachments.
	ResultsDir string
	// StagingDir holds attachments between parsing and archiving. Empty
	// uses the system temp directory.
	StagingDir     string
	IgnoreBadSteps bool
	FailOnEmpty    bool
	// Owner, when set, is applied to the run directory after recording.
	Owner *fsutil.Owner
}

// Result describes a recorded run.
type Result struct {
	RunID       string
	Outcome     report.Outcome
	Suite       *report.Suite
	Files       []string
	Attachments int
}

// Recorder records runs. index may be nil.
type Recorder struct {
	log      logrus.FieldLogger
	opts     Options
	registry *cache.Registry
	index    indexstore.Store
}

// New creates a Recorder.
func New(
	log logrus.FieldLogger,
	opts Options,
	registry *cache.Registry,
	index indexstore.Store,
) *Recorder {
	return &Recorder{
		log:      log.WithField("component", "recorder"),
		opts:     opts,
		registry: registry,
		index:    index,
	}
}

// Record parses the files matching patterns as run runID. An empty run
// returns parser.ErrEmptyResultSet with a failure outcome when
// FailOnEmpty is set. A persistence or index failure is logged and does
// not change the outcome.
func (r *Recorder) Record(
	ctx context.Context, runID string, patterns []string,
) (*Result, error) {
	if err := storage.ValidateRunID(runID); err != nil {
		return nil, err
	}

	files, err := parser.ExpandPatterns(patterns)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoInputFiles, patterns)
	}

	log := r.log.WithField("run_id", runID)

	if r.opts.StagingDir != "" {
		if err := os.MkdirAll(r.opts.StagingDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating staging directory: %w", err)
		}
	}

	stagingDir, err := os.MkdirTemp(r.opts.StagingDir, "gherkinreport-"+runID+"-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	defer func() { _ = os.RemoveAll(stagingDir) }()

	sink, err := attachment.NewTempDirSink(stagingDir)
	if err != nil {
		return nil, err
	}

	p := parser.New(log, sink, parser.Options{
		IgnoreBadSteps: r.opts.IgnoreBadSteps,
	})

	s, err := p.Parse(ctx, files...)
	if err != nil {
		if !errors.Is(err, parser.ErrEmptyResultSet) {
			return nil, err
		}

		if r.opts.FailOnEmpty {
			log.Error("No test results found")

			return &Result{
				RunID:   runID,
				Outcome: report.OutcomeFailure,
				Suite:   s,
				Files:   files,
			}, err
		}

		log.Warn("No test results found, continuing")
	}

	runDir := storage.RunDir(r.opts.ResultsDir, runID)

	moved, err := attachment.Archive(log, stagingDir, runDir, s)
	if err != nil {
		return nil, fmt.Errorf("archiving attachments: %w", err)
	}

	if err := r.registry.SetResult(ctx, runID, s); err != nil {
		log.WithError(err).Warn("Result kept in memory only")
	}

	if r.opts.Owner != nil {
		if _, statErr := os.Stat(runDir); statErr == nil {
			if _, err := fsutil.ChownTree(runDir, r.opts.Owner); err != nil {
				log.WithError(err).Warn("Failed to set run directory owner")
			}
		}
	}

	outcome := report.OutcomeOf(s, r.opts.FailOnEmpty)

	if r.index != nil {
		r.updateIndex(ctx, log, runID, outcome, s)
	}

	log.WithFields(logrus.Fields{
		"outcome": outcome,
		"passed":  s.PassCount(),
		"failed":  s.FailCount(),
		"skipped": s.SkipCount(),
	}).Info("Recorded run")

	return &Result{
		RunID:       runID,
		Outcome:     outcome,
		Suite:       s,
		Files:       files,
		Attachments: moved,
	}, nil
}

func (r *Recorder) updateIndex(
	ctx context.Context,
	log logrus.FieldLogger,
	runID string,
	outcome report.Outcome,
	s *report.Suite,
) {
	run, features := indexstore.FromSuite(runID, outcome, s)

	if err := r.index.UpsertRun(ctx, run); err != nil {
		log.WithError(err).Warn("Failed to index run")

		return
	}

	if err := r.index.ReplaceFeatures(ctx, runID, features); err != nil {
		log.WithError(err).Warn("Failed to index features")
	}
}
