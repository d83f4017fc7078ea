// Package storage persists report trees per run.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/gherkinreport/pkg/config"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/sirupsen/logrus"
)

// ResultFile is the name of the serialized tree inside a run directory.
const ResultFile = "gherkin-result.json"

// RunsDir is the directory (or key prefix) holding one entry per run.
const RunsDir = "runs"

// ErrNotFound is returned by Load when no tree was stored for a run.
var ErrNotFound = errors.New("result not found")

// Store saves and loads report trees keyed by run ID. Implementations are
// safe for concurrent use.
type Store interface {
	// Save serializes the suite for runID, replacing any previous tree.
	Save(ctx context.Context, runID string, s *report.Suite) error

	// Load deserializes and tallies the tree for runID. Returns
	// ErrNotFound when nothing was stored.
	Load(ctx context.Context, runID string) (*report.Suite, error)

	// ListRunIDs returns the IDs of all stored runs, sorted.
	ListRunIDs(ctx context.Context) ([]string, error)
}

// New creates the Store selected by cfg.Storage.Driver.
func New(log logrus.FieldLogger, cfg *config.ResultsConfig) (Store, error) {
	switch cfg.Storage.Driver {
	case "", "local":
		return NewLocalStore(log, cfg.Dir), nil
	case "s3":
		if cfg.Storage.S3 == nil {
			return nil, fmt.Errorf("s3 storage driver requires s3 settings")
		}

		return NewS3Store(log, cfg.Storage.S3), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
}

// ValidateRunID rejects IDs that could escape the runs directory.
func ValidateRunID(runID string) error {
	if runID == "" || runID == "." || runID == ".." ||
		strings.ContainsAny(runID, `/\`) {
		return fmt.Errorf("invalid run id %q", runID)
	}

	return nil
}
