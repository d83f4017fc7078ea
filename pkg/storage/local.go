package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Store = (*localStore)(nil)

type localStore struct {
	log     logrus.FieldLogger
	baseDir string
}

// NewLocalStore creates a Store rooted at baseDir. Trees are written to
// {baseDir}/runs/{runID}/gherkin-result.json.
func NewLocalStore(log logrus.FieldLogger, baseDir string) Store {
	return &localStore{
		log:     log.WithField("component", "local-store"),
		baseDir: baseDir,
	}
}

// RunDir returns the directory holding a run's files.
func RunDir(baseDir, runID string) string {
	return filepath.Join(baseDir, RunsDir, runID)
}

// Save writes the tree through a temp file and rename so readers never see
// a partial file.
func (s *localStore) Save(
	_ context.Context, runID string, suite *report.Suite,
) error {
	if err := ValidateRunID(runID); err != nil {
		return err
	}

	dir := RunDir(s.baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}

	var buf bytes.Buffer
	if err := report.Encode(&buf, suite); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+ResultFile+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("closing temp file: %w", err)
	}

	dst := filepath.Join(dir, ResultFile)
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("renaming result file: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"run_id": runID,
		"path":   dst,
	}).Debug("Saved result")

	return nil
}

// Load reads {baseDir}/runs/{runID}/gherkin-result.json.
func (s *localStore) Load(
	_ context.Context, runID string,
) (*report.Suite, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}

	p := filepath.Join(RunDir(s.baseDir, runID), ResultFile)

	f, err := os.Open(p) //nolint:gosec // run id validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("opening %s: %w", p, err)
	}

	defer func() { _ = f.Close() }()

	suite, err := report.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p, err)
	}

	return suite, nil
}

// ListRunIDs returns run directory names under {baseDir}/runs/ that hold
// a result file.
func (s *localStore) ListRunIDs(_ context.Context) ([]string, error) {
	runsDir := filepath.Join(s.baseDir, RunsDir)

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if _, err := os.Stat(filepath.Join(runsDir, e.Name(), ResultFile)); err != nil {
			continue
		}

		ids = append(ids, e.Name())
	}

	sort.Strings(ids)

	return ids, nil
}
