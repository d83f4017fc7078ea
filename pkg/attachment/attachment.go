package attachment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// EmbedDir is the run sub-directory holding archived attachments.
	EmbedDir = "embed"

	filePrefix = "cuke_"
	fileSuffix = ".embed"
)

// Sink stages embedded attachment bytes outside the report tree.
type Sink interface {
	// Stage persists data and returns the file name it was stored under.
	Stage(data []byte) (string, error)
}

// Compile-time interface checks.
var (
	_ Sink = (*TempDirSink)(nil)
	_ Sink = DiscardSink{}
)

// DiscardSink names attachments without storing them. It serves callers
// that only need the tree.
type DiscardSink struct{}

// Stage returns a fresh file name and drops data.
func (DiscardSink) Stage(_ []byte) (string, error) {
	return filePrefix + uuid.NewString() + fileSuffix, nil
}

// TempDirSink writes each attachment to a uniquely named file in Dir.
type TempDirSink struct {
	Dir string
}

// NewTempDirSink creates a sink rooted at dir, creating it if needed.
// An empty dir uses the system temp directory.
func NewTempDirSink(dir string) (*TempDirSink, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	return &TempDirSink{Dir: dir}, nil
}

// Stage writes data to a new cuke_<uuid>.embed file.
func (s *TempDirSink) Stage(data []byte) (string, error) {
	name := filePrefix + uuid.NewString() + fileSuffix
	p := filepath.Join(s.Dir, name)

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating attachment file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(p)

		return "", fmt.Errorf("writing attachment file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(p)

		return "", fmt.Errorf("closing attachment file: %w", err)
	}

	return name, nil
}

// Path returns the archived location of an attachment, relative to the
// run directory.
func Path(f *report.Feature, sc *report.Scenario, a *report.Attachment) string {
	return filepath.Join(
		EmbedDir, report.SafeName(f.Name), report.SafeName(sc.Name), a.FileName,
	)
}

// Archive moves every staged attachment of s from stagingDir into
// runDir/embed/<feature>/<scenario>/. It returns the number of files
// moved. Missing staged files are logged and skipped.
func Archive(
	log logrus.FieldLogger,
	stagingDir, runDir string,
	s *report.Suite,
) (int, error) {
	log = log.WithField("component", "attachment-archiver")

	root, err := filepath.Abs(filepath.Join(runDir, EmbedDir))
	if err != nil {
		return 0, fmt.Errorf("resolving embed directory: %w", err)
	}

	var moved int

	for _, f := range s.Features {
		for _, sc := range f.Scenarios {
			for _, a := range sc.Attachments {
				dst, err := filepath.Abs(filepath.Join(runDir, Path(f, sc, a)))
				if err != nil {
					return moved, fmt.Errorf("resolving attachment path: %w", err)
				}

				if !strings.HasPrefix(dst, root+string(filepath.Separator)) {
					return moved, fmt.Errorf(
						"attachment %q escapes embed directory", a.FileName,
					)
				}

				src := filepath.Join(stagingDir, filepath.Base(a.FileName))

				if err := moveFile(src, dst); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						log.WithField("file", a.FileName).
							Warn("Staged attachment missing, skipping")

						continue
					}

					return moved, fmt.Errorf("archiving %s: %w", a.FileName, err)
				}

				moved++
			}
		}
	}

	if moved > 0 {
		log.WithFields(logrus.Fields{
			"files":   moved,
			"run_dir": runDir,
		}).Info("Archived attachments")
	}

	return moved, nil
}

// moveFile renames src to dst, falling back to copy+remove when the
// rename crosses filesystems.
func moveFile(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src) //nolint:gosec // staged by this process
	if err != nil {
		return fmt.Errorf("reading staged file: %w", err)
	}

	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("writing archived file: %w", err)
	}

	return os.Remove(src)
}
