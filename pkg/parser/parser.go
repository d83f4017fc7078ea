package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethpandaops/gherkinreport/pkg/attachment"
	"github.com/ethpandaops/gherkinreport/pkg/builder"
	"github.com/ethpandaops/gherkinreport/pkg/cucumber"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyResultSet is returned alongside the tallied suite when no step
// or hook was counted across all inputs.
var ErrEmptyResultSet = errors.New("no test results found")

// defaultConcurrency bounds ParseAll when no explicit limit is given.
const defaultConcurrency = 4

// Options configures a Parser.
type Options struct {
	IgnoreBadSteps bool
	// Concurrency bounds ParseAll. Zero uses a default.
	Concurrency int
}

// Parser turns report files into tallied report trees.
type Parser struct {
	log  logrus.FieldLogger
	sink attachment.Sink
	opts Options
}

// New creates a Parser. sink stages embedded attachments.
func New(log logrus.FieldLogger, sink attachment.Sink, opts Options) *Parser {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	return &Parser{
		log:  log.WithField("component", "parser"),
		sink: sink,
		opts: opts,
	}
}

// Parse reads paths in order into a single suite and tallies it. Empty
// files are skipped. Any builder error aborts the parse and no suite is
// returned. When the suite counts nothing, it is returned together with
// ErrEmptyResultSet.
func (p *Parser) Parse(ctx context.Context, paths ...string) (*report.Suite, error) {
	b := builder.New(p.log, p.sink, builder.Policy{
		IgnoreBadSteps: p.opts.IgnoreBadSteps,
	})

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path) //nolint:gosec // paths chosen by the caller
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		if len(bytes.TrimSpace(data)) == 0 {
			p.log.WithField("file", path).Info("Ignoring empty file")

			continue
		}

		p.log.WithField("file", path).Debug("Parsing report file")

		if err := cucumber.Replay(path, data, b); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	s := b.Suite()
	report.Tally(s)

	p.log.WithFields(logrus.Fields{
		"files":    len(paths),
		"features": len(s.Features),
		"passed":   s.PassCount(),
		"failed":   s.FailCount(),
		"skipped":  s.SkipCount(),
	}).Info("Parsed report files")

	if s.TotalCount() == 0 {
		return s, ErrEmptyResultSet
	}

	return s, nil
}

// ParseAll parses independent batches in parallel. Results keep the
// order of batches. ErrEmptyResultSet for a batch is not an error here;
// callers check TotalCount.
func (p *Parser) ParseAll(ctx context.Context, batches [][]string) ([]*report.Suite, error) {
	out := make([]*report.Suite, len(batches))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			s, err := p.Parse(gCtx, batch...)
			if err != nil && !errors.Is(err, ErrEmptyResultSet) {
				return err
			}

			out[i] = s

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// ExpandPatterns resolves glob patterns into a sorted, de-duplicated list
// of regular files.
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]struct{}, len(patterns))

	var files []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}

		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}

			if _, ok := seen[m]; ok {
				continue
			}

			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	sort.Strings(files)

	return files, nil
}
