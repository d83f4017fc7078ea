// Package indexer keeps the run index in sync with stored report trees.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/gherkinreport/pkg/indexstore"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/ethpandaops/gherkinreport/pkg/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency is the number of runs indexed in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// Indexer is a background service that periodically scans stored runs
// and upserts their summaries into the index store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error

	// RunPass indexes every stored run missing from the index and returns
	// how many were added.
	RunPass(ctx context.Context) (int, error)
}

// Compile-time interface check.
var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	index       indexstore.Store
	results     storage.Store
	interval    time.Duration
	concurrency int
	failOnEmpty bool
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new background indexer. failOnEmpty grades runs
// that counted nothing as failures.
func NewIndexer(
	log logrus.FieldLogger,
	index indexstore.Store,
	results storage.Store,
	interval time.Duration,
	concurrency int,
	failOnEmpty bool,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		index:       index,
		results:     results,
		interval:    interval,
		concurrency: concurrency,
		failOnEmpty: failOnEmpty,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate indexing
// pass and then ticks at the configured interval.
func (idx *indexer) Start(ctx context.Context) error {
	idx.log.WithFields(logrus.Fields{
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		idx.pass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.pass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	idx.stopOnce.Do(func() { close(idx.done) })
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

func (idx *indexer) pass(ctx context.Context) {
	if _, err := idx.RunPass(ctx); err != nil {
		idx.log.WithError(err).Warn("Indexing pass failed")
	}
}

// RunPass discovers stored runs that are not indexed yet and indexes them
// using a bounded worker pool. A run that fails to index is logged and
// skipped.
func (idx *indexer) RunPass(ctx context.Context) (int, error) {
	start := time.Now()

	storedIDs, err := idx.results.ListRunIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing stored run IDs: %w", err)
	}

	indexedIDs, err := idx.index.ListRunIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing indexed run IDs: %w", err)
	}

	indexedSet := make(map[string]struct{}, len(indexedIDs))
	for _, id := range indexedIDs {
		indexedSet[id] = struct{}{}
	}

	var pending []string

	for _, id := range storedIDs {
		if _, ok := indexedSet[id]; !ok {
			pending = append(pending, id)
		}
	}

	idx.log.WithFields(logrus.Fields{
		"stored_runs":  len(storedIDs),
		"indexed_runs": len(indexedIDs),
		"new_runs":     len(pending),
	}).Info("Indexing pass started")

	if len(pending) == 0 {
		return 0, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	var indexed atomic.Int64

	for _, runID := range pending {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-idx.done:
				return nil
			default:
			}

			if err := idx.indexRun(gCtx, runID); err != nil {
				idx.log.WithError(err).
					WithField("run_id", runID).
					Warn("Failed to index run")

				return nil //nolint:nilerr // log and continue
			}

			idx.log.WithField("run_id", runID).Debug("Indexed run")

			indexed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(indexed.Load()), fmt.Errorf("indexing runs: %w", err)
	}

	idx.log.WithFields(logrus.Fields{
		"count":    indexed.Load(),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Indexing pass completed")

	return int(indexed.Load()), nil
}

// indexRun loads a stored tree and writes its run and feature rows.
func (idx *indexer) indexRun(ctx context.Context, runID string) error {
	s, err := idx.results.Load(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading result: %w", err)
	}

	run, features := indexstore.FromSuite(
		runID, report.OutcomeOf(s, idx.failOnEmpty), s,
	)

	// Serialize DB writes to avoid SQLite BUSY errors under concurrency.
	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	if err := idx.index.UpsertRun(ctx, run); err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if err := idx.index.ReplaceFeatures(ctx, runID, features); err != nil {
		return fmt.Errorf("replacing features: %w", err)
	}

	return nil
}
