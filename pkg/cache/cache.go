// Package cache keeps report trees in memory in front of a storage.Store
// and answers summary queries without walking the tree.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/ethpandaops/gherkinreport/pkg/storage"
	"github.com/sirupsen/logrus"
)

// ErrPersistence wraps failures to write a tree to durable storage. The
// in-memory tree is updated regardless.
var ErrPersistence = errors.New("persisting result")

// Summary is a snapshot of a tree's root figures.
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Duration float64 `json:"duration"`
	IsPassed bool    `json:"is_passed"`
}

func summarize(s *report.Suite) Summary {
	return Summary{
		Total:    s.TotalCount(),
		Passed:   s.PassCount(),
		Failed:   s.FailCount(),
		Skipped:  s.SkipCount(),
		Duration: s.Duration(),
		IsPassed: s.IsPassed(),
	}
}

// Cache holds the tree of one run. Lock order is persistMu then mu.
type Cache struct {
	log   logrus.FieldLogger
	store storage.Store
	runID string

	// persistMu serializes writes to and reloads from the store.
	persistMu sync.Mutex

	// mu guards result, summary, known and loadErr.
	mu      sync.RWMutex
	result  *report.Suite
	summary Summary
	known   bool
	loadErr error
}

// New creates an empty cache for runID.
func New(log logrus.FieldLogger, store storage.Store, runID string) *Cache {
	return &Cache{
		log: log.WithFields(logrus.Fields{
			"component": "cache",
			"run_id":    runID,
		}),
		store: store,
		runID: runID,
	}
}

// RunID returns the run the cache serves.
func (c *Cache) RunID() string {
	return c.runID
}

// SetResult replaces the cached tree, refreshes the summary and persists
// the tree. The memory update is visible before persistence starts.
func (c *Cache) SetResult(ctx context.Context, s *report.Suite) error {
	if s == nil {
		s = &report.Suite{}
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.result = s
	c.summary = summarize(s)
	c.known = true
	c.loadErr = nil
	c.mu.Unlock()

	if err := c.store.Save(ctx, c.runID, s); err != nil {
		c.log.WithError(err).Error("PersistenceFailure: could not save result")

		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

// GetResult returns the cached tree, loading it from the store on a miss.
// A load failure is logged and yields an empty suite.
func (c *Cache) GetResult(ctx context.Context) *report.Suite {
	c.mu.RLock()
	s := c.result
	c.mu.RUnlock()

	if s != nil {
		return s
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	// A concurrent SetResult or reload may have filled the slot.
	c.mu.RLock()
	s = c.result
	c.mu.RUnlock()

	if s != nil {
		return s
	}

	loaded, loadErr := c.store.Load(ctx, c.runID)
	if loadErr != nil {
		if errors.Is(loadErr, storage.ErrNotFound) {
			c.log.Debug("No stored result")
		} else {
			c.log.WithError(loadErr).Warn("Could not load result")
		}

		loaded = &report.Suite{}
	}

	report.Tally(loaded)

	c.mu.Lock()
	c.result = loaded
	c.summary = summarize(loaded)
	c.known = true
	c.loadErr = loadErr
	c.mu.Unlock()

	return loaded
}

// Evict drops the cached tree. The summary is kept, so counters stay
// cheap; the next GetResult reloads from the store.
func (c *Cache) Evict() {
	c.mu.Lock()
	c.result = nil
	c.mu.Unlock()
}

// LoadErr returns the error of the last load from the store, or nil when
// the tree was loaded or set.
func (c *Cache) LoadErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loadErr
}

// Resident reports whether the tree is held in memory.
func (c *Cache) Resident() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.result != nil
}

// Summary returns the root figures, loading the tree once when they are
// not known yet.
func (c *Cache) Summary(ctx context.Context) Summary {
	c.mu.RLock()
	sum, known := c.summary, c.known
	c.mu.RUnlock()

	if known {
		return sum
	}

	c.GetResult(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.summary
}

func (c *Cache) TotalCount(ctx context.Context) int   { return c.Summary(ctx).Total }
func (c *Cache) PassCount(ctx context.Context) int    { return c.Summary(ctx).Passed }
func (c *Cache) FailCount(ctx context.Context) int    { return c.Summary(ctx).Failed }
func (c *Cache) SkipCount(ctx context.Context) int    { return c.Summary(ctx).Skipped }
func (c *Cache) Duration(ctx context.Context) float64 { return c.Summary(ctx).Duration }
func (c *Cache) IsPassed(ctx context.Context) bool    { return c.Summary(ctx).IsPassed }
