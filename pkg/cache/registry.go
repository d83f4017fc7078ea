package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/ethpandaops/gherkinreport/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Registry hands out one Cache per run and keeps at most maxResident
// trees in memory, evicting the least recently used. Summaries of evicted
// runs stay available.
type Registry struct {
	log         logrus.FieldLogger
	store       storage.Store
	maxResident int

	mu     sync.Mutex
	caches map[string]*Cache
	lru    *list.List
	elems  map[string]*list.Element
}

// NewRegistry creates a Registry. maxResident <= 0 disables eviction.
func NewRegistry(
	log logrus.FieldLogger, store storage.Store, maxResident int,
) *Registry {
	return &Registry{
		log:         log.WithField("component", "cache-registry"),
		store:       store,
		maxResident: maxResident,
		caches:      make(map[string]*Cache, 16),
		lru:         list.New(),
		elems:       make(map[string]*list.Element, 16),
	}
}

// Store returns the backing store.
func (r *Registry) Store() storage.Store {
	return r.store
}

// Get returns the cache for runID, creating it when needed. It does not
// load anything.
func (r *Registry) Get(runID string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[runID]
	if !ok {
		c = New(r.log, r.store, runID)
		r.caches[runID] = c
	}

	return c
}

// Result returns the tree of runID and marks it as recently used.
func (r *Registry) Result(ctx context.Context, runID string) *report.Suite {
	c := r.Get(runID)
	s := c.GetResult(ctx)
	r.touch(runID)

	return s
}

// SetResult stores the tree of runID and marks it as recently used.
func (r *Registry) SetResult(
	ctx context.Context, runID string, s *report.Suite,
) error {
	c := r.Get(runID)
	err := c.SetResult(ctx, s)
	r.touch(runID)

	return err
}

// Summary returns the root figures of runID. A summary that is already
// known is served without touching the tree.
func (r *Registry) Summary(ctx context.Context, runID string) Summary {
	c := r.Get(runID)
	sum := c.Summary(ctx)

	if c.Resident() {
		r.touch(runID)
	}

	return sum
}

// Drop forgets runID entirely, including its summary.
func (r *Registry) Drop(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.caches, runID)

	if el, ok := r.elems[runID]; ok {
		r.lru.Remove(el)
		delete(r.elems, runID)
	}
}

// Resident returns the number of trees held in memory.
func (r *Registry) Resident() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lru.Len()
}

func (r *Registry) touch(runID string) {
	var evict []*Cache

	r.mu.Lock()

	if el, ok := r.elems[runID]; ok {
		r.lru.MoveToFront(el)
	} else {
		r.elems[runID] = r.lru.PushFront(runID)
	}

	for r.maxResident > 0 && r.lru.Len() > r.maxResident {
		back := r.lru.Back()
		id, _ := back.Value.(string)

		r.lru.Remove(back)
		delete(r.elems, id)

		if c, ok := r.caches[id]; ok {
			evict = append(evict, c)
		}
	}

	r.mu.Unlock()

	for _, c := range evict {
		c.Evict()
		r.log.WithField("run_id", c.RunID()).Debug("Evicted result tree")
	}
}
