// Package api serves recorded runs over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/gherkinreport/pkg/cache"
	"github.com/ethpandaops/gherkinreport/pkg/config"
	"github.com/ethpandaops/gherkinreport/pkg/indexer"
	"github.com/ethpandaops/gherkinreport/pkg/indexstore"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

// Options carries the non-API settings the server depends on.
type Options struct {
	// ResultsDir is the local directory holding archived attachments.
	ResultsDir string
	// FailOnEmpty grades empty runs as failures when indexing.
	FailOnEmpty bool
}

type server struct {
	log         logrus.FieldLogger
	cfg         *config.APIConfig
	opts        Options
	registry    *cache.Registry
	localServer *localFileServer
	metrics     *metrics
	indexStore  indexstore.Store
	indexer     indexer.Indexer
	httpServer  *http.Server
	wg          sync.WaitGroup
	done        chan struct{}
	stopOnce    sync.Once
}

// NewServer creates a new API server reading trees through registry.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	opts Options,
	registry *cache.Registry,
) Server {
	return newServer(log, cfg, opts, registry)
}

func newServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	opts Options,
	registry *cache.Registry,
) *server {
	log = log.WithField("component", "api")

	return &server{
		log:         log,
		cfg:         cfg,
		opts:        opts,
		registry:    registry,
		localServer: newLocalFileServer(log, opts.ResultsDir),
		metrics:     newMetrics(registry),
		done:        make(chan struct{}),
	}
}

// Start prepares indexing when enabled and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// The index store must exist before the router is built so that the
	// run listing is served from it, but the indexer itself only starts
	// once the HTTP server is listening.
	if s.cfg.Indexing != nil && s.cfg.Indexing.Enabled {
		if err := s.prepareIndexing(ctx); err != nil {
			return fmt.Errorf("preparing indexing: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	if s.indexer != nil {
		if err := s.indexer.Start(ctx); err != nil {
			return fmt.Errorf("starting indexer: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and the indexing service.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.indexer != nil {
		if err := s.indexer.Stop(); err != nil {
			s.log.WithError(err).Warn("Indexer stop error")
		}
	}

	if s.indexStore != nil {
		if err := s.indexStore.Stop(); err != nil {
			return fmt.Errorf("stopping index store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// prepareIndexing opens the index store and creates the indexer without
// starting it.
func (s *server) prepareIndexing(ctx context.Context) error {
	s.indexStore = indexstore.NewStore(s.log, &s.cfg.Indexing.Database)

	if err := s.indexStore.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	s.indexer = indexer.NewIndexer(
		s.log,
		s.indexStore,
		s.registry.Store(),
		s.cfg.Indexing.IntervalDuration(),
		s.cfg.Indexing.Concurrency,
		s.opts.FailOnEmpty,
	)

	s.log.Info("Indexing service enabled")

	return nil
}
