// Package indexstore keeps a queryable summary of recorded runs in a SQL
// database.
package indexstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/gherkinreport/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for the run index.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context) ([]Run, error)
	ListRunIDs(ctx context.Context) ([]string, error)

	ReplaceFeatures(
		ctx context.Context, runID string, features []*FeatureSummary,
	) error
	ListFeatures(ctx context.Context, runID string) ([]FeatureSummary, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new index Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "indexstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// Each sqlite connection to :memory: is a separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&FeatureSummary{},
	); err != nil {
		return fmt.Errorf("running index migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Index database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertRun inserts a run keyed by run_id, or overwrites the figures of
// an existing one and stamps ReindexedAt.
func (s *store) UpsertRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Run

		err := tx.Where("run_id = ?", run.RunID).First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			run.ID = 0
			run.IndexedAt = now
			run.ReindexedAt = nil

			if err := tx.Create(run).Error; err != nil {
				return fmt.Errorf("inserting run: %w", err)
			}

			return nil
		case err != nil:
			return fmt.Errorf("looking up run: %w", err)
		}

		run.ID = existing.ID
		run.IndexedAt = existing.IndexedAt
		run.ReindexedAt = &now

		if err := tx.Save(run).Error; err != nil {
			return fmt.Errorf("updating run: %w", err)
		}

		return nil
	})
}

// GetRun returns the run with the given ID, or (nil, nil) when it has not
// been indexed.
func (s *store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run

	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting run: %w", err)
	}

	return &run, nil
}

// ListRuns returns all runs, most recently indexed first.
func (s *store) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := s.db.WithContext(ctx).
		Order("indexed_at DESC").
		Order("run_id").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListRunIDs returns just the run IDs.
func (s *store) ListRunIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Order("run_id").
		Pluck("run_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing run ids: %w", err)
	}

	return ids, nil
}

// ReplaceFeatures swaps the feature rows of a run in a single transaction.
func (s *store) ReplaceFeatures(
	ctx context.Context, runID string, features []*FeatureSummary,
) error {
	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).
			Delete(&FeatureSummary{}).Error; err != nil {
			return fmt.Errorf("deleting feature summaries: %w", err)
		}

		if len(features) == 0 {
			return nil
		}

		for _, f := range features {
			f.ID = 0
			f.RunID = runID
		}

		if err := tx.CreateInBatches(features, batchSize).Error; err != nil {
			return fmt.Errorf("inserting feature summaries: %w", err)
		}

		return nil
	})
}

// ListFeatures returns the feature rows of a run in report order.
func (s *store) ListFeatures(
	ctx context.Context, runID string,
) ([]FeatureSummary, error) {
	var features []FeatureSummary
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position").
		Find(&features).Error; err != nil {
		return nil, fmt.Errorf("listing feature summaries: %w", err)
	}

	return features, nil
}
