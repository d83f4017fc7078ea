package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/gherkinreport/pkg/config"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/ethpandaops/gherkinreport/pkg/storage"
)

func ns(v int64) *int64 { return &v }

func sampleSuite() *report.Suite {
	s := &report.Suite{Features: []*report.Feature{{
		URI:  "features/login.feature",
		Meta: report.Meta{Keyword: "Feature", Name: "Login"},
		Scenarios: []*report.Scenario{{
			Meta: report.Meta{Keyword: "Scenario", Name: "good password"},
			Steps: []*report.Step{
				{StepMeta: report.StepMeta{Keyword: "Given ", Name: "a user"},
					Result: report.Result{Status: report.StatusPassed, Duration: ns(131437850)}},
				{StepMeta: report.StepMeta{Keyword: "Then ", Name: "it fails"},
					Result: report.Result{Status: report.StatusFailed}},
			},
		}},
	}}}
	report.Tally(s)

	return s
}

func newLocalStore(t *testing.T, dir string) storage.Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return storage.NewLocalStore(log, dir)
}

func TestLocalStore_SaveLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store := newLocalStore(t, dir)

	require.NoError(t, store.Save(ctx, "run-1", sampleSuite()))
	assert.FileExists(t, filepath.Join(dir, "runs", "run-1", storage.ResultFile))

	got, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.PassCount())
	assert.Equal(t, 1, got.FailCount())
	assert.InDelta(t, 0.13143785, got.Duration(), 1e-9)
	assert.Equal(t, "Login", got.Features[0].Name)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "runs", "run-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStore_SaveReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newLocalStore(t, t.TempDir())

	require.NoError(t, store.Save(ctx, "run-1", sampleSuite()))
	require.NoError(t, store.Save(ctx, "run-1", &report.Suite{}))

	got, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got.Features)
	assert.Equal(t, 0, got.TotalCount())
}

func TestLocalStore_LoadMissing(t *testing.T) {
	t.Parallel()

	_, err := newLocalStore(t, t.TempDir()).Load(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLocalStore_LoadCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runDir := filepath.Join(dir, "runs", "bad")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, storage.ResultFile), []byte("{"), 0o644))

	_, err := newLocalStore(t, dir).Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestLocalStore_ListRunIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns runs with a result file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		store := newLocalStore(t, dir)

		require.NoError(t, store.Save(ctx, "run-bbb", sampleSuite()))
		require.NoError(t, store.Save(ctx, "run-aaa", sampleSuite()))

		// A run directory without a result is not listed.
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "runs", "run-ccc"), 0o755))
		// Neither is a regular file.
		require.NoError(t, os.WriteFile(filepath.Join(dir, "runs", "not-a-dir.txt"), []byte("skip"), 0o644))

		ids, err := store.ListRunIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"run-aaa", "run-bbb"}, ids)
	})

	t.Run("missing runs directory returns nil", func(t *testing.T) {
		t.Parallel()

		ids, err := newLocalStore(t, t.TempDir()).ListRunIDs(ctx)
		require.NoError(t, err)
		assert.Nil(t, ids)
	})
}

func TestValidateRunID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id    string
		valid bool
	}{
		{id: "2024-01-01_abc", valid: true},
		{id: "run.1", valid: true},
		{id: "", valid: false},
		{id: ".", valid: false},
		{id: "..", valid: false},
		{id: "a/b", valid: false},
		{id: `a\b`, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()

			err := storage.ValidateRunID(tt.id)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t, t.TempDir())

	require.Error(t, store.Save(context.Background(), "../escape", sampleSuite()))

	_, err := store.Load(context.Background(), "../escape")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Parallel()

	log := logrus.New()

	_, err := storage.New(log, &config.ResultsConfig{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = storage.New(log, &config.ResultsConfig{Storage: config.StorageConfig{Driver: "s3"}})
	require.Error(t, err)

	_, err = storage.New(log, &config.ResultsConfig{Storage: config.StorageConfig{
		Driver: "s3", S3: &config.S3Config{Bucket: "b"},
	}})
	require.NoError(t, err)

	_, err = storage.New(log, &config.ResultsConfig{Storage: config.StorageConfig{Driver: "gcs"}})
	require.Error(t, err)
}
