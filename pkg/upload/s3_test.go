package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/gherkinreport/pkg/config"
)

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		runID  string
		want   string
	}{
		{
			name:  "default prefix",
			runID: "nightly-42",
			want:  "runs/nightly-42",
		},
		{
			name:   "custom prefix",
			prefix: "my-project/reports",
			runID:  "nightly-42",
			want:   "my-project/reports/runs/nightly-42",
		},
		{
			name:   "slashes trimmed",
			prefix: "/my-prefix/",
			runID:  "run123",
			want:   "my-prefix/runs/run123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3UploadConfig{S3Config: config.S3Config{Prefix: tt.prefix}},
			}
			got := u.resolvePrefix(tt.runID)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{
			name:       "json file",
			path:       "runs/a/gherkin-result.json",
			wantPrefix: "application/json",
		},
		{
			name:       "no extension",
			path:       "runs/a/embed/F/S/blob",
			wantPrefix: "application/octet-stream",
		},
		{
			name:       "png file",
			path:       "runs/a/embed/F/S/shot.png",
			wantPrefix: "image/png",
		},
		{
			name:       "txt file",
			path:       "runs/a/embed/F/S/out.txt",
			wantPrefix: "text/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectContentType(tt.path)
			assert.Contains(t, got, tt.wantPrefix)
		})
	}
}

// recordingS3 accepts path-style PutObject requests and records the keys
// and content types it saw.
type recordingS3 struct {
	mu    sync.Mutex
	puts  map[string]string
	limit bool
}

func (f *recordingS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method != http.MethodPut || f.limit {
		w.WriteHeader(http.StatusForbidden)

		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/reports/")
	f.puts[key] = r.Header.Get("Content-Type")

	w.WriteHeader(http.StatusOK)
}

func newTestUploader(t *testing.T, fake *recordingS3) Uploader {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	u, err := NewS3Uploader(log, &config.S3UploadConfig{
		Enabled: true,
		S3Config: config.S3Config{
			EndpointURL:     srv.URL,
			Bucket:          "reports",
			Prefix:          "ci",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			ForcePathStyle:  true,
		},
	})
	require.NoError(t, err)

	return u
}

func TestS3Uploader_Upload(t *testing.T) {
	fake := &recordingS3{puts: make(map[string]string)}
	u := newTestUploader(t, fake)

	runDir := t.TempDir()
	embed := filepath.Join(runDir, "embed", "Login", "ok")
	require.NoError(t, os.MkdirAll(embed, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "gherkin-result.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, ".gherkin-result.json.123"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(embed, "shot.png"), []byte("png"), 0o644))

	require.NoError(t, u.Preflight(context.Background()))

	n, err := u.Upload(context.Background(), "run-1", runDir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.Contains(t, fake.puts, writeTestKey)
	assert.Contains(t, fake.puts["ci/runs/run-1/gherkin-result.json"], "application/json")
	assert.Equal(t, "image/png", fake.puts["ci/runs/run-1/embed/Login/ok/shot.png"])
	assert.NotContains(t, fake.puts, "ci/runs/run-1/.gherkin-result.json.123")
}

func TestS3Uploader_Errors(t *testing.T) {
	_, err := NewS3Uploader(logrus.New(), &config.S3UploadConfig{})
	require.Error(t, err)

	fake := &recordingS3{puts: make(map[string]string), limit: true}
	u := newTestUploader(t, fake)

	require.Error(t, u.Preflight(context.Background()))

	_, err = u.Upload(context.Background(), "../escape", t.TempDir())
	require.Error(t, err)

	runDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "a.txt"), []byte("a"), 0o644))

	_, err = u.Upload(context.Background(), "run-1", runDir)
	require.Error(t, err)
}
