package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileServer_IsAllowedPath(t *testing.T) {
	srv := &localFileServer{
		log:  logrus.New(),
		root: "/data/results",
	}

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "valid embed path", path: "runs/abc/embed/Login/ok/shot.png", expected: true},
		{name: "valid flat path", path: "notes.txt", expected: true},
		{name: "empty path", path: "", expected: false},
		{name: "path traversal", path: "runs/../../etc/passwd", expected: false},
		{name: "dot dot only", path: "..", expected: false},
		{name: "absolute path", path: "/etc/passwd", expected: false},
		{name: "trailing slash", path: "runs/abc/", expected: false},
		{name: "double slash", path: "runs//abc", expected: false},
		{name: "dot segment", path: "runs/./abc", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, srv.isAllowedPath(tt.path))
		})
	}
}

func TestLocalFileServer_ServeFile(t *testing.T) {
	root := t.TempDir()
	embedDir := filepath.Join(root, "runs", "abc", "embed", "F", "S")
	require.NoError(t, os.MkdirAll(embedDir, 0o755))
	require.NoError(
		t, os.WriteFile(
			filepath.Join(embedDir, "log.txt"),
			[]byte("hello"), 0o644,
		),
	)

	srv := newLocalFileServer(logrus.New(), root)

	t.Run("serves existing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "runs/abc/embed/F/S/log.txt")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "runs/abc/embed/F/S/nope.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("returns error for directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "runs/abc/embed")
		require.Error(t, err)
	})

	t.Run("returns error for traversal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "runs/../../etc/passwd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not allowed")
	})
}
