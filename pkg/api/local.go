package api

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// localFileServer serves archived run files directly from the results
// directory. Request paths are resolved relative to that root.
type localFileServer struct {
	log  logrus.FieldLogger
	root string
}

// newLocalFileServer creates a new local file server rooted at root.
func newLocalFileServer(log logrus.FieldLogger, root string) *localFileServer {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &localFileServer{
		log:  log.WithField("component", "local-file-server"),
		root: filepath.Clean(root),
	}
}

// ServeFile serves filePath from under the root via http.ServeFile.
// Returns an error when the path is disallowed or is not a regular file.
func (l *localFileServer) ServeFile(
	w http.ResponseWriter,
	r *http.Request,
	filePath string,
) error {
	if !l.isAllowedPath(filePath) {
		return fmt.Errorf("path %q is not allowed", filePath)
	}

	full := filepath.Join(l.root, filepath.FromSlash(filePath))

	// Ensure the resolved path stays under root.
	if !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the results directory", filePath)
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return fmt.Errorf("file %q not found", filePath)
	}

	http.ServeFile(w, r, full)

	return nil
}

// isAllowedPath rejects empty, absolute, unclean, or traversal request paths.
func (l *localFileServer) isAllowedPath(filePath string) bool {
	if filePath == "" {
		return false
	}

	if strings.Contains(filePath, "..") {
		return false
	}

	// Reject paths that start with a slash (absolute paths).
	if filepath.IsAbs(filePath) || strings.HasPrefix(filePath, "/") {
		return false
	}

	// Ensure the path is clean (no double slashes, trailing slashes, etc.).
	return path.Clean(filePath) == filePath
}
