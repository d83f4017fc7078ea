// Package upload pushes recorded run directories to remote storage.
package upload

import "context"

// Uploader uploads a local run directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload uploads all files in runDir under {prefix}/runs/{runID}/ and
	// returns the number of files written.
	Upload(ctx context.Context, runID, runDir string) (int, error)
}
