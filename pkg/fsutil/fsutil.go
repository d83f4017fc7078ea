// Package fsutil adjusts ownership of recorded run files.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Owner holds a parsed UID/GID pair.
type Owner struct {
	UID int
	GID int
}

// ParseOwner parses a "UID:GID" string. Returns nil if empty.
func ParseOwner(owner string) (*Owner, error) {
	if owner == "" {
		return nil, nil
	}

	uidStr, gidStr, ok := strings.Cut(owner, ":")
	if !ok || strings.Contains(gidStr, ":") {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil || uid < 0 {
		return nil, fmt.Errorf("invalid UID %q", uidStr)
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil || gid < 0 {
		return nil, fmt.Errorf("invalid GID %q", gidStr)
	}

	return &Owner{UID: uid, GID: gid}, nil
}

// ChownTree sets the ownership of root and everything below it. A nil
// owner is a no-op. Symlinks are changed themselves, not followed. It
// returns the number of entries changed.
func ChownTree(root string, owner *Owner) (int, error) {
	if owner == nil {
		return 0, nil
	}

	var n int

	err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := os.Lchown(path, owner.UID, owner.GID); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}

		n++

		return nil
	})

	return n, err
}
