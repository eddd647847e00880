package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem reports a history database on a filesystem where
// SQLite file locking is unreliable.
var ErrNetworkFilesystem = errors.New("network filesystem")

var remoteFS = []string{"9p", "afpfs", "cifs", "fuse.sshfs", "nfs", "smb2", "smbfs", "webdav"}

// CheckLocal fails with ErrNetworkFilesystem when the database at path, or
// the closest directory that already exists above it, is remote.
func CheckLocal(path string) error {
	return checkLocalWith(path, statfsType)
}

func checkLocalWith(path string, fsType func(string) (string, error)) error {
	if path == "" {
		return errors.New("history database path is empty")
	}

	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}

	kind, err := fsType(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isRemote(kind) {
		return fmt.Errorf("history database %q is on %w %q; SQLite needs a local disk. Point history.path at a local file or set history.enabled: false",
			path, ErrNetworkFilesystem, kind)
	}
	return nil
}

func closestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		p = parent
	}
}

func isRemote(kind string) bool {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, fs := range remoteFS {
		if kind == fs {
			return true
		}
	}
	return false
}
