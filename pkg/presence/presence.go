// Package presence lets apps from the same vendor discover whether any of
// them currently holds a login session, without sharing token material.
// Each app announces its session as a marker file in a shared directory,
// and a Watcher keeps a cached answer fresh by watching that directory.
//
// The marker carries no secrets. It exists purely so a sibling app can
// offer "continue as the signed-in user" instead of a cold login screen.
package presence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const markerSuffix = ".session"

// Announce records that the given client currently holds a session. Safe
// to call repeatedly; the marker is simply rewritten.
func Announce(dir, clientID string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create presence dir: %w", err)
	}

	// Timestamp content is for humans poking around, nothing reads it
	stamp := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(markerPath(dir, clientID), stamp, 0o600); err != nil {
		return fmt.Errorf("failed to write presence marker: %w", err)
	}
	return nil
}

// Withdraw removes the client's session marker. Removing a marker that is
// already gone is not an error.
func Withdraw(dir, clientID string) error {
	err := os.Remove(markerPath(dir, clientID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove presence marker: %w", err)
	}
	return nil
}

func markerPath(dir, clientID string) string {
	return filepath.Join(dir, clientID+markerSuffix)
}

// scanDir reports whether any session marker exists in dir. A missing dir
// means nobody announced anything yet.
func scanDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read presence dir: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), markerSuffix) {
			return true, nil
		}
	}
	return false, nil
}
