// Package registry tracks running cryochamber daemons system-wide so the
// cryo CLI can find and list them without knowing each one's working
// directory in advance.
package registry

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cryochamber/cryod/internal/atomicfile"
	"github.com/cryochamber/cryod/internal/state"
)

// Entry is one registered daemon.
type Entry struct {
	PID int    `json:"pid"`
	Dir string `json:"dir"`
}

// Dir returns the registry directory: $XDG_RUNTIME_DIR/cryo if set, else
// $HOME/.cryo/daemons.
func Dir() (string, error) {
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		return filepath.Join(rt, "cryo"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("registry: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".cryo", "daemons"), nil
}

// entryFilename derives a stable 16-hex-digit filename from the absolute
// working directory, so re-registering the same directory overwrites the
// same entry rather than accumulating stale copies.
func entryFilename(absDir string) string {
	sum := sha256.Sum256([]byte(absDir))
	return fmt.Sprintf("%x.json", sum[:8])
}

// Register records that pid is supervising dir.
func Register(pid int, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("registry: resolve abs path: %w", err)
	}
	regDir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(regDir, 0o755); err != nil {
		return fmt.Errorf("registry: mkdir %s: %w", regDir, err)
	}
	data, err := json.Marshal(Entry{PID: pid, Dir: absDir})
	if err != nil {
		return fmt.Errorf("registry: marshal entry: %w", err)
	}
	path := filepath.Join(regDir, entryFilename(absDir))
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: write entry: %w", err)
	}
	return nil
}

// Unregister removes dir's entry, if any.
func Unregister(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("registry: resolve abs path: %w", err)
	}
	regDir, err := Dir()
	if err != nil {
		return err
	}
	path := filepath.Join(regDir, entryFilename(absDir))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("registry: remove entry: %w", err)
	}
	return nil
}

// List returns every registered daemon still alive, removing dead entries
// from disk as it finds them.
func List() ([]Entry, error) {
	regDir, err := Dir()
	if err != nil {
		return nil, err
	}
	files, err := os.ReadDir(regDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: read dir %s: %w", regDir, err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(regDir, f.Name())
		data, err := atomicfile.ReadOrEmpty(path)
		if err != nil || data == nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			os.Remove(path)
			continue
		}
		if !state.IsLocked(e.PID) {
			os.Remove(path)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
