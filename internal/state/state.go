// Package state persists the daemon's session bookkeeping to timer.json.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cryochamber/cryod/internal/atomicfile"
)

// State is the on-disk session record for one supervised directory.
type State struct {
	SessionNumber              uint32     `json:"session_number"`
	PID                        int        `json:"pid,omitempty"`
	RetryCount                 uint32     `json:"retry_count"`
	ProviderIndex              uint32     `json:"provider_index"`
	AgentOverride              *string    `json:"agent_override,omitempty"`
	MaxRetriesOverride         *uint32    `json:"max_retries_override,omitempty"`
	MaxSessionDurationOverride *uint64    `json:"max_session_duration_override,omitempty"`
	NextWake                   *time.Time `json:"next_wake,omitempty"`
	LastReportTime             *time.Time `json:"last_report_time,omitempty"`

	// CmdOverride and PlanNote are the cmd-override and plan_note recorded
	// by the previous session's control traffic, consulted by the next
	// session's task selection in priority order before falling back to
	// "Continue the plan". Cleared (not carried forward) whenever a session
	// ends without recording one, since only the *previous* session's
	// traffic is consulted.
	CmdOverride *string `json:"cmd_override,omitempty"`
	PlanNote    *string `json:"plan_note,omitempty"`

	// UpdatedAt is stamped on every Save for CLI status surfaces. It does
	// not participate in any invariant and is not read back by the
	// supervisor loop.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Path returns the timer.json path, a top-level sibling of cryo.toml and
// plan.md in a supervised directory.
func Path(dir string) string {
	return filepath.Join(dir, "timer.json")
}

// Store guards concurrent access to one State file with an in-process
// RWMutex.
type Store struct {
	mu   sync.RWMutex
	path string
}

// NewStore returns a Store bound to the timer.json file under dir.
func NewStore(dir string) *Store {
	return &Store{path: Path(dir)}
}

// Load reads the state file. A missing or empty file is not an error: it
// reports a zero-value State, matching the original daemon's treatment of
// "no prior session" as the default state rather than a failure.
func (s *Store) Load() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := atomicfile.ReadOrEmpty(s.path)
	if err != nil {
		return State{}, fmt.Errorf("state: load %s: %w", s.path, err)
	}
	if data == nil {
		return State{}, nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	return st, nil
}

// Save atomically writes st to the state file, creating the supervised
// directory if needed.
func (s *Store) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.UpdatedAt = time.Now()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("state: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if err := atomicfile.Write(s.path, data, 0o644); err != nil {
		return fmt.Errorf("state: save %s: %w", s.path, err)
	}
	return nil
}

// IsLocked reports whether pid is a live process, probing with a
// zero-signal kill. EPERM means the process exists but is owned by
// someone else, which still counts as alive.
func IsLocked(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
