// Package eventindex maintains a queryable SQLite summary of cryo.log so
// reporting and status commands don't have to rescan a potentially
// years-long text log on every call. The index is purely derived: deleting
// it and letting it rebuild from cryo.log is always safe, and it is never
// consulted for anything the supervisor loop depends on for correctness.
package eventindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cryochamber/cryod/internal/eventlog"
)

// Index wraps a SQLite database recording one row per known session.
type Index struct {
	db *sql.DB
}

// Path returns the index database path for a supervised directory.
func Path(dir string) string {
	return filepath.Join(dir, ".cryo", "index.db")
}

// Open opens (creating if necessary) the index database and ensures its
// schema exists.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(Path(dir)), 0o755); err != nil {
		return nil, fmt.Errorf("eventindex: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", Path(dir))
	if err != nil {
		return nil, fmt.Errorf("eventindex: open: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_number INTEGER PRIMARY KEY,
		started_at     TIMESTAMP NOT NULL,
		outcome        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return fmt.Errorf("eventindex: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func outcomeString(o eventlog.SessionOutcome) string {
	switch o {
	case eventlog.OutcomeSuccess:
		return "success"
	case eventlog.OutcomeFailed:
		return "failed"
	case eventlog.OutcomeInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Record upserts one session summary.
func (idx *Index) Record(s eventlog.SessionSummary) error {
	_, err := idx.db.Exec(
		`INSERT INTO sessions (session_number, started_at, outcome) VALUES (?, ?, ?)
		 ON CONFLICT(session_number) DO UPDATE SET started_at = excluded.started_at, outcome = excluded.outcome`,
		s.Number, s.Started, outcomeString(s.Outcome),
	)
	if err != nil {
		return fmt.Errorf("eventindex: record session %d: %w", s.Number, err)
	}
	return nil
}

// Rebuild drops and repopulates the index from the authoritative cryo.log
// for dir, starting from the Unix epoch so every session is captured.
func (idx *Index) Rebuild(dir string) error {
	if _, err := idx.db.Exec("DELETE FROM sessions"); err != nil {
		return fmt.Errorf("eventindex: clear sessions: %w", err)
	}
	sessions, err := eventlog.ParseSessionsSince(eventlog.Path(dir), time.Unix(0, 0))
	if err != nil {
		return fmt.Errorf("eventindex: rebuild: %w", err)
	}
	for _, s := range sessions {
		if err := idx.Record(s); err != nil {
			return err
		}
	}
	return nil
}

// CountSince returns the total and failed session counts since t, read
// from the index rather than rescanning cryo.log.
func (idx *Index) CountSince(t time.Time) (total, failed int, err error) {
	row := idx.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE started_at >= ?`, t)
	if err = row.Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("eventindex: count total: %w", err)
	}
	row = idx.db.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE started_at >= ? AND outcome IN ('failed', 'interrupted')`, t,
	)
	if err = row.Scan(&failed); err != nil {
		return 0, 0, fmt.Errorf("eventindex: count failed: %w", err)
	}
	return total, failed, nil
}
