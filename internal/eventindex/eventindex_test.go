package eventindex

import (
	"testing"
	"time"

	"github.com/cryochamber/cryod/internal/eventlog"
)

func TestRecordAndCountSince(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []eventlog.SessionSummary{
		{Number: 1, Started: base, Outcome: eventlog.OutcomeSuccess},
		{Number: 2, Started: base.Add(time.Hour), Outcome: eventlog.OutcomeFailed},
		{Number: 3, Started: base.Add(2 * time.Hour), Outcome: eventlog.OutcomeInterrupted},
	}
	for _, s := range sessions {
		if err := idx.Record(s); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	total, failed, err := idx.CountSince(base)
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if failed != 2 {
		t.Fatalf("failed = %d, want 2", failed)
	}
}

func TestRecordUpsertsOnConflict(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := idx.Record(eventlog.SessionSummary{Number: 1, Started: ts, Outcome: eventlog.OutcomeFailed}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Record(eventlog.SessionSummary{Number: 1, Started: ts, Outcome: eventlog.OutcomeSuccess}); err != nil {
		t.Fatal(err)
	}

	total, failed, err := idx.CountSince(ts)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || failed != 0 {
		t.Fatalf("expected upserted success row, got total=%d failed=%d", total, failed)
	}
}

func TestRebuildFromLog(t *testing.T) {
	dir := t.TempDir()
	l, err := eventlog.Begin(dir, 1, "t", "agent", 0)
	if err != nil {
		t.Fatal(err)
	}
	l.LogEvent("agent started")
	l.Finish("session complete")

	idx, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.Rebuild(dir); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	total, _, err := idx.CountSince(time.Unix(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
}
