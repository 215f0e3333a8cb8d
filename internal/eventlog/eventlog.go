// Package eventlog appends session-framed text records to cryo.log.
package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	beginMarkerPrefix = "--- CRYO SESSION"
	endMarker         = "--- CRYO END ---"
	interruptedMarker = "--- CRYO INTERRUPTED ---"
)

// SessionOutcome classifies how a session ended, used by the reporter to
// count failures.
type SessionOutcome int

const (
	OutcomeUnknown SessionOutcome = iota
	OutcomeSuccess
	OutcomeFailed
	OutcomeInterrupted
)

// Path returns the cryo.log path, a top-level sibling of cryo.toml and
// plan.md in a supervised directory.
func Path(dir string) string {
	return filepath.Join(dir, "cryo.log")
}

// Logger appends framed events to one session in cryo.log. Go has no
// destructors, so callers must defer Close immediately after Begin
// succeeds: Close writes the interrupted marker unless Finish already ran,
// standing in for the guaranteed-release guarantee a Drop impl would give
// in a language that has one.
type Logger struct {
	mu       sync.Mutex
	f        *os.File
	finished bool
}

// Begin opens cryo.log in append mode and writes the session header.
func Begin(dir string, sessionNumber uint32, task, agent string, inboxCount int) (*Logger, error) {
	path := Path(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	l := &Logger{f: f}
	now := time.Now().Format(time.RFC3339)
	lines := []string{
		fmt.Sprintf("%s %d | %s ---", beginMarkerPrefix, sessionNumber, now),
		fmt.Sprintf("task: %s", task),
		fmt.Sprintf("agent: %s", agent),
		fmt.Sprintf("inbox: %d message(s)", inboxCount),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(l.f, line); err != nil {
			f.Close()
			return nil, fmt.Errorf("eventlog: write header: %w", err)
		}
	}
	return l, nil
}

// LogEvent appends one timestamped line.
func (l *Logger) LogEvent(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	if _, err := fmt.Fprintf(l.f, "[%s] %s\n", ts, text); err != nil {
		return fmt.Errorf("eventlog: write event: %w", err)
	}
	return l.f.Sync()
}

// Finish writes the session-end marker with a summary and closes the file.
// It is idempotent: calling Finish again, or letting Close run afterward,
// does nothing.
func (l *Logger) Finish(summary string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished {
		return nil
	}
	if summary != "" {
		if _, err := fmt.Fprintf(l.f, "summary: %s\n", summary); err != nil {
			return fmt.Errorf("eventlog: write summary: %w", err)
		}
	}
	if _, err := fmt.Fprintln(l.f, endMarker); err != nil {
		return fmt.Errorf("eventlog: write end marker: %w", err)
	}
	l.finished = true
	return l.f.Close()
}

// Close releases the log file, writing an interrupted marker first if
// Finish was never called. Safe to call multiple times.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished {
		return nil
	}
	l.finished = true
	if _, err := fmt.Fprintln(l.f, interruptedMarker); err != nil {
		l.f.Close()
		return fmt.Errorf("eventlog: write interrupted marker: %w", err)
	}
	return l.f.Close()
}

// SessionSummary describes one parsed session for reporting purposes.
type SessionSummary struct {
	Number  uint32
	Started time.Time
	Outcome SessionOutcome
}

// ParseSessionsSince scans cryo.log for sessions whose header timestamp is
// at or after since, returning one summary per complete or interrupted
// session found.
func ParseSessionsSince(path string, since time.Time) ([]SessionSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	defer f.Close()

	var (
		summaries []SessionSummary
		cur       *SessionSummary
	)
	flush := func() {
		if cur == nil {
			return
		}
		if !cur.Started.Before(since) {
			summaries = append(summaries, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, beginMarkerPrefix):
			flush()
			var num uint32
			var ts string
			fmt.Sscanf(line, beginMarkerPrefix+" %d | %s", &num, &ts)
			started, _ := time.Parse(time.RFC3339, strings.TrimSuffix(ts, " ---"))
			cur = &SessionSummary{Number: num, Started: started, Outcome: OutcomeSuccess}
		case line == endMarker:
			// session ended cleanly; outcome may still be downgraded below
		case line == interruptedMarker:
			if cur != nil {
				cur.Outcome = OutcomeInterrupted
			}
		case strings.HasPrefix(line, "summary:"):
			if cur != nil && isFailureSummary(line) {
				cur.Outcome = OutcomeFailed
			}
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: scan %s: %w", path, err)
	}
	return summaries, nil
}

// ReadLatestSession returns the raw text of the most recent session frame
// in cryo.log (from its "--- CRYO SESSION" header through its end or
// interrupted marker, inclusive), for use as prompt history. ok is false
// if the log doesn't exist or has no session yet.
func ReadLatestSession(path string) (text string, ok bool, err error) {
	f, ferr := os.Open(path)
	if ferr != nil {
		if os.IsNotExist(ferr) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("eventlog: open %s: %w", path, ferr)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lastStart int = -1
		lines     []string
	)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if strings.HasPrefix(lines[len(lines)-1], beginMarkerPrefix) {
			lastStart = len(lines) - 1
		}
	}
	if err := sc.Err(); err != nil {
		return "", false, fmt.Errorf("eventlog: scan %s: %w", path, err)
	}
	if lastStart < 0 {
		return "", false, nil
	}
	end := len(lines)
	for i := lastStart; i < len(lines); i++ {
		if lines[i] == endMarker || lines[i] == interruptedMarker {
			end = i + 1
			break
		}
	}
	return strings.Join(lines[lastStart:end], "\n"), true, nil
}

func isFailureSummary(summaryLine string) bool {
	lower := strings.ToLower(summaryLine)
	return strings.Contains(lower, "fail") || strings.Contains(lower, "without hibernate") || strings.Contains(lower, "crash")
}
