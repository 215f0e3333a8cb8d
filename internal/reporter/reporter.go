// Package reporter computes and delivers the periodic session-health
// summary.
package reporter

import (
	"fmt"
	"time"

	"github.com/cryochamber/cryod/internal/eventlog"
)

// Summary aggregates sessions over a time window.
type Summary struct {
	TotalSessions  int
	FailedSessions int
	PeriodHours    uint64
}

// Generate scans cryo.log for sessions since the given timestamp.
func Generate(logPath string, since time.Time) (Summary, error) {
	sessions, err := eventlog.ParseSessionsSince(logPath, since)
	if err != nil {
		return Summary{}, fmt.Errorf("reporter: generate: %w", err)
	}
	failed := 0
	for _, s := range sessions {
		if s.Outcome == eventlog.OutcomeFailed || s.Outcome == eventlog.OutcomeInterrupted {
			failed++
		}
	}
	hours := uint64(time.Since(since).Hours())
	return Summary{TotalSessions: len(sessions), FailedSessions: failed, PeriodHours: hours}, nil
}

// PeriodLabel renders hours as "Nh", "Nd", or "Nw" depending on magnitude.
func (s Summary) PeriodLabel() string {
	switch {
	case s.PeriodHours <= 23:
		return fmt.Sprintf("%dh", s.PeriodHours)
	case s.PeriodHours <= 167:
		return fmt.Sprintf("%dd", s.PeriodHours/24)
	default:
		return fmt.Sprintf("%dw", s.PeriodHours/168)
	}
}

// Body renders the notification body text for s.
func (s Summary) Body() string {
	return fmt.Sprintf("Last %s: %d sessions, %d failed", s.PeriodLabel(), s.TotalSessions, s.FailedSessions)
}

// ComputeNextReportTime returns the next wall-clock-aligned report time,
// or (zero, false) if reporting is disabled (intervalHours == 0) or
// reportTime doesn't parse as "HH:MM". When lastReport is non-nil, the
// result additionally honors "at least intervalHours since lastReport",
// advancing by whole intervals as needed so a late report (e.g. after the
// machine was suspended) doesn't drift off the wall-clock schedule.
func ComputeNextReportTime(reportTime string, intervalHours uint64, lastReport *time.Time, now time.Time) (time.Time, bool) {
	if intervalHours == 0 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("15:04", reportTime, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	interval := time.Duration(intervalHours) * time.Hour

	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(interval)
	}

	if lastReport != nil {
		minNext := lastReport.Add(interval)
		for next.Before(minNext) {
			next = next.Add(interval)
		}
	}
	return next, true
}
