package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cryochamber/cryod/internal/agentrunner"
	"github.com/cryochamber/cryod/internal/config"
	"github.com/cryochamber/cryod/internal/eventindex"
	"github.com/cryochamber/cryod/internal/eventlog"
	"github.com/cryochamber/cryod/internal/fallback"
	"github.com/cryochamber/cryod/internal/message"
	"github.com/cryochamber/cryod/internal/providerbundle"
	"github.com/cryochamber/cryod/internal/reporter"
	"github.com/cryochamber/cryod/internal/retry"
	"github.com/cryochamber/cryod/internal/state"
	"github.com/cryochamber/cryod/internal/timeradapter"
)

// Loop owns one supervised directory for the lifetime of a daemon process.
type Loop struct {
	Dir    string
	Logger *log.Logger

	states   *state.Store
	fallback *fallback.Executor
	notifier reporter.Notifier
	index    *eventindex.Index

	timer   timeradapter.Timer
	timerID timeradapter.ID
	selfCmd string
}

// NewLoop returns a Loop for dir, logging with the "[SUPERVISOR]" prefix
// matching this daemon's bracketed-component convention.
func NewLoop(dir string) *Loop {
	l := &Loop{
		Dir:      dir,
		Logger:   log.New(os.Stderr, "[SUPERVISOR] ", log.LstdFlags),
		states:   state.NewStore(dir),
		notifier: reporter.NewNotifier(),
	}
	idx, err := eventindex.Open(dir)
	if err != nil {
		l.Logger.Printf("event index unavailable, sessions will not be indexed: %v", err)
	} else {
		l.index = idx
	}
	return l
}

// EnablePersistentTimer opts this Loop into registering an OS-level backstop
// timer for its next wake, so a scheduled wake still fires after a host
// reboot. Not enabled by default: it shells out to systemctl and writes unit
// files under $HOME/.config/systemd/user, which only cmd/cryod's real daemon
// process should do, never a test run of this package.
func (l *Loop) EnablePersistentTimer() {
	self, err := os.Executable()
	if err != nil {
		l.Logger.Printf("persistent wake timer unavailable, resolve own executable: %v", err)
		return
	}
	t, err := timeradapter.New()
	if err != nil {
		l.Logger.Printf("persistent wake timer unavailable: %v", err)
		return
	}
	l.selfCmd = fmt.Sprintf("%s -dir %s", self, l.Dir)
	l.timer = t
}

// Run drives the session loop until ctx is cancelled or a shutdown signal
// arrives. It loads config and state once per wake, runs at most one agent
// session, applies the retry/rotation policy on failure, and blocks on the
// next wake condition before looping again.
func (l *Loop) Run(ctx context.Context) error {
	waiter, err := newWaiterFor(l.Dir, l.Logger)
	if err != nil {
		return fmt.Errorf("supervisor: start waiter: %w", err)
	}
	defer waiter.Close()
	if l.index != nil {
		defer l.index.Close()
	}

	// A state.next_wake already in the past when the daemon starts (e.g.
	// after the host was powered off across a scheduled wake) is treated
	// as due immediately rather than waiting for the missed timer: the
	// daemon runs the overdue session the moment it is able to.
	first := true

	for {
		cfg, st, err := l.loadConfigAndState()
		if err != nil {
			return err
		}

		due := st.NextWake == nil || !time.Now().Before(*st.NextWake)
		if !first || !due {
			reason := waiter.Wait(ctx, st.NextWake)
			l.Logger.Printf("woke: %s", reason)
			if reason == ReasonShutdown {
				return nil
			}
			if reason == ReasonScheduledWake && st.NextWake != nil && time.Now().Before(*st.NextWake) {
				// maxWait elapsed with the scheduled wake still ahead:
				// reload config and state and keep waiting.
				continue
			}
		}
		first = false

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := l.runOnce(ctx, cfg, st); err != nil {
			l.Logger.Printf("session error: %v", err)
		}

		if err := l.maybeReport(cfg); err != nil {
			l.Logger.Printf("report error: %v", err)
		}
	}
}

func (l *Loop) loadConfigAndState() (config.Config, state.State, error) {
	cfg, err := config.Load(l.Dir)
	if err != nil {
		return config.Config{}, state.State{}, fmt.Errorf("supervisor: load config: %w", err)
	}
	if cfg == nil {
		c := config.Default()
		cfg = &c
	}
	st, err := l.states.Load()
	if err != nil {
		return config.Config{}, state.State{}, fmt.Errorf("supervisor: load state: %w", err)
	}
	config.ApplyOverrides(cfg, st)

	bundle, err := providerbundle.Load(l.Dir)
	if err != nil {
		return config.Config{}, state.State{}, fmt.Errorf("supervisor: load provider bundle: %w", err)
	}
	providerbundle.Merge(cfg, bundle)

	if err := config.Validate(*cfg); err != nil {
		return config.Config{}, state.State{}, fmt.Errorf("supervisor: %w", err)
	}

	return *cfg, st, nil
}

// runOnce executes a single agent session and updates retry/rotation and
// persisted state according to its outcome.
func (l *Loop) runOnce(ctx context.Context, cfg config.Config, st state.State) error {
	retryState := retry.State{
		Attempt:       st.RetryCount,
		MaxRetries:    cfg.MaxRetries,
		ProviderIndex: st.ProviderIndex,
		ProviderCount: uint32(len(cfg.Providers)),
	}

	env := providerEnv(cfg, retryState.ProviderIndex)
	st.SessionNumber++
	st.PID = os.Getpid()

	started := time.Now()
	result, err := runSession(ctx, l.Dir, st.SessionNumber, cfg, st, env, l.Logger)
	if err != nil {
		return err
	}

	st.CmdOverride = result.CmdOverride
	st.PlanNote = result.PlanNote

	l.fallback = fallback.New(cfg.Fallback.MailCommand)
	for _, a := range result.Alerts {
		if ferr := l.fallback.Execute(a); ferr != nil {
			l.Logger.Printf("fallback alert failed: %v", ferr)
		}
	}

	switch {
	case result.Hibernated:
		retryState.Reset()
		st.NextWake = result.NextWake
	default:
		rotatedEarly := false
		if cfg.RotateOn.ShouldRotate(result.Duration) {
			wrapped := retryState.RotateProvider()
			l.Logger.Printf("rotate_on=%s triggered provider rotation after a %s session (wrapped=%v)", cfg.RotateOn, result.Duration, wrapped)
			if wrapped {
				l.fireExhaustionAlert(cfg, result)
			}
			rotatedEarly = true
		} else {
			retryState.RecordFailure()
		}
		if !rotatedEarly && retryState.Exhausted() {
			wrapped := retryState.RotateProvider()
			l.Logger.Printf("retries exhausted, rotating provider (wrapped=%v)", wrapped)
			if wrapped {
				l.fireExhaustionAlert(cfg, result)
			}
		}
		backoff, ok := retryState.NextBackoff()
		if !ok {
			backoff = 60 * time.Second
		}
		next := time.Now().Add(backoff)
		st.NextWake = &next
	}

	st.RetryCount = retryState.Attempt
	st.ProviderIndex = retryState.ProviderIndex

	l.rescheduleWakeTimer(st.NextWake)

	if l.index != nil {
		outcome := eventlog.OutcomeSuccess
		if !result.Hibernated {
			outcome = eventlog.OutcomeFailed
		}
		if result.AgentOutcome == agentrunner.KilledByTimeout {
			outcome = eventlog.OutcomeInterrupted
		}
		if err := l.index.Record(eventlog.SessionSummary{Number: st.SessionNumber, Started: started, Outcome: outcome}); err != nil {
			l.Logger.Printf("failed to update event index: %v", err)
		}
	}

	return l.states.Save(st)
}

// fireExhaustionAlert raises a fallback alert once every configured
// provider has been tried and failed, so a human finds out the agent is
// stuck rather than cycling providers silently forever.
func (l *Loop) fireExhaustionAlert(cfg config.Config, result SessionResult) {
	if cfg.Fallback.MailCommand == "" {
		return
	}
	msg := fmt.Sprintf("every configured provider failed for %s; last exit code %d", filepath.Base(l.Dir), result.ExitCode)
	alert := fallback.NewAlert(fallback.ActionEmail, "root", msg)
	if l.fallback == nil {
		l.fallback = fallback.New(cfg.Fallback.MailCommand)
	}
	if err := l.fallback.Execute(alert); err != nil {
		l.Logger.Printf("exhaustion alert failed: %v", err)
	}
}

// rescheduleWakeTimer registers an OS-level persistent timer as a backstop
// for the next wake, so it still fires after a host reboot even though the
// in-process Waiter is gone. Best-effort: a platform with no Timer
// implementation, or a systemctl failure, only costs the reboot backstop,
// not the daemon's own in-process scheduling.
func (l *Loop) rescheduleWakeTimer(at *time.Time) {
	if l.timer == nil {
		return
	}
	if l.timerID != "" {
		if err := l.timer.Cancel(l.timerID); err != nil {
			l.Logger.Printf("cancel previous wake timer: %v", err)
		}
		l.timerID = ""
	}
	if at == nil {
		return
	}
	id, err := l.timer.ScheduleWake(*at, l.selfCmd, l.Dir)
	if err != nil {
		l.Logger.Printf("schedule persistent wake timer: %v", err)
		return
	}
	l.timerID = id
}

func (l *Loop) maybeReport(cfg config.Config) error {
	st, err := l.states.Load()
	if err != nil {
		return err
	}
	next, ok := reporter.ComputeNextReportTime(cfg.Report.Time, cfg.Report.IntervalHours, st.LastReportTime, time.Now())
	if !ok || time.Now().Before(next) {
		return nil
	}
	since := time.Now().Add(-time.Duration(cfg.Report.IntervalHours) * time.Hour)
	if st.LastReportTime != nil {
		since = *st.LastReportTime
	}
	summary, err := reporter.Generate(eventlog.Path(l.Dir), since)
	if err != nil {
		return err
	}
	if err := l.notifier.Notify(filepath.Base(l.Dir), summary); err != nil {
		return err
	}
	now := time.Now()
	st.LastReportTime = &now
	return l.states.Save(st)
}

func providerEnv(cfg config.Config, index uint32) map[string]string {
	if int(index) >= len(cfg.Providers) {
		return nil
	}
	return cfg.Providers[index].Env
}

func newWaiterFor(dir string, logger *log.Logger) (*Waiter, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	watchInbox := true
	if cfg != nil {
		watchInbox = cfg.WatchInbox
	}
	inboxDir := message.DirsFor(dir).Inbox
	if err := os.MkdirAll(inboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: mkdir inbox: %w", err)
	}
	return NewWaiter(inboxDir, watchInbox, logger)
}
