package supervisor

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/cryochamber/cryod/internal/agentrunner"
	"github.com/cryochamber/cryod/internal/config"
	"github.com/cryochamber/cryod/internal/controlsocket"
	"github.com/cryochamber/cryod/internal/eventlog"
	"github.com/cryochamber/cryod/internal/fallback"
	"github.com/cryochamber/cryod/internal/message"
	"github.com/cryochamber/cryod/internal/prompt"
	"github.com/cryochamber/cryod/internal/state"
)

const wakeTimeLayout = "2006-01-02T15:04:05"

const defaultTask = "Continue the plan"

// cmdMarkerRe and planMarkerRe pick a cmd-override or plan_note out of a
// note's free-form text, matching the [CRYO:CMD ...]/[CRYO:PLAN ...]
// convention an agent may embed in what it sends to `cryo-agent note`. Text
// with neither marker is treated as a plain plan_note in its entirety.
var (
	cmdMarkerRe  = regexp.MustCompile(`\[CRYO:CMD\s+(.*)\]`)
	planMarkerRe = regexp.MustCompile(`\[CRYO:PLAN\s+(.*)`)
)

// SessionResult is what one agent invocation decided, gathered from its
// control-socket traffic and its own process exit.
type SessionResult struct {
	Hibernated bool
	Complete   bool
	NextWake   *time.Time
	ExitCode   int
	Summary    string
	Notes      []string
	Replies    []string
	Alerts     []fallback.Alert

	// Duration is the agent's wall-clock runtime, consulted by the
	// supervisor loop against rotate_on=quick-exit's threshold.
	Duration time.Duration

	// CmdOverride and PlanNote are this session's recorded next-task hints,
	// to be persisted into state for the following session's readTask.
	CmdOverride *string
	PlanNote    *string

	AgentOutcome agentrunner.Outcome
	AgentErr     error
}

// runSession spawns the agent once, logs its session, and interprets its
// control-socket requests. prevState carries the cmd-override/plan_note
// recorded by the previous session's control traffic, used to select this
// session's task.
func runSession(ctx context.Context, dir string, sessionNumber uint32, cfg config.Config, prevState state.State, providerEnv map[string]string, logger *log.Logger) (SessionResult, error) {
	if err := message.EnsureDirs(dir); err != nil {
		return SessionResult{}, fmt.Errorf("supervisor: ensure message dirs: %w", err)
	}

	var inboxErrs []string
	inbox, err := message.ReadInbox(dir, func(path string, err error) {
		inboxErrs = append(inboxErrs, fmt.Sprintf("%s: %v", path, err))
	})
	if err != nil {
		return SessionResult{}, fmt.Errorf("supervisor: read inbox: %w", err)
	}
	for _, e := range inboxErrs {
		logger.Printf("skipping malformed inbox message: %s", e)
	}

	prevLog, _, err := eventlog.ReadLatestSession(eventlog.Path(dir))
	if err != nil {
		return SessionResult{}, fmt.Errorf("supervisor: read previous session: %w", err)
	}

	task := readTask(prevState)

	promptText := prompt.Build(prompt.Input{
		SessionNumber: sessionNumber,
		Task:          task,
		PreviousLog:   prevLog,
		InboxMessages: inbox,
		AgentCommand:  cfg.Agent,
	})

	elog, err := eventlog.Begin(dir, sessionNumber, task, cfg.Agent, len(inbox))
	if err != nil {
		return SessionResult{}, fmt.Errorf("supervisor: begin event log: %w", err)
	}
	defer elog.Close()

	srv, err := controlsocket.Bind(dir)
	if err != nil {
		elog.LogEvent(fmt.Sprintf("failed to bind control socket: %v", err))
		return SessionResult{}, fmt.Errorf("supervisor: bind control socket: %w", err)
	}
	defer srv.Close()

	result := SessionResult{}
	sessionDone := make(chan struct{})
	go acceptControlRequests(srv, elog, &result, sessionDone)

	maxDuration := time.Duration(cfg.MaxSessionDuration) * time.Second
	runner := agentrunner.New()
	started := time.Now()
	runRes := runner.Run(ctx, cfg.Agent, promptText, providerEnv, maxDuration, func(line string) {
		elog.LogEvent(line)
	})
	result.Duration = time.Since(started)
	close(sessionDone)

	result.AgentOutcome = runRes.Outcome
	result.AgentErr = runRes.Err
	result.ExitCode = runRes.ExitCode

	switch runRes.Outcome {
	case agentrunner.Exited:
		elog.LogEvent(fmt.Sprintf("agent exited (code %d)", runRes.ExitCode))
	case agentrunner.KilledByTimeout:
		elog.LogEvent("agent killed after exceeding max session duration")
	case agentrunner.SpawnFailed:
		elog.LogEvent(fmt.Sprintf("agent failed to spawn: %v", runRes.Err))
	}

	summary := result.Summary
	if !result.Hibernated {
		summary = "agent exited without hibernate"
	}
	if err := elog.Finish(summary); err != nil {
		return result, fmt.Errorf("supervisor: finish event log: %w", err)
	}

	if result.Hibernated {
		if _, err := message.Archive(dir); err != nil {
			logger.Printf("failed to archive inbox: %v", err)
		}
	}

	return result, nil
}

// acceptControlRequests services the control socket for the duration of
// one session, recording every hibernate/note/reply/alert it sees into
// result. It stops once sessionDone closes.
func acceptControlRequests(srv *controlsocket.Server, elog *eventlog.Logger, result *SessionResult, sessionDone <-chan struct{}) {
	for {
		select {
		case <-sessionDone:
			return
		default:
		}

		req, conn, err := srv.AcceptOne(200 * time.Millisecond)
		if err != nil {
			if conn != nil {
				controlsocket.Reply(conn, controlsocket.Response{OK: false, Message: err.Error()})
			}
			continue
		}
		if req == nil {
			continue
		}
		ok, msg := handleRequest(*req, elog, result)
		if conn != nil {
			controlsocket.Reply(conn, controlsocket.Response{OK: ok, Message: msg})
		}
	}
}

// handleRequest applies one control-socket request to result, reporting
// whether the request was accepted. A hibernate with neither wake nor
// complete set, or with a wake string that fails to parse, is rejected
// without mutating result: the session later classifies as if the agent
// crashed without hibernating.
func handleRequest(req controlsocket.Request, elog *eventlog.Logger, result *SessionResult) (ok bool, replyMessage string) {
	switch req.Cmd {
	case controlsocket.CmdHibernate:
		if !req.Complete && req.Wake == "" {
			elog.LogEvent("hibernate rejected: neither wake nor complete set")
			return false, "either wake or complete is required"
		}
		var nextWake *time.Time
		if req.Wake != "" {
			t, err := time.ParseInLocation(wakeTimeLayout, req.Wake, time.Local)
			if err != nil {
				// Also accept minute precision, the form `make time` prints.
				if tm, errMin := time.ParseInLocation("2006-01-02T15:04", req.Wake, time.Local); errMin == nil {
					t, err = tm, nil
				}
			}
			if err != nil {
				elog.LogEvent(fmt.Sprintf("hibernate rejected: invalid wake time %q", req.Wake))
				return false, fmt.Sprintf("invalid wake time: %v", err)
			}
			nextWake = &t
		}
		result.Hibernated = true
		result.Complete = req.Complete
		result.Summary = req.Summary
		result.NextWake = nextWake
		elog.LogEvent(fmt.Sprintf("hibernate: wake=%s, complete=%v, exit=%d", req.Wake, req.Complete, req.ExitCode))
		return true, ""
	case controlsocket.CmdNote:
		result.Notes = append(result.Notes, req.Text)
		cmdOverride, planNote := parseNoteMarkers(req.Text)
		if cmdOverride != nil {
			result.CmdOverride = cmdOverride
		}
		if planNote != nil {
			result.PlanNote = planNote
		} else if cmdOverride == nil {
			text := req.Text
			result.PlanNote = &text
		}
		elog.LogEvent(fmt.Sprintf("note: %s", req.Text))
		return true, ""
	case controlsocket.CmdReply:
		result.Replies = append(result.Replies, req.Text)
		elog.LogEvent(fmt.Sprintf("reply: %s", req.Text))
		return true, ""
	case controlsocket.CmdAlert:
		alert := fallback.NewAlert(req.Action, req.Target, req.Message)
		result.Alerts = append(result.Alerts, alert)
		elog.LogEvent(fmt.Sprintf("alert %s: action=%s target=%s", alert.ID, req.Action, req.Target))
		return true, ""
	default:
		elog.LogEvent(fmt.Sprintf("unknown control command: %q", req.Cmd))
		return false, fmt.Sprintf("unknown command: %q", req.Cmd)
	}
}

// parseNoteMarkers picks a [CRYO:CMD ...] cmd-override and/or [CRYO:PLAN
// ...] plan_note out of a note's text, the same convention an agent may
// print inline. Text with neither marker is left to the caller to treat as
// a plain plan_note.
func parseNoteMarkers(text string) (cmdOverride, planNote *string) {
	for _, line := range strings.Split(text, "\n") {
		if m := cmdMarkerRe.FindStringSubmatch(line); m != nil {
			v := strings.TrimSpace(m[1])
			cmdOverride = &v
		}
		if m := planMarkerRe.FindStringSubmatch(line); m != nil {
			v := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[1]), "]"))
			planNote = &v
		}
	}
	return cmdOverride, planNote
}

// readTask selects the next session's task text: a cmd-override recorded
// by the previous session's control traffic takes priority, then a
// plan_note from that same traffic, then the literal fallback telling the
// agent to keep working from its plan file.
func readTask(prevState state.State) string {
	if prevState.CmdOverride != nil {
		if t := strings.TrimSpace(*prevState.CmdOverride); t != "" {
			return t
		}
	}
	if prevState.PlanNote != nil {
		if t := strings.TrimSpace(*prevState.PlanNote); t != "" {
			return t
		}
	}
	return defaultTask
}
