package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/cryochamber/cryod/internal/message"
)

func TestProtocolFilenamePicksClaude(t *testing.T) {
	if got := ProtocolFilename("claude --dangerously-skip-permissions"); got != "CLAUDE.md" {
		t.Fatalf("got %s, want CLAUDE.md", got)
	}
}

func TestProtocolFilenameDefaultsToAgents(t *testing.T) {
	if got := ProtocolFilename("opencode run"); got != "AGENTS.md" {
		t.Fatalf("got %s, want AGENTS.md", got)
	}
}

func TestProtocolFilenameEmptyCommand(t *testing.T) {
	if got := ProtocolFilename(""); got != "AGENTS.md" {
		t.Fatalf("got %s, want AGENTS.md", got)
	}
}

func TestBuildIncludesTaskAndSessionNumber(t *testing.T) {
	out := Build(Input{SessionNumber: 7, Task: "Implement the thing", AgentCommand: "opencode"})
	if !strings.Contains(out, "Session number: 7") {
		t.Fatalf("missing session number: %s", out)
	}
	if !strings.Contains(out, "Implement the thing") {
		t.Fatalf("missing task: %s", out)
	}
	if !strings.Contains(out, "No previous sessions.") {
		t.Fatalf("missing no-history fallback: %s", out)
	}
	if !strings.Contains(out, "AGENTS.md") {
		t.Fatalf("missing protocol filename: %s", out)
	}
}

func TestBuildIncludesPreviousLog(t *testing.T) {
	out := Build(Input{SessionNumber: 2, Task: "t", PreviousLog: "agent did stuff"})
	if !strings.Contains(out, "agent did stuff") {
		t.Fatalf("missing previous log: %s", out)
	}
	if strings.Contains(out, "No previous sessions.") {
		t.Fatalf("should not show no-history fallback: %s", out)
	}
}

func TestBuildIncludesInboxMessages(t *testing.T) {
	msgs := []message.Message{
		{From: "operator", Subject: "hi", Body: "please check X", Timestamp: time.Now()},
	}
	out := Build(Input{SessionNumber: 1, Task: "t", InboxMessages: msgs})
	if !strings.Contains(out, "New Messages (1 unread)") {
		t.Fatalf("missing message count header: %s", out)
	}
	if !strings.Contains(out, "please check X") {
		t.Fatalf("missing message body: %s", out)
	}
}

func TestBuildOmitsMessagesSectionWhenEmpty(t *testing.T) {
	out := Build(Input{SessionNumber: 1, Task: "t"})
	if strings.Contains(out, "New Messages") {
		t.Fatalf("should not include messages section: %s", out)
	}
}
