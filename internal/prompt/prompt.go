// Package prompt builds the text handed to the agent process on each
// invocation.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/cryochamber/cryod/internal/message"
)

// Input collects everything the prompt needs to describe one session.
type Input struct {
	SessionNumber uint32
	Task          string
	PreviousLog   string // empty means no previous session
	InboxMessages []message.Message
	AgentCommand  string // used to pick the CLAUDE.md/AGENTS.md wording
}

// ProtocolFilename returns "CLAUDE.md" when agentCmd's first token contains
// "claude" (case-insensitively), else "AGENTS.md".
func ProtocolFilename(agentCmd string) string {
	first := strings.Fields(agentCmd)
	if len(first) == 0 {
		return "AGENTS.md"
	}
	if strings.Contains(strings.ToLower(first[0]), "claude") {
		return "CLAUDE.md"
	}
	return "AGENTS.md"
}

// Build renders the full prompt text for one agent invocation.
func Build(in Input) string {
	now := time.Now().Format("2006-01-02T15:04:05")
	protocolFile := ProtocolFilename(in.AgentCommand)

	var history strings.Builder
	history.WriteString("\n## Previous Session Log\n\n")
	if in.PreviousLog == "" {
		history.WriteString("No previous sessions.\n")
	} else {
		history.WriteString(in.PreviousLog)
		history.WriteString("\n")
	}

	var messages strings.Builder
	if len(in.InboxMessages) > 0 {
		fmt.Fprintf(&messages, "\n## New Messages (%d unread)\n\n", len(in.InboxMessages))
		for _, m := range in.InboxMessages {
			fmt.Fprintf(&messages, "### From: %s (%s)\n", m.From, m.Timestamp.Format("2006-01-02T15:04"))
			if m.Subject != "" {
				fmt.Fprintf(&messages, "Subject: %s\n", m.Subject)
			}
			fmt.Fprintf(&messages, "\n%s\n\n---\n\n", m.Body)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Cryochamber Session\n\n")
	fmt.Fprintf(&b, "Current time: %s\n", now)
	fmt.Fprintf(&b, "Session number: %d\n\n", in.SessionNumber)
	b.WriteString("## Instructions\n\n")
	fmt.Fprintf(&b, "Follow the cryochamber protocol in %s. Read plan.md for the full plan.\n\n", protocolFile)
	b.WriteString("## Your Task\n\n")
	b.WriteString(in.Task)
	b.WriteString("\n")
	b.WriteString(history.String())
	b.WriteString(messages.String())
	b.WriteString("## Reminders\n\n")
	b.WriteString("- Use `cryo-agent hibernate --wake <time> [--complete] [--exit-code N] --summary <text>` to end this session and schedule the next wake.\n")
	b.WriteString("- Use `cryo-agent note --text <text>` to leave a note for your future self.\n")
	b.WriteString("- Use `cryo-agent reply --text <text>` to answer a pending operator message.\n")
	b.WriteString("- Use `cryo-agent alert --action <email|webhook> --target <t> --message <m>` if you need a human now.\n")

	return b.String()
}
