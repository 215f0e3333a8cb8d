// Package fallback executes the dead-man-switch actions an agent (or the
// supervisor itself, on retry exhaustion) can request when it needs a
// human: an email via a local mail transfer command, or a webhook POST.
package fallback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action names recognized by Execute.
const (
	ActionEmail   = "email"
	ActionWebhook = "webhook"
)

// Alert is one fallback request: which channel, where to send it, and the
// human-readable message. ID correlates an alert across the event log, the
// executor's own error logging, and (for webhook delivery) the receiving
// side, the way the teacher tags each event.Event with a uuid.
type Alert struct {
	ID      string
	Action  string
	Target  string
	Message string
}

// NewAlert returns an Alert stamped with a fresh correlation ID.
func NewAlert(action, target, message string) Alert {
	return Alert{ID: uuid.New().String(), Action: action, Target: target, Message: message}
}

// IsEmail reports whether a.Action selects the email channel.
func (a Alert) IsEmail() bool { return strings.EqualFold(a.Action, ActionEmail) }

// IsWebhook reports whether a.Action selects the webhook channel.
func (a Alert) IsWebhook() bool { return strings.EqualFold(a.Action, ActionWebhook) }

func (a Alert) String() string {
	return fmt.Sprintf("%s -> %s: %s", a.Action, a.Target, a.Message)
}

// Executor delivers Alerts. mailCommand defaults to "mail" but is
// configurable via cryo.toml's [fallback] section.
type Executor struct {
	MailCommand string
	HTTPClient  *http.Client
}

// New returns an Executor with the given mail command, defaulting to
// "mail" when empty.
func New(mailCommand string) *Executor {
	if mailCommand == "" {
		mailCommand = "mail"
	}
	return &Executor{MailCommand: mailCommand, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// Execute dispatches a to the channel named by a.Action.
func (e *Executor) Execute(a Alert) error {
	switch {
	case a.IsEmail():
		return e.sendEmail(a)
	case a.IsWebhook():
		return e.sendWebhook(a)
	default:
		return fmt.Errorf("fallback: unknown action %q", a.Action)
	}
}

func (e *Executor) sendEmail(a Alert) error {
	cmd := exec.Command(e.MailCommand, "-s", "Cryochamber Alert", a.Target)
	cmd.Stdin = strings.NewReader(a.Message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("fallback: send email via %s: %w (%s)", e.MailCommand, err, out)
	}
	return nil
}

// webhookPayload is posted idiomatically with net/http rather than
// shelling out to curl, matching how the rest of this daemon speaks HTTP.
type webhookPayload struct {
	Text string `json:"text"`
	ID   string `json:"id,omitempty"`
}

func (e *Executor) sendWebhook(a Alert) error {
	payload := webhookPayload{Text: "Cryochamber Alert: " + a.Message, ID: a.ID}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fallback: marshal webhook payload: %w", err)
	}
	resp, err := e.HTTPClient.Post(a.Target, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("fallback: post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fallback: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
