// Package message reads and writes the markdown files exchanged between
// operators and the supervised agent via the inbox/outbox directories.
package message

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cryochamber/cryod/internal/atomicfile"
	"github.com/cryochamber/cryod/internal/slug"
)

const timestampLayout = "2006-01-02T15:04:05"

// Message is one markdown file with a frontmatter header.
type Message struct {
	From      string
	Subject   string
	Timestamp time.Time
	Metadata  map[string]string
	Body      string
}

// Dirs names the three message directories under a supervised directory's
// top-level messages tree.
type Dirs struct {
	Inbox        string
	Outbox       string
	InboxArchive string
}

// DirsFor returns the message directories for a supervised directory.
func DirsFor(dir string) Dirs {
	base := filepath.Join(dir, "messages")
	return Dirs{
		Inbox:        filepath.Join(base, "inbox"),
		Outbox:       filepath.Join(base, "outbox"),
		InboxArchive: filepath.Join(base, "inbox", "archive"),
	}
}

// EnsureDirs creates the inbox, outbox, and inbox archive directories.
func EnsureDirs(dir string) error {
	d := DirsFor(dir)
	for _, p := range []string{d.Inbox, d.Outbox, d.InboxArchive} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("message: mkdir %s: %w", p, err)
		}
	}
	return nil
}

// Write atomically creates a new message file in destDir, deriving the
// filename from the message timestamp and a slug of its subject (falling
// back to an 8-hex-digit hash of the body and sender when the subject
// yields no usable characters).
func Write(destDir string, m Message) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("message: mkdir %s: %w", destDir, err)
	}
	name := filename(m)
	path := filepath.Join(destDir, name)
	if err := atomicfile.Write(path, []byte(toMarkdown(m)), 0o644); err != nil {
		return "", fmt.Errorf("message: write %s: %w", path, err)
	}
	return path, nil
}

func filename(m Message) string {
	ts := strings.ReplaceAll(m.Timestamp.Format(timestampLayout), ":", "-")
	token := slug.Make(m.Subject, m.Body+m.From)
	return fmt.Sprintf("%s_%s.md", ts, token)
}

func toMarkdown(m Message) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "from: %s\n", m.From)
	if m.Subject != "" {
		fmt.Fprintf(&b, "subject: %s\n", m.Subject)
	}
	fmt.Fprintf(&b, "timestamp: %s\n", m.Timestamp.Format(timestampLayout))
	keys := make([]string, 0, len(m.Metadata))
	for k := range m.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, m.Metadata[k])
	}
	b.WriteString("---\n\n")
	b.WriteString(m.Body)
	if !strings.HasSuffix(m.Body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// Parse decodes frontmatter-delimited markdown into a Message. A missing
// or malformed timestamp falls back to the current local time rather than
// failing the parse, matching the tolerant behavior required of message
// readers that must never treat one bad file as fatal.
func Parse(data []byte) (Message, error) {
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		return Message{}, fmt.Errorf("message: missing frontmatter delimiter")
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return Message{}, fmt.Errorf("message: unterminated frontmatter")
	}
	header := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n---\n"):], "\n")

	m := Message{Metadata: map[string]string{}}
	for _, line := range strings.Split(header, "\n") {
		if slug.IsBlank(line) {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "from":
			m.From = val
		case "subject":
			m.Subject = val
		case "timestamp":
			if t, err := time.ParseInLocation(timestampLayout, val, time.Local); err == nil {
				m.Timestamp = t
			} else {
				m.Timestamp = time.Now()
			}
		default:
			m.Metadata[key] = val
		}
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	m.Body = body
	return m, nil
}

// ReadDir lists the *.md files directly inside dir, sorted by filename
// (and therefore chronologically, since filenames are timestamp-prefixed),
// skipping and logging any file that fails to parse instead of failing
// the whole read.
func ReadDir(dir string, onError func(path string, err error)) ([]Message, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("message: read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	msgs := make([]Message, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if onError != nil {
				onError(path, err)
			}
			continue
		}
		m, err := Parse(data)
		if err != nil {
			if onError != nil {
				onError(path, err)
			}
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// ReadInbox reads pending inbox messages.
func ReadInbox(dir string, onError func(string, error)) ([]Message, error) {
	return ReadDir(DirsFor(dir).Inbox, onError)
}

// ReadOutbox reads outbox messages the agent has written.
func ReadOutbox(dir string, onError func(string, error)) ([]Message, error) {
	return ReadDir(DirsFor(dir).Outbox, onError)
}

// ReadInboxArchive reads archived inbox messages.
func ReadInboxArchive(dir string, onError func(string, error)) ([]Message, error) {
	return ReadDir(DirsFor(dir).InboxArchive, onError)
}

// Archive moves every *.md file in the inbox into the inbox archive,
// called once the agent session that read them has completed.
func Archive(dir string) (int, error) {
	d := DirsFor(dir)
	entries, err := os.ReadDir(d.Inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("message: read inbox %s: %w", d.Inbox, err)
	}
	if err := os.MkdirAll(d.InboxArchive, 0o755); err != nil {
		return 0, fmt.Errorf("message: mkdir archive: %w", err)
	}
	moved := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		src := filepath.Join(d.Inbox, e.Name())
		dst := filepath.Join(d.InboxArchive, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("message: archive %s: %w", src, err)
		}
		moved++
	}
	return moved, nil
}
