package protocol

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFilenamePicksClaude(t *testing.T) {
	if got := Filename("claude --dangerously-skip-permissions"); got != "CLAUDE.md" {
		t.Fatalf("got %s, want CLAUDE.md", got)
	}
}

func TestFilenameIgnoresFlagsAfterExecutable(t *testing.T) {
	if got := Filename("opencode --model claude-3.7"); got != "AGENTS.md" {
		t.Fatalf("got %s, want AGENTS.md (only executable token matters)", got)
	}
}

func TestFilenameStripsPath(t *testing.T) {
	if got := Filename("/usr/local/bin/claude run"); got != "CLAUDE.md" {
		t.Fatalf("got %s, want CLAUDE.md", got)
	}
}

func TestWriteProtocolFileNoClobber(t *testing.T) {
	dir := t.TempDir()
	wrote, err := WriteProtocolFile(dir, "AGENTS.md")
	if err != nil {
		t.Fatalf("WriteProtocolFile: %v", err)
	}
	if !wrote {
		t.Fatal("expected first write to report true")
	}

	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("custom content"), 0o644); err != nil {
		t.Fatal(err)
	}
	wrote, err = WriteProtocolFile(dir, "AGENTS.md")
	if err != nil {
		t.Fatalf("WriteProtocolFile: %v", err)
	}
	if wrote {
		t.Fatal("expected no-clobber write to report false")
	}
	data, _ := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	if string(data) != "custom content" {
		t.Fatal("existing file was overwritten")
	}
}

func TestFindProtocolFile(t *testing.T) {
	dir := t.TempDir()
	if _, found := FindProtocolFile(dir); found {
		t.Fatal("expected no protocol file in empty dir")
	}
	if _, err := WriteProtocolFile(dir, "CLAUDE.md"); err != nil {
		t.Fatal(err)
	}
	name, found := FindProtocolFile(dir)
	if !found || name != "CLAUDE.md" {
		t.Fatalf("got name=%s found=%v", name, found)
	}
}

func TestWriteTemplatePlanAndMakefile(t *testing.T) {
	dir := t.TempDir()
	if wrote, err := WriteTemplatePlan(dir); err != nil || !wrote {
		t.Fatalf("WriteTemplatePlan: wrote=%v err=%v", wrote, err)
	}
	if wrote, err := WriteMakefile(dir); err != nil || !wrote {
		t.Fatalf("WriteMakefile: wrote=%v err=%v", wrote, err)
	}
}
