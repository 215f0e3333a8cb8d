package config

import (
	"testing"
	"time"

	"github.com/cryochamber/cryod/internal/state"
)

func TestLoadMissingReturnsNil(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %+v", cfg)
	}
}

func TestSaveThenLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	want := Default()
	want.Agent = "claude"
	want.MaxRetries = 3
	want.Providers = []Provider{{Name: "primary", Env: map[string]string{"FOO": "bar"}}}
	want.RotateOn = RotateQuickExit

	if err := Save(dir, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil config")
	}
	if got.Agent != "claude" || got.MaxRetries != 3 {
		t.Fatalf("mismatch: %+v", got)
	}
	if len(got.Providers) != 1 || got.Providers[0].Name != "primary" {
		t.Fatalf("providers mismatch: %+v", got.Providers)
	}
	if got.RotateOn != RotateQuickExit {
		t.Fatalf("rotate_on mismatch: %+v", got.RotateOn)
	}
}

func TestRotatePolicyShouldRotate(t *testing.T) {
	const short = 2 * time.Second
	const long = 10 * time.Second

	if RotateNever.ShouldRotate(short) || RotateNever.ShouldRotate(long) {
		t.Fatal("never should never rotate")
	}
	if !RotateQuickExit.ShouldRotate(short) {
		t.Fatal("quick-exit should rotate on a short session")
	}
	if RotateQuickExit.ShouldRotate(long) {
		t.Fatal("quick-exit should not rotate on a long session")
	}
	if !RotateAnyFailure.ShouldRotate(short) || !RotateAnyFailure.ShouldRotate(long) {
		t.Fatal("any-failure should always rotate")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	agent := "codex"
	retries := uint32(5)
	st := state.State{AgentOverride: &agent, MaxRetriesOverride: &retries}

	ApplyOverrides(&cfg, st)

	if cfg.Agent != "codex" {
		t.Fatalf("agent override not applied: %+v", cfg)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("max retries override not applied: %+v", cfg)
	}
	if cfg.MaxSessionDuration != 0 {
		t.Fatalf("unrelated field should stay default: %+v", cfg)
	}
}

func TestValidateRejectsBlankAgent(t *testing.T) {
	cfg := Default()
	cfg.Agent = "   "
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for blank agent")
	}
}

func TestValidateRejectsUnnamedProvider(t *testing.T) {
	cfg := Default()
	cfg.Providers = []Provider{{Name: ""}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unnamed provider")
	}
}

func TestValidateAcceptsDefault(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}
