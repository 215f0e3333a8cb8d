package supervisor

import (
	"context"
	"testing"

	"github.com/cryochamber/cryod/internal/config"
	"github.com/cryochamber/cryod/internal/state"
)

func newTestLoop(t *testing.T, cfg config.Config) (*Loop, string) {
	t.Helper()
	dir := t.TempDir()
	if err := config.Save(dir, cfg); err != nil {
		t.Fatal(err)
	}
	return NewLoop(dir), dir
}

func TestRunOnceRecordsRetryOnFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Agent = `sh -c 'exit 1'`
	cfg.MaxRetries = 3

	l, dir := newTestLoop(t, cfg)
	defer func() {
		if l.index != nil {
			l.index.Close()
		}
	}()

	st := state.State{}
	if err := l.runOnce(context.Background(), cfg, st); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got, err := state.NewStore(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", got.RetryCount)
	}
	if got.NextWake == nil {
		t.Fatal("expected a next wake time to be scheduled after failure")
	}
}

func TestRunOnceIncrementsRetryWithoutHibernate(t *testing.T) {
	cfg := config.Default()
	cfg.Agent = `sh -c 'exit 0'`

	l, dir := newTestLoop(t, cfg)
	defer func() {
		if l.index != nil {
			l.index.Close()
		}
	}()

	st := state.State{RetryCount: 2}
	if err := l.runOnce(context.Background(), cfg, st); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got, err := state.NewStore(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	// The agent never hibernates here either, so this still counts as a
	// failure and increments rather than resets; this test documents that
	// only an explicit hibernate resets retry count.
	if got.RetryCount != 3 {
		t.Fatalf("expected retry count 3 (incremented, not reset, since no hibernate was sent), got %d", got.RetryCount)
	}
}

func TestRunOnceRotatesProviderOnQuickExitBeforeExhaustion(t *testing.T) {
	cfg := config.Default()
	cfg.Agent = `sh -c 'exit 1'`
	cfg.MaxRetries = 5
	cfg.RotateOn = config.RotateQuickExit
	cfg.Providers = []config.Provider{{Name: "a"}, {Name: "b"}}

	l, dir := newTestLoop(t, cfg)
	defer func() {
		if l.index != nil {
			l.index.Close()
		}
	}()

	st := state.State{}
	if err := l.runOnce(context.Background(), cfg, st); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got, err := state.NewStore(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.ProviderIndex != 1 {
		t.Fatalf("expected the first quick crash to rotate to provider 1, got %d", got.ProviderIndex)
	}
	if got.RetryCount != 0 {
		t.Fatalf("expected attempt to be reset by rotation, got %d", got.RetryCount)
	}
}

func TestProviderEnvOutOfRange(t *testing.T) {
	cfg := config.Default()
	if env := providerEnv(cfg, 5); env != nil {
		t.Fatalf("expected nil env for out-of-range provider index, got %v", env)
	}
}
