package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestWaitReturnsScheduledWake(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWaiter(dir, false, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	wake := time.Now().Add(50 * time.Millisecond)
	reason := w.Wait(context.Background(), &wake)
	if reason != ReasonScheduledWake {
		t.Fatalf("expected ReasonScheduledWake, got %v", reason)
	}
}

func TestWaitReturnsShutdownOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWaiter(dir, false, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	far := time.Now().Add(time.Hour)
	reason := w.Wait(ctx, &far)
	if reason != ReasonShutdown {
		t.Fatalf("expected ReasonShutdown, got %v", reason)
	}
}

func TestWaitReturnsInboxChangedOnNewFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWaiter(dir, true, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	done := make(chan WakeReason, 1)
	far := time.Now().Add(time.Hour)
	go func() {
		done <- w.Wait(context.Background(), &far)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "new.md"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case reason := <-done:
		if reason != ReasonInboxChanged {
			t.Fatalf("expected ReasonInboxChanged, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbox change to be detected")
	}
}

func TestWaitReturnsShutdownOnSIGTERM(t *testing.T) {
	// SIGUSR1 maps to ReasonInboxChanged, not shutdown; this test instead
	// verifies SIGTERM (the other signal Waiter registers) is treated as
	// shutdown.
	dir := t.TempDir()
	w, err := NewWaiter(dir, false, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	done := make(chan WakeReason, 1)
	far := time.Now().Add(time.Hour)
	go func() {
		done <- w.Wait(context.Background(), &far)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case reason := <-done:
		if reason != ReasonShutdown {
			t.Fatalf("expected ReasonShutdown, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal to be observed")
	}
}
