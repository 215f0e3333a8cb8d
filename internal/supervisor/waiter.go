package supervisor

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// maxWait bounds how long one call to Wait blocks even with no wake time
// and no inbox activity, so the loop periodically re-evaluates state
// (e.g. an externally-modified cryo.toml) rather than sleeping forever.
const maxWait = 24 * time.Hour

// Waiter multiplexes the daemon's event sources into one blocking call,
// the way events.Bus fans a single publish out to many subscriber
// channels, but run in reverse: many producers feeding one consumer.
type Waiter struct {
	watchInbox bool
	inboxDir   string

	sigCh   chan os.Signal
	watcher *fsnotify.Watcher
	logger  *log.Logger
}

// NewWaiter starts watching inboxDir (if watchInbox) and registers for
// SIGTERM/SIGINT/SIGUSR1. SIGUSR1 is treated as an inbox-changed nudge, so
// an operator (e.g. with `kill -USR1 <pid>`) can force an immediate
// re-check without writing a file.
func NewWaiter(inboxDir string, watchInbox bool, logger *log.Logger) (*Waiter, error) {
	w := &Waiter{watchInbox: watchInbox, inboxDir: inboxDir, logger: logger}

	w.sigCh = make(chan os.Signal, 4)
	signal.Notify(w.sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)

	if watchInbox {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			signal.Stop(w.sigCh)
			return nil, err
		}
		if err := fw.Add(inboxDir); err != nil {
			fw.Close()
			signal.Stop(w.sigCh)
			return nil, err
		}
		w.watcher = fw
	}
	return w, nil
}

// Close releases the signal registration and filesystem watcher.
func (w *Waiter) Close() {
	signal.Stop(w.sigCh)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

// Wait blocks until nextWake arrives, the inbox changes, a shutdown signal
// arrives, ctx is cancelled, or maxWait elapses (in which case it reports
// ReasonScheduledWake so the caller re-evaluates state). A nil nextWake
// means "no scheduled wake"; Wait still bounds on maxWait.
func (w *Waiter) Wait(ctx context.Context, nextWake *time.Time) WakeReason {
	delay := maxWait
	if nextWake != nil {
		if until := time.Until(*nextWake); until < delay {
			delay = until
		}
	}
	if delay < 0 {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	var inboxEvents <-chan fsnotify.Event
	var inboxErrors <-chan error
	if w.watcher != nil {
		inboxEvents = w.watcher.Events
		inboxErrors = w.watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case sig := <-w.sigCh:
			if sig == syscall.SIGUSR1 {
				return ReasonInboxChanged
			}
			return ReasonShutdown
		case <-timer.C:
			return ReasonScheduledWake
		case ev, ok := <-inboxEvents:
			if !ok {
				inboxEvents = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				return ReasonInboxChanged
			}
		case err, ok := <-inboxErrors:
			if !ok {
				inboxErrors = nil
				continue
			}
			if w.logger != nil {
				w.logger.Printf("inbox watcher error: %v", err)
			}
		}
	}
}
