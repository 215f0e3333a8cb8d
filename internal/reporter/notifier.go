package reporter

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/go-toast/toast"
)

// Notifier delivers a report summary to whatever desktop or log surface
// the host platform supports.
type Notifier interface {
	Notify(projectName string, s Summary) error
}

// NewNotifier returns the best available Notifier for the current OS:
// desktop toast notifications on Windows, a structured log line
// everywhere else. There is no cross-platform desktop notification
// library in this module's dependency set, so non-Windows delivery
// degrades to logging rather than reaching for an unvetted one.
func NewNotifier() Notifier {
	if runtime.GOOS == "windows" {
		return &ToastNotifier{}
	}
	return &LogNotifier{logger: log.New(os.Stdout, "[REPORTER] ", log.LstdFlags)}
}

// ToastNotifier shows a Windows toast notification.
type ToastNotifier struct{}

// Notify shows a toast summarizing s for projectName.
func (t *ToastNotifier) Notify(projectName string, s Summary) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("reporter: toast notifications are only supported on windows")
	}
	notification := toast.Notification{
		AppID:   "Cryochamber",
		Title:   fmt.Sprintf("Cryochamber Report: %s", projectName),
		Message: s.Body(),
	}
	if err := notification.Push(); err != nil {
		return fmt.Errorf("reporter: push toast: %w", err)
	}
	return nil
}

// LogNotifier writes the report as a structured log line, used on
// platforms without a desktop notification surface.
type LogNotifier struct {
	logger *log.Logger
}

// Notify logs the report summary for projectName.
func (l *LogNotifier) Notify(projectName string, s Summary) error {
	l.logger.Printf("%s: %s", projectName, s.Body())
	return nil
}
