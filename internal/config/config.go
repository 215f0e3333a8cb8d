// Package config loads and saves the per-directory cryo.toml file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cryochamber/cryod/internal/state"
	"github.com/cryochamber/cryod/internal/stringutils"
)

// RotatePolicy governs when a failed session causes the supervisor to
// rotate to the next configured provider rather than just recording the
// failure against the current one.
type RotatePolicy string

const (
	// RotateNever never rotates; every failure counts against the same
	// provider until retries are exhausted.
	RotateNever RotatePolicy = "never"
	// RotateQuickExit rotates whenever a session finishes faster than
	// QuickExitThreshold, the signature of an agent that crashed on launch
	// rather than one that ran and genuinely failed.
	RotateQuickExit RotatePolicy = "quick-exit"
	// RotateAnyFailure rotates on every failed session.
	RotateAnyFailure RotatePolicy = "any-failure"
)

// QuickExitThreshold is the session duration below which RotateQuickExit
// treats a failure as a quick exit.
const QuickExitThreshold = 5 * time.Second

// ShouldRotate reports whether a failed session of the given duration
// should trigger provider rotation under this policy.
func (p RotatePolicy) ShouldRotate(duration time.Duration) bool {
	switch p {
	case RotateAnyFailure:
		return true
	case RotateQuickExit:
		return duration < QuickExitThreshold
	default:
		return false
	}
}

// Provider is one agent-invocation profile: a name, and an environment
// overlay applied on top of the daemon's own environment when it is the
// provider at state.ProviderIndex.
type Provider struct {
	Name string            `toml:"name"`
	Env  map[string]string `toml:"env"`
}

// Report holds the Reporter's wall-clock schedule.
type Report struct {
	Time          string `toml:"time"`
	IntervalHours uint64 `toml:"interval_hours"`
}

// Fallback holds the dead-man-switch delivery knobs.
type Fallback struct {
	MailCommand string `toml:"mail_command"`
}

// Config is the parsed cryo.toml.
type Config struct {
	Agent              string       `toml:"agent"`
	PlanPath           string       `toml:"plan_path"`
	MaxRetries         uint32       `toml:"max_retries"`
	MaxSessionDuration uint64       `toml:"max_session_duration"`
	WatchInbox         bool         `toml:"watch_inbox"`
	Providers          []Provider   `toml:"providers"`
	RotateOn           RotatePolicy `toml:"rotate_on"`
	Report             Report       `toml:"report"`
	Fallback           Fallback     `toml:"fallback"`
}

// Default returns the configuration used when no cryo.toml is present yet.
func Default() Config {
	return Config{
		Agent:              "opencode",
		PlanPath:           "plan.md",
		MaxRetries:         1,
		MaxSessionDuration: 0,
		WatchInbox:         true,
		Fallback:           Fallback{MailCommand: "mail"},
	}
}

// Path returns the cryo.toml path for a supervised directory.
func Path(dir string) string {
	return filepath.Join(dir, "cryo.toml")
}

// Load reads and parses cryo.toml. A missing file is not an error: it
// reports (nil, nil) so callers can fall back to Default().
func Load(dir string) (*Config, error) {
	path := Path(dir)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to cryo.toml under dir.
func Save(dir string, cfg Config) error {
	path := Path(dir)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

// Validate reports the first configuration problem that would prevent the
// supervisor loop from running a session at all.
func Validate(cfg Config) error {
	if stringutils.IsEmpty(cfg.Agent) {
		return fmt.Errorf("config: agent command must not be blank")
	}
	if stringutils.IsEmpty(cfg.PlanPath) {
		return fmt.Errorf("config: plan_path must not be blank")
	}
	for _, p := range cfg.Providers {
		if stringutils.IsEmpty(p.Name) {
			return fmt.Errorf("config: provider entries must have a name")
		}
	}
	return nil
}

// ApplyOverrides merges the per-session overrides recorded in timer.json
// into cfg, mutating only the fields that were explicitly set.
func ApplyOverrides(cfg *Config, st state.State) {
	if st.AgentOverride != nil {
		cfg.Agent = *st.AgentOverride
	}
	if st.MaxRetriesOverride != nil {
		cfg.MaxRetries = *st.MaxRetriesOverride
	}
	if st.MaxSessionDurationOverride != nil {
		cfg.MaxSessionDuration = *st.MaxSessionDurationOverride
	}
}
