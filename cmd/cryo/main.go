// Command cryo is the operator-facing front end for cryochamber: it seeds
// a new supervised directory, starts/stops its daemon, and reports status.
// The always-running supervisor loop lives in cryod; this binary only ever
// runs briefly and exits.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cryochamber/cryod/internal/config"
	"github.com/cryochamber/cryod/internal/protocol"
	"github.com/cryochamber/cryod/internal/registry"
	"github.com/cryochamber/cryod/internal/state"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cryo: getwd: %v\n", err)
		os.Exit(1)
	}

	var cmdErr error
	switch cmd {
	case "init":
		cmdErr = runInit(dir)
	case "start":
		cmdErr = runStart(dir, args)
	case "stop":
		cmdErr = runStop(dir)
	case "status":
		cmdErr = runStatus(dir)
	case "ps":
		cmdErr = runPS()
	default:
		usage()
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "cryo %s: %v\n", cmd, cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cryo <init|start|stop|status|ps>")
}

// runInit seeds a new supervised directory with its config, plan template,
// protocol doc, and Makefile, never overwriting anything already present.
func runInit(dir string) error {
	cfg := config.Default()
	if existing, err := config.Load(dir); err != nil {
		return fmt.Errorf("load existing config: %w", err)
	} else if existing == nil {
		if err := config.Save(dir, cfg); err != nil {
			return fmt.Errorf("write cryo.toml: %w", err)
		}
		fmt.Println("wrote cryo.toml")
	} else {
		cfg = *existing
		fmt.Println("cryo.toml already exists, leaving it in place")
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	wrotePlan, err := protocol.WriteTemplatePlan(dir)
	if err != nil {
		return fmt.Errorf("write plan.md: %w", err)
	}
	if wrotePlan {
		fmt.Println("wrote plan.md")
	}

	if _, ok := protocol.FindProtocolFile(dir); !ok {
		filename := protocol.Filename(cfg.Agent)
		if _, err := protocol.WriteProtocolFile(dir, filename); err != nil {
			return fmt.Errorf("write %s: %w", filename, err)
		}
		fmt.Printf("wrote %s\n", filename)
	}

	wroteMakefile, err := protocol.WriteMakefile(dir)
	if err != nil {
		return fmt.Errorf("write Makefile: %w", err)
	}
	if wroteMakefile {
		fmt.Println("wrote Makefile")
	}

	fmt.Println("cryochamber initialized. Edit plan.md, then run `cryo start`.")
	return nil
}

// runStart launches cryod as a detached background process supervising
// dir.
func runStart(dir string, args []string) error {
	if entries, err := registry.List(); err == nil {
		for _, e := range entries {
			if e.Dir == dir {
				return fmt.Errorf("already running (pid %d)", e.PID)
			}
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}
	cryodPath := filepath.Join(filepath.Dir(exe), "cryod")

	procAttr := &os.ProcAttr{
		Dir:   dir,
		Files: []*os.File{nil, nil, nil},
	}
	cmdArgs := append([]string{cryodPath, "-dir", dir}, args...)
	proc, err := os.StartProcess(cryodPath, cmdArgs, procAttr)
	if err != nil {
		return fmt.Errorf("start cryod: %w", err)
	}
	fmt.Printf("started cryod (pid %d) for %s\n", proc.Pid, dir)
	return proc.Release()
}

// runStop signals the daemon supervising dir to shut down gracefully.
func runStop(dir string) error {
	entries, err := registry.List()
	if err != nil {
		return fmt.Errorf("list registered daemons: %w", err)
	}
	for _, e := range entries {
		if e.Dir == dir {
			if err := syscall.Kill(e.PID, syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal pid %d: %w", e.PID, err)
			}
			fmt.Printf("sent shutdown signal to pid %d\n", e.PID)
			return nil
		}
	}
	return fmt.Errorf("no daemon is registered for %s", dir)
}

// runStatus reports this directory's session state and whether its daemon
// is currently registered as running.
func runStatus(dir string) error {
	st, err := state.NewStore(dir).Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	running := false
	entries, err := registry.List()
	if err == nil {
		for _, e := range entries {
			if e.Dir == dir {
				running = true
			}
		}
	}

	fmt.Printf("directory:     %s\n", dir)
	fmt.Printf("running:       %v\n", running)
	fmt.Printf("session:       %d\n", st.SessionNumber)
	fmt.Printf("retry count:   %d\n", st.RetryCount)
	fmt.Printf("provider:      %d\n", st.ProviderIndex)
	if st.NextWake != nil {
		fmt.Printf("next wake:     %s\n", st.NextWake.Format(time.RFC3339))
	} else {
		fmt.Println("next wake:     (none scheduled)")
	}
	if st.LastReportTime != nil {
		fmt.Printf("last report:   %s\n", st.LastReportTime.Format(time.RFC3339))
	}
	return nil
}

// runPS lists every daemon registered on this machine.
func runPS() error {
	entries, err := registry.List()
	if err != nil {
		return fmt.Errorf("list registered daemons: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("no cryochamber daemons are running")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-8d %s\n", e.PID, e.Dir)
	}
	return nil
}
