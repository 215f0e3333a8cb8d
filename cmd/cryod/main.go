// Command cryod is the cryochamber daemon: it supervises one project
// directory, spawning the configured agent each session and scheduling the
// next wake according to what the agent tells it to do.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cryochamber/cryod/internal/registry"
	"github.com/cryochamber/cryod/internal/statusapi"
	"github.com/cryochamber/cryod/internal/supervisor"
)

func main() {
	dir := flag.String("dir", ".", "project directory to supervise")
	flag.Parse()

	absDir, err := filepath.Abs(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cryod: resolve %s: %v\n", *dir, err)
		os.Exit(1)
	}

	if err := registry.Register(os.Getpid(), absDir); err != nil {
		fmt.Fprintf(os.Stderr, "cryod: register instance: %v\n", err)
		os.Exit(1)
	}
	defer registry.Unregister(absDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	status := statusapi.New(absDir)
	if addr, err := status.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "cryod: start status endpoint: %v\n", err)
	} else {
		defer status.Close()
		fmt.Fprintf(os.Stderr, "cryod: status endpoint listening on %s\n", addr)
	}

	loop := supervisor.NewLoop(absDir)
	loop.EnablePersistentTimer()
	loop.Logger.Printf("supervising %s (pid %d)", absDir, os.Getpid())

	if err := loop.Run(ctx); err != nil {
		loop.Logger.Printf("exited with error: %v", err)
		os.Exit(1)
	}
	loop.Logger.Println("shut down cleanly")
}
