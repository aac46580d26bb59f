// Package command spawns the user's before and after freeze commands.
package command

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Runner starts shell commands detached from the freeze pipeline. The
// pipeline never waits for a command; the configured delays are timers
// owned by the orchestrator, counted from spawn.
type Runner struct {
	logger *slog.Logger
}

// NewRunner returns a runner logging command failures to logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Spawn runs cmdline under sh -c with inherited stdio. A start failure
// is returned so the caller can log it; it is not fatal to the freeze.
// The exit status is collected in the background and only logged.
func (r *Runner) Spawn(cmdline string) error {
	cmd := exec.Command("sh", "-c", cmdline)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %q: %w", cmdline, err)
	}
	r.logger.Debug("command started", "cmd", cmdline, "pid", cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			r.logger.Warn("command exited with error", "cmd", cmdline, "error", err)
		}
	}()
	return nil
}
