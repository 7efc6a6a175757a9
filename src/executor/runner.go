// Package executor runs the external programs the network modules drive
// (wpa_cli, the setup command, sync).
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runner executes a program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// CommandError is returned when a program exits unsuccessfully.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// CommandRunner runs programs on the local host, optionally through sudo.
type CommandRunner struct {
	Sudo bool
}

var _ Runner = (*CommandRunner)(nil)

// NewCommandRunner creates a runner for the local host.
func NewCommandRunner(sudo bool) *CommandRunner {
	return &CommandRunner{Sudo: sudo}
}

// Run executes name with args. Stdout is returned even when the program fails.
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if r.Sudo {
		args = append([]string{name}, args...)
		name = "sudo"
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		commandLine := CommandLine(name, args...)
		logger.WithFields(logrus.Fields{
			"command": commandLine,
			"error":   err,
			"stderr":  stderr.String(),
		}).Debug("Command failed")
		return stdout.String(), &CommandError{
			Command: commandLine,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}

	return stdout.String(), nil
}

// Sync flushes filesystem buffers to disk.
func Sync(ctx context.Context, r Runner) error {
	if _, err := r.Run(ctx, "sync"); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// CommandLine renders a program invocation for logs.
func CommandLine(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
