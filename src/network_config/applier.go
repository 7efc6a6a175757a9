package network_config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/executor"
	"github.com/sirupsen/logrus"
)

// Applier turns a network document into live system state.
type Applier interface {
	// Apply returns the problems found while applying doc. With dryRun set
	// nothing is changed on the system.
	Apply(ctx context.Context, doc []byte, dryRun bool) ([]string, error)
}

// CommandApplier hands the document to an external setup program:
//
//	<command> [args...] [--dry-run] <document file>
//
// The program reports problems as a JSON array of strings on stdout.
type CommandApplier struct {
	runner  executor.Runner
	command string
	args    []string
	tmpDir  string
}

var _ Applier = (*CommandApplier)(nil)

// NewCommandApplier parses commandLine into a program and its leading arguments.
func NewCommandApplier(runner executor.Runner, commandLine string) (*CommandApplier, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("setup command is empty")
	}
	return &CommandApplier{
		runner:  runner,
		command: fields[0],
		args:    fields[1:],
	}, nil
}

func (a *CommandApplier) Apply(ctx context.Context, doc []byte, dryRun bool) ([]string, error) {
	f, err := os.CreateTemp(a.tmpDir, "netconfig-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create document file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(doc); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write document file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	args := append([]string{}, a.args...)
	if dryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, f.Name())

	out, runErr := a.runner.Run(ctx, a.command, args...)
	errs, parsed := parseProblems(out)
	if runErr != nil {
		logger.WithFields(logrus.Fields{
			"command": executor.CommandLine(a.command, args...),
			"dry_run": dryRun,
			"error":   runErr,
		}).Warn("Setup command failed")
		if !parsed || len(errs) == 0 {
			return []string{runErr.Error()}, nil
		}
	}
	return errs, nil
}

// parseProblems reads a JSON string array. Empty output is an empty list.
func parseProblems(out string) ([]string, bool) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, true
	}
	var problems []string
	if err := json.Unmarshal([]byte(out), &problems); err != nil {
		return nil, false
	}
	return problems, true
}
