package gateways

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

// execCommandRunner runs scanners as child processes
type execCommandRunner struct {
	logger interfaces.Logger
}

// NewCommandRunner creates a command runner backed by os/exec
func NewCommandRunner(logger interfaces.Logger) gateways.CommandRunner {
	return &execCommandRunner{logger: interfaces.OrNoOp(logger)}
}

// Run executes cmd and waits for it to exit.
// A non-zero exit is reported through ExitCode, not as a Go error; Err is only
// set when the process could not be started or was cancelled.
func (r *execCommandRunner) Run(ctx context.Context, cmd gateways.Command) *gateways.CommandResult {
	startTime := time.Now()
	result := &gateways.CommandResult{}

	//nolint:gosec // G204: the scanner binaries and their arguments come from the gate configuration
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), envList(cmd.Env)...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.logger.Debug("Running command", interfaces.F("name", cmd.Name), interfaces.F("args", cmd.Args))

	err := c.Run()
	result.Duration = time.Since(startTime)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		//nolint:gocritic // ifElseChain: checking different error types, not suitable for switch
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			result.ExitCode = exitErr.ExitCode()
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			result.Err = fmt.Errorf("%s cancelled after %v: %w", cmd.Name, result.Duration, ctxErr)
			result.ExitCode = -1
		} else {
			result.Err = fmt.Errorf("%w: %s: %w", gateways.ErrToolUnavailable, cmd.Name, err)
			result.ExitCode = -1
		}
	}

	return result
}

// LookPath reports where name is installed
func (r *execCommandRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", gateways.ErrToolUnavailable, name)
	}
	return path, nil
}

// envList renders env in a stable order so that runs are reproducible
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return list
}
