package gateways

import (
	"context"
	"time"
)

// Command is an external program invocation.
// Args are passed verbatim; no shell is involved.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string
}

// CommandResult captures the outcome of a finished command.
// ExitCode is -1 when the process could not be started or was killed.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Started reports whether the process ran to an exit status.
func (r *CommandResult) Started() bool {
	return r.ExitCode >= 0
}

// CommandRunner executes external programs
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) *CommandResult
	LookPath(name string) (string, error)
}

// FileSystem is the narrow file I/O surface the adapters use
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Exists(path string) bool
	IsDir(path string) bool
	MkdirAll(path string) error
	// TempDir creates a fresh directory whose name starts with prefix.
	TempDir(prefix string) (string, error)
	RemoveAll(path string) error
}
