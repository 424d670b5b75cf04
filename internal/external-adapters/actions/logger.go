// Package actions adapts prgate to the GitHub Actions runner environment:
// workflow commands, the event payload, step outputs and the job summary.
package actions

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ochairo/prgate/internal/domain/interfaces"
)

// WorkflowLogger writes log lines as workflow commands when running under
// Actions, and as plain "LEVEL: msg key=value" lines elsewhere.
type WorkflowLogger struct {
	mu          sync.Mutex
	out         io.Writer
	annotations bool
	debug       bool
}

var _ interfaces.Logger = (*WorkflowLogger)(nil)

// NewWorkflowLogger creates a logger writing to out. getenv decides the mode:
// GITHUB_ACTIONS=true enables workflow commands, RUNNER_DEBUG=1 or
// PRGATE_DEBUG enables debug lines outside Actions.
func NewWorkflowLogger(out io.Writer, getenv func(string) string) *WorkflowLogger {
	return &WorkflowLogger{
		out:         out,
		annotations: getenv("GITHUB_ACTIONS") == "true",
		debug:       getenv("RUNNER_DEBUG") == "1" || getenv("PRGATE_DEBUG") != "",
	}
}

// Debug logs debug-level messages. The runner hides ::debug:: lines unless
// step debugging is on.
func (l *WorkflowLogger) Debug(msg string, fields ...interfaces.Field) {
	switch {
	case l.annotations:
		l.command("debug", msg, fields)
	case l.debug:
		l.plain("DEBUG", msg, fields)
	}
}

// Info logs informational messages
func (l *WorkflowLogger) Info(msg string, fields ...interfaces.Field) {
	if l.annotations {
		l.write(format(msg, fields))
		return
	}
	l.plain("INFO", msg, fields)
}

// Warn logs warning messages
func (l *WorkflowLogger) Warn(msg string, fields ...interfaces.Field) {
	if l.annotations {
		l.command("warning", msg, fields)
		return
	}
	l.plain("WARN", msg, fields)
}

// Error logs error messages
func (l *WorkflowLogger) Error(msg string, fields ...interfaces.Field) {
	if l.annotations {
		l.command("error", msg, fields)
		return
	}
	l.plain("ERROR", msg, fields)
}

func (l *WorkflowLogger) command(name, msg string, fields []interfaces.Field) {
	l.write("::" + name + "::" + escapeData(format(msg, fields)))
}

func (l *WorkflowLogger) plain(level, msg string, fields []interfaces.Field) {
	l.write(level + ": " + format(msg, fields))
}

func (l *WorkflowLogger) write(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(l.out, line)
}

func format(msg string, fields []interfaces.Field) string {
	if len(fields) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

// escapeData encodes the characters the runner treats as command delimiters
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}

// SetFailed prints the run's failure reason: an error annotation under
// Actions, the bare message elsewhere.
func SetFailed(w io.Writer, getenv func(string) string, msg string) {
	if getenv("GITHUB_ACTIONS") == "true" {
		_, _ = fmt.Fprintln(w, "::error::"+escapeData(msg))
		return
	}
	_, _ = fmt.Fprintln(w, msg)
}
