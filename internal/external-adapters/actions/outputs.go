package actions

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// OutputWriter sets step outputs through the GITHUB_OUTPUT file, or prints
// name=value lines when the file is not configured.
type OutputWriter struct {
	path     string
	fallback io.Writer
}

// NewOutputWriter creates a writer for the GITHUB_OUTPUT file found through getenv
func NewOutputWriter(getenv func(string) string, fallback io.Writer) *OutputWriter {
	return &OutputWriter{path: getenv("GITHUB_OUTPUT"), fallback: fallback}
}

// Set records one output. Multi-line values use the runner's heredoc syntax.
func (w *OutputWriter) Set(name, value string) error {
	if w.path == "" {
		_, err := fmt.Fprintf(w.fallback, "%s=%s\n", name, value)
		return err
	}
	return appendFile(w.path, formatOutput(name, value))
}

func formatOutput(name, value string) string {
	if !strings.ContainsAny(value, "\r\n") {
		return name + "=" + value + "\n"
	}
	delimiter := "ghadelimiter_" + uuid.NewString()
	return fmt.Sprintf("%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter)
}

// AppendStepSummary adds markdown to the job summary page. Without
// GITHUB_STEP_SUMMARY it does nothing.
func AppendStepSummary(getenv func(string) string, markdown string) error {
	path := getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		return nil
	}
	if !strings.HasSuffix(markdown, "\n") {
		markdown += "\n"
	}
	return appendFile(path, markdown)
}

func appendFile(path, content string) error {
	//nolint:gosec // G302,G304: path is a runner-provided command file
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
