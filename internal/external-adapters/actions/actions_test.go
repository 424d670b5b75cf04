package actions

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochairo/prgate/internal/domain/interfaces"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestWorkflowLogger_InActions(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWorkflowLogger(&buf, envOf(map[string]string{"GITHUB_ACTIONS": "true"}))

	logger.Debug("Scanner command", interfaces.F("tool", "trivy"))
	logger.Info("Gate evaluated", interfaces.F("blocking", true))
	logger.Warn("Scan failed\nsee logs", interfaces.F("progress", "100%"))
	logger.Error("Publishing failed")

	assert.Equal(t, strings.Join([]string{
		"::debug::Scanner command tool=trivy",
		"Gate evaluated blocking=true",
		"::warning::Scan failed%0Asee logs progress=100%25",
		"::error::Publishing failed",
		"",
	}, "\n"), buf.String())
}

func TestWorkflowLogger_Plain(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "debug hidden",
			env:  map[string]string{},
			want: "INFO: ready\nWARN: slow tool=checkov\n",
		},
		{
			name: "debug enabled",
			env:  map[string]string{"PRGATE_DEBUG": "1"},
			want: "DEBUG: args\nINFO: ready\nWARN: slow tool=checkov\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWorkflowLogger(&buf, envOf(tt.env))
			logger.Debug("args")
			logger.Info("ready")
			logger.Warn("slow", interfaces.F("tool", "checkov"))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func writeEvent(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	return path
}

func TestLoadEvent(t *testing.T) {
	t.Run("pull request", func(t *testing.T) {
		event, err := LoadEvent(envOf(map[string]string{
			"GITHUB_EVENT_NAME": "pull_request",
			"GITHUB_REPOSITORY": "acme/shop",
			"GITHUB_API_URL":    "https://ghe.example.com/api/v3",
			"GITHUB_RUN_ID":     "991",
			"GITHUB_EVENT_PATH": writeEvent(t, `{"number": 42, "pull_request": {"number": 42}}`),
		}))
		require.NoError(t, err)
		assert.Equal(t, Event{
			Name:     "pull_request",
			Owner:    "acme",
			Repo:     "shop",
			PRNumber: 42,
			APIURL:   "https://ghe.example.com/api/v3",
			RunID:    "991",
		}, event)
		assert.True(t, event.IsPullRequest())
	})

	t.Run("repository from payload", func(t *testing.T) {
		event, err := LoadEvent(envOf(map[string]string{
			"GITHUB_EVENT_NAME": "pull_request_target",
			"GITHUB_EVENT_PATH": writeEvent(t, `{"number": 7, "repository": {"name": "shop", "owner": {"login": "acme"}}}`),
		}))
		require.NoError(t, err)
		assert.Equal(t, "acme", event.Owner)
		assert.Equal(t, "shop", event.Repo)
		assert.Equal(t, 7, event.PRNumber)
		assert.True(t, event.IsPullRequest())
	})

	t.Run("push", func(t *testing.T) {
		event, err := LoadEvent(envOf(map[string]string{
			"GITHUB_EVENT_NAME": "push",
			"GITHUB_REPOSITORY": "acme/shop",
			"GITHUB_EVENT_PATH": writeEvent(t, `{"number": 3, "ref": "refs/heads/main"}`),
		}))
		require.NoError(t, err)
		assert.Zero(t, event.PRNumber)
		assert.False(t, event.IsPullRequest())
	})

	t.Run("outside actions", func(t *testing.T) {
		event, err := LoadEvent(envOf(nil))
		require.NoError(t, err)
		assert.Equal(t, Event{}, event)
	})

	t.Run("broken payload", func(t *testing.T) {
		_, err := LoadEvent(envOf(map[string]string{"GITHUB_EVENT_PATH": writeEvent(t, `{`)}))
		assert.ErrorContains(t, err, "failed to parse event payload")

		_, err = LoadEvent(envOf(map[string]string{"GITHUB_EVENT_PATH": "/nonexistent/event.json"}))
		assert.ErrorContains(t, err, "failed to read event payload")
	})
}

func TestOutputWriter(t *testing.T) {
	t.Run("output file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "output")
		w := NewOutputWriter(envOf(map[string]string{"GITHUB_OUTPUT": path}), nil)

		require.NoError(t, w.Set("trivy-high", "3"))
		require.NoError(t, w.Set("has-blockers", "true"))
		require.NoError(t, w.Set("notes", "line one\nline two"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		require.Len(t, lines, 6)
		assert.Equal(t, "trivy-high=3", lines[0])
		assert.Equal(t, "has-blockers=true", lines[1])

		name, delimiter, ok := strings.Cut(lines[2], "<<")
		require.True(t, ok)
		assert.Equal(t, "notes", name)
		assert.True(t, strings.HasPrefix(delimiter, "ghadelimiter_"))
		assert.Equal(t, []string{"line one", "line two", delimiter}, lines[3:])
	})

	t.Run("stdout fallback", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewOutputWriter(envOf(nil), &buf)
		require.NoError(t, w.Set("comment-url", "https://github.com/placeholder"))
		assert.Equal(t, "comment-url=https://github.com/placeholder\n", buf.String())
	})
}

func TestAppendStepSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.md")
	env := envOf(map[string]string{"GITHUB_STEP_SUMMARY": path})

	require.NoError(t, AppendStepSummary(env, "### First"))
	require.NoError(t, AppendStepSummary(env, "### Second\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "### First\n### Second\n", string(data))

	assert.NoError(t, AppendStepSummary(envOf(nil), "ignored"))
}

func TestSetFailed(t *testing.T) {
	var buf bytes.Buffer
	SetFailed(&buf, envOf(map[string]string{"GITHUB_ACTIONS": "true"}), "DevSecOps PR Gate: Found HIGH or higher severity issues")
	assert.Equal(t, "::error::DevSecOps PR Gate: Found HIGH or higher severity issues\n", buf.String())

	buf.Reset()
	SetFailed(&buf, envOf(nil), "blocked")
	assert.Equal(t, "blocked\n", buf.String())
}
