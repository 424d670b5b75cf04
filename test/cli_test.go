package test_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

var (
	buildOnce sync.Once
	cliPath   string
	errBuild  error
)

// buildCLI builds the prgate CLI binary once per test run
func buildCLI(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake scanners are shell scripts")
	}

	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "prgate-cli")
		if err != nil {
			errBuild = err
			return
		}
		cliPath = filepath.Join(dir, "prgate")

		cmd := exec.Command("go", "build", "-o", cliPath, "../cmd/prgate") // #nosec G204 -- test code with controlled input
		if output, err := cmd.CombinedOutput(); err != nil {
			errBuild = fmt.Errorf("%w\nOutput: %s", err, output)
		}
	})
	if errBuild != nil {
		t.Fatalf("Failed to build CLI: %v", errBuild)
	}
	return cliPath
}

const fakeTrivy = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  shift
done
cat > "$out" <<JSON
{"Results":[{"Target":"go.sum","Vulnerabilities":[
  {"VulnerabilityID":"CVE-2024-0001","PkgName":"golang.org/x/net","Severity":"${FAKE_TRIVY_SEVERITY:-HIGH}","Title":"request smuggling"},
  {"VulnerabilityID":"CVE-2024-0002","PkgName":"golang.org/x/text","Severity":"LOW","Title":"panic"}
]}]}
JSON
`

const fakeCheckov = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output-file-path" ]; then out="$2"; fi
  shift
done
cat > "$out/results_json.json" <<'JSON'
{"check_type":"terraform","results":{"failed_checks":[
  {"check_id":"CKV_AWS_20","check_name":"S3 bucket is public","severity":"MEDIUM","resource":"aws_s3_bucket.logs"}
]}}
JSON
exit 1
`

const fakeConftest = `#!/bin/sh
cat <<'JSON'
[{"filename":"main.tf","namespace":"terraform.tags","failures":[{"msg":"missing owner tag"}]}]
JSON
exit 1
`

// workspace is a repository checkout with fake scanners on PATH
type workspace struct {
	dir string
	bin string
	env []string
}

func newWorkspace(t *testing.T, scanners bool) *workspace {
	t.Helper()
	ws := &workspace{dir: t.TempDir(), bin: t.TempDir()}

	for _, dir := range []string{"app", "infra", "policies/conftest"} {
		if err := os.MkdirAll(filepath.Join(ws.dir, dir), 0750); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	writeFile(t, filepath.Join(ws.dir, "infra", "main.tf"), `resource "aws_s3_bucket" "logs" {}`, 0600)

	if scanners {
		writeFile(t, filepath.Join(ws.bin, "trivy"), fakeTrivy, 0700)
		writeFile(t, filepath.Join(ws.bin, "checkov"), fakeCheckov, 0700)
		writeFile(t, filepath.Join(ws.bin, "conftest"), fakeConftest, 0700)
	}

	// keep the host's Actions context out of the run
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "GITHUB_") || strings.HasPrefix(key, "INPUT_") ||
			strings.HasPrefix(key, "RUNNER_") || key == "PATH" || key == "HOME" {
			continue
		}
		ws.env = append(ws.env, kv)
	}
	path := ws.bin
	if scanners {
		// the fake scanners need cat
		path += string(os.PathListSeparator) + "/usr/bin" + string(os.PathListSeparator) + "/bin"
	}
	ws.env = append(ws.env,
		"PATH="+path,
		"HOME="+t.TempDir(),
		"GITHUB_OUTPUT="+filepath.Join(ws.dir, "github-output"),
	)
	return ws
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func (ws *workspace) run(t *testing.T, env []string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(buildCLI(t), args...) // #nosec G204 -- test code with controlled input
	cmd.Dir = ws.dir
	cmd.Env = append(append([]string{}, ws.env...), env...)
	output, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return string(output), 0
	case errors.As(err, &exitErr):
		return string(output), exitErr.ExitCode()
	default:
		t.Fatalf("Failed to run CLI: %v", err)
		return "", -1
	}
}

func (ws *workspace) outputs(t *testing.T) map[string]string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(ws.dir, "github-output"))
	if err != nil {
		t.Fatalf("Failed to read outputs: %v", err)
	}
	outputs := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		if name, value, ok := strings.Cut(line, "="); ok {
			outputs[name] = value
		}
	}
	return outputs
}

func (ws *workspace) summary(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(ws.dir, "devsecops-reports", "devsecops-summary.json"))
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Invalid summary JSON: %v", err)
	}
	return doc
}

func TestCLI_Help(t *testing.T) {
	ws := newWorkspace(t, false)

	for _, args := range [][]string{{"--help"}, {"scan", "--help"}, {"render", "--help"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			output, code := ws.run(t, nil, args...)
			if code != 0 {
				t.Errorf("Help exited with %d", code)
			}
			if !strings.Contains(output, "Usage") {
				t.Errorf("Expected usage information, got:\n%s", output)
			}
		})
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	ws := newWorkspace(t, false)

	tests := []struct {
		name string
		args []string
		env  []string
	}{
		{name: "unknown command", args: []string{"deploy"}},
		{name: "unknown flag", args: []string{"scan", "--no-such-flag"}},
		{name: "bad boolean input", args: []string{"scan"}, env: []string{"INPUT_INSTALL-MISSING=maybe"}},
		{name: "unterminated quote", args: []string{"scan", "--trivy-args", `--skip-dirs "vendor`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, code := ws.run(t, tt.env, tt.args...)
			if code != 2 {
				t.Errorf("Exit code = %d, want 2\nOutput: %s", code, output)
			}
		})
	}
}

func TestCLI_ScanBlocksOnHigh(t *testing.T) {
	ws := newWorkspace(t, true)

	output, code := ws.run(t, nil, "scan")
	if code != 1 {
		t.Fatalf("Exit code = %d, want 1\nOutput: %s", code, output)
	}
	if !strings.Contains(output, "Found HIGH or higher severity issues") {
		t.Errorf("Expected block message in output:\n%s", output)
	}

	outputs := ws.outputs(t)
	want := map[string]string{
		"trivy-high":       "1",
		"trivy-critical":   "0",
		"checkov-high":     "0",
		"checkov-critical": "0",
		"opa-deny-count":   "1",
		"has-blockers":     "true",
		"comment-url":      "https://github.com/placeholder",
	}
	for name, value := range want {
		if got, ok := outputs[name]; !ok || got != value {
			t.Errorf("output %s = %q, want %q", name, got, value)
		}
	}

	counts := ws.summary(t)["summary"].(map[string]any)
	if got := counts["trivy"].(map[string]any)["total"]; got != float64(2) {
		t.Errorf("trivy total = %v, want 2", got)
	}
	if got := counts["checkov"].(map[string]any)["medium"]; got != float64(1) {
		t.Errorf("checkov medium = %v, want 1", got)
	}
	if got := counts["opa"].(map[string]any)["denyCount"]; got != float64(1) {
		t.Errorf("opa denyCount = %v, want 1", got)
	}

	if _, err := os.Stat(filepath.Join(ws.dir, "devsecops-reports", "devsecops-metrics.prom")); err != nil {
		t.Errorf("Expected metrics file: %v", err)
	}
}

func TestCLI_ScanThresholdSources(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		env    []string
		config string
		want   int
	}{
		{name: "critical flag", args: []string{"--fail-on", "critical"}, want: 0},
		{name: "off workflow input", env: []string{"INPUT_FAIL-ON=off"}, want: 0},
		{name: "config file", config: "inputs:\n  fail-on: critical\n", want: 0},
		{name: "flag beats workflow input", args: []string{"--fail-on", "high"}, env: []string{"INPUT_FAIL-ON=off"}, want: 1},
		{name: "critical finding under critical", args: []string{"--fail-on", "critical"}, env: []string{"FAKE_TRIVY_SEVERITY=CRITICAL"}, want: 1},
		{name: "unknown threshold means high", args: []string{"--fail-on", "medium"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newWorkspace(t, true)
			if tt.config != "" {
				writeFile(t, filepath.Join(ws.dir, ".prgate.yml"), tt.config, 0600)
			}

			output, code := ws.run(t, tt.env, append([]string{"scan"}, tt.args...)...)
			if code != tt.want {
				t.Errorf("Exit code = %d, want %d\nOutput: %s", code, tt.want, output)
			}
			if got := ws.outputs(t)["has-blockers"]; got != fmt.Sprint(tt.want == 1) {
				t.Errorf("has-blockers = %q", got)
			}
		})
	}
}

func TestCLI_ScanWithoutScanners(t *testing.T) {
	ws := newWorkspace(t, false)

	output, code := ws.run(t, nil, "scan")
	if code != 0 {
		t.Fatalf("Exit code = %d, want 0\nOutput: %s", code, output)
	}
	if !strings.Contains(output, "All security checks passed") {
		t.Errorf("Expected passing summary:\n%s", output)
	}
	if got := ws.outputs(t)["trivy-high"]; got != "0" {
		t.Errorf("trivy-high = %q, want 0", got)
	}
}

func TestCLI_ScanPostsPullRequestComment(t *testing.T) {
	ws := newWorkspace(t, true)

	var (
		mu       sync.Mutex
		posted   string
		authSeen string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/shop/issues/42/comments":
			_, _ = w.Write([]byte(`[]`))
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/shop/issues/42/comments":
			var payload struct {
				Body string `json:"body"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			posted = payload.Body
			authSeen = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":7,"html_url":"https://github.com/acme/shop/pull/42#issuecomment-7"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	eventPath := filepath.Join(ws.dir, "event.json")
	writeFile(t, eventPath, `{"number":42,"pull_request":{"number":42},"repository":{"name":"shop","owner":{"login":"acme"}}}`, 0600)

	output, code := ws.run(t, []string{
		"GITHUB_EVENT_NAME=pull_request",
		"GITHUB_EVENT_PATH=" + eventPath,
		"GITHUB_REPOSITORY=acme/shop",
		"GITHUB_API_URL=" + server.URL,
		"GITHUB_TOKEN=test-token",
	}, "scan", "--comment-title", "Security Gate")
	if code != 1 {
		t.Fatalf("Exit code = %d, want 1\nOutput: %s", code, output)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(posted, "### Security Gate") {
		t.Errorf("Posted comment missing title:\n%s", posted)
	}
	if !strings.Contains(posted, "CVE-2024-0001") {
		t.Errorf("Posted comment missing finding:\n%s", posted)
	}
	if !strings.Contains(authSeen, "test-token") {
		t.Errorf("Authorization header = %q", authSeen)
	}
	if got := ws.outputs(t)["comment-url"]; got != "https://github.com/acme/shop/pull/42#issuecomment-7" {
		t.Errorf("comment-url = %q", got)
	}
}

func TestCLI_Render(t *testing.T) {
	ws := newWorkspace(t, true)
	if _, code := ws.run(t, nil, "scan"); code != 1 {
		t.Fatalf("scan exit code = %d, want 1", code)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "report only", args: []string{"render"}, want: 0},
		{name: "check under high", args: []string{"render", "--check"}, want: 1},
		{name: "check under critical", args: []string{"render", "--check", "--fail-on", "critical"}, want: 0},
		{name: "missing summary", args: []string{"render", "--summary", "nope.json"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, code := ws.run(t, nil, tt.args...)
			if code != tt.want {
				t.Errorf("Exit code = %d, want %d\nOutput: %s", code, tt.want, output)
			}
			if tt.name == "report only" && !strings.Contains(output, "### DevSecOps PR Gate") {
				t.Errorf("Expected report heading:\n%s", output)
			}
		})
	}
}
