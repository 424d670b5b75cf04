package gateways

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

const conftestSample = `[
  {"filename": "infra/main.tf", "namespace": "main", "successes": 3, "failures": [
    {"msg": "S3 bucket must not be public", "metadata": {"query": "data.main.deny"}},
    {"metadata": {"query": "data.main.deny"}}
  ]},
  {"filename": "infra/network.tf", "namespace": "", "failures": [{"msg": "SSH open to the world"}]},
  {"filename": "infra/vars.tf", "namespace": "main", "failures": null}
]`

func TestParseConftestOutput(t *testing.T) {
	outcome, err := ParseConftestOutput([]byte(conftestSample))
	require.NoError(t, err)

	assert.Equal(t, uint(3), outcome.DenyCount)
	require.Len(t, outcome.Findings, 3)
	assert.Equal(t, entities.PolicyFinding{
		Rule:    "main",
		Message: "S3 bucket must not be public",
		Subject: "infra/main.tf",
	}, outcome.Findings[0])
	assert.Equal(t, `{"metadata": {"query": "data.main.deny"}}`, outcome.Findings[1].Message)
	assert.Equal(t, "deny", outcome.Findings[2].Rule)
	assert.Equal(t, "infra/network.tf", outcome.Findings[2].Subject)
}

func TestParseConftestOutput_EmptyAndMalformed(t *testing.T) {
	for _, doc := range []string{"", "\n", "[]"} {
		outcome, err := ParseConftestOutput([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, entities.PolicyOutcome{}, outcome)
	}

	_, err := ParseConftestOutput([]byte("error: no policies found"))
	assert.True(t, errors.Is(err, gateways.ErrMalformedOutput))
}

func TestConftestScanner_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		stdout   string
		wantDeny uint
	}{
		{"no denies", 0, "[]", 0},
		{"denies found", 1, conftestSample, 3},
		{"execution error ignores stdout", 2, conftestSample, 0},
		{"empty output", 1, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{handle: func(gateways.Command) *gateways.CommandResult {
				return &gateways.CommandResult{ExitCode: tt.exitCode, Stdout: tt.stdout}
			}}
			scanner := NewConftestScanner(ScannerDeps{Runner: runner})

			outcome := scanner.Scan(context.Background(), gateways.PolicyScanRequest{
				Target:     t.TempDir(),
				PolicyPath: "policies/conftest",
			})
			assert.Equal(t, tt.wantDeny, outcome.DenyCount)
		})
	}
}

func TestConftestScanner_ParserSelection(t *testing.T) {
	hclDir := t.TempDir()

	planDir := t.TempDir()
	plan := filepath.Join(planDir, terraformPlanFile)
	require.NoError(t, os.WriteFile(plan, []byte("{}"), 0o600))

	jsonFile := filepath.Join(t.TempDir(), "plan.JSON")
	require.NoError(t, os.WriteFile(jsonFile, []byte("{}"), 0o600))

	tests := []struct {
		name       string
		target     string
		wantTarget string
		wantParser string
	}{
		{"hcl directory", hclDir, hclDir, "hcl2"},
		{"directory with terraform plan", planDir, plan, "json"},
		{"json file", jsonFile, jsonFile, "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			scanner := NewConftestScanner(ScannerDeps{Runner: runner})

			scanner.Scan(context.Background(), gateways.PolicyScanRequest{
				Target:     tt.target,
				PolicyPath: "policies",
				ExtraArgs:  []string{"--all-namespaces"},
			})

			cmd := runner.lastCommand()
			assert.Equal(t, "conftest", cmd.Name)
			assert.Equal(t, []string{
				"test", tt.wantTarget, "--policy", "policies", "--parser", tt.wantParser, "--output", "json", "--all-namespaces",
			}, cmd.Args)
		})
	}
}

func TestConftestScanner_MissingTarget(t *testing.T) {
	runner := &fakeRunner{}
	scanner := NewConftestScanner(ScannerDeps{Runner: runner})

	outcome := scanner.Scan(context.Background(), gateways.PolicyScanRequest{Target: "/nonexistent/infra", PolicyPath: "p"})

	assert.Equal(t, entities.PolicyOutcome{}, outcome)
	assert.Empty(t, runner.commands)
}
