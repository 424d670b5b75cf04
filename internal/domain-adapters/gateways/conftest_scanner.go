package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

// terraformPlanFile is the pre-generated plan picked up from an IaC directory
const terraformPlanFile = "terraform.json"

type conftestResult struct {
	Filename  string            `json:"filename"`
	Namespace string            `json:"namespace"`
	Failures  []json.RawMessage `json:"failures"`
}

type conftestFailure struct {
	Msg *string `json:"msg"`
}

// conftestScanner evaluates OPA policies with Conftest
type conftestScanner struct {
	deps ScannerDeps
}

// NewConftestScanner creates the policy evaluator adapter
func NewConftestScanner(deps ScannerDeps) gateways.PolicyScanner {
	return &conftestScanner{deps: deps.withDefaults()}
}

// Scan never fails; problems are logged and yield a zero outcome
func (s *conftestScanner) Scan(ctx context.Context, req gateways.PolicyScanRequest) entities.PolicyOutcome {
	outcome, err := s.scan(ctx, req)
	if err != nil {
		s.deps.Logger.Warn("Conftest scan failed", interfaces.F("target", req.Target), interfaces.F("error", err))
		return entities.PolicyOutcome{}
	}

	s.deps.Logger.Info("Conftest scan completed", interfaces.F("denies", outcome.DenyCount))
	return outcome
}

func (s *conftestScanner) scan(ctx context.Context, req gateways.PolicyScanRequest) (entities.PolicyOutcome, error) {
	target, parser, err := s.resolveTarget(req.Target)
	if err != nil {
		return entities.PolicyOutcome{}, err
	}
	if err := s.deps.ensureAvailable(ctx, entities.ToolOPA, "conftest", req.Version); err != nil {
		return entities.PolicyOutcome{}, err
	}

	args := []string{"test", target, "--policy", req.PolicyPath, "--parser", parser, "--output", "json"}
	args = append(args, req.ExtraArgs...)

	s.deps.Logger.Info("Running Conftest",
		interfaces.F("target", target),
		interfaces.F("policy", req.PolicyPath),
		interfaces.F("parser", parser))

	result := s.deps.Runner.Run(ctx, gateways.Command{Name: "conftest", Args: args})
	if result.Err != nil {
		return entities.PolicyOutcome{}, result.Err
	}
	// 0: no denies, 1: denies found, anything else is an execution error
	if result.ExitCode > 1 {
		return entities.PolicyOutcome{}, fmt.Errorf("%w: conftest exited %d: %s",
			gateways.ErrExecution, result.ExitCode, stringOr(result.Stderr, "(no stderr)"))
	}

	return ParseConftestOutput([]byte(result.Stdout))
}

// resolveTarget picks the file or directory to test and the matching parser.
// JSON files, including a terraform.json plan inside the directory, use the
// json parser; anything else is parsed as HCL2.
func (s *conftestScanner) resolveTarget(target string) (string, string, error) {
	if !s.deps.FS.Exists(target) {
		return "", "", fmt.Errorf("%w: %s", gateways.ErrTargetMissing, target)
	}
	if strings.HasSuffix(strings.ToLower(target), ".json") {
		return target, "json", nil
	}
	if s.deps.FS.IsDir(target) {
		plan := filepath.Join(target, terraformPlanFile)
		if s.deps.FS.Exists(plan) {
			return plan, "json", nil
		}
	}
	return target, "hcl2", nil
}

// ParseConftestOutput counts every failure of every tested file as one deny.
// Empty output means nothing was denied.
func ParseConftestOutput(data []byte) (entities.PolicyOutcome, error) {
	var outcome entities.PolicyOutcome
	if strings.TrimSpace(string(data)) == "" {
		return outcome, nil
	}

	var results []conftestResult
	if err := json.Unmarshal(data, &results); err != nil {
		return entities.PolicyOutcome{}, fmt.Errorf("%w: conftest: %w", gateways.ErrMalformedOutput, err)
	}

	for _, res := range results {
		for _, raw := range res.Failures {
			outcome.Record(entities.PolicyFinding{
				Rule:    stringOr(res.Namespace, "deny"),
				Message: failureMessage(raw),
				Subject: res.Filename,
			})
		}
	}
	return outcome, nil
}

// failureMessage returns the msg field, or the compact JSON of the entry
func failureMessage(raw json.RawMessage) string {
	var f conftestFailure
	if err := json.Unmarshal(raw, &f); err == nil && f.Msg != nil {
		return *f.Msg
	}
	return strings.TrimSpace(string(raw))
}
