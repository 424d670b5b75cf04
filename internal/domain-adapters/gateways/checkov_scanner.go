package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

// checkov names its JSON report after the output format
const checkovResultsFile = "results_json.json"

type checkovReport struct {
	CheckType string `json:"check_type"`
	Results   struct {
		FailedChecks []checkovFailedCheck `json:"failed_checks"`
	} `json:"results"`
}

type checkovFailedCheck struct {
	CheckID   string  `json:"check_id"`
	CheckName string  `json:"check_name"`
	Severity  *string `json:"severity"`
	Resource  string  `json:"resource"`
}

// checkovScanner runs Checkov against an infrastructure-as-code directory
type checkovScanner struct {
	deps ScannerDeps
}

// NewCheckovScanner creates the misconfiguration scanner adapter
func NewCheckovScanner(deps ScannerDeps) gateways.SeverityScanner {
	return &checkovScanner{deps: deps.withDefaults()}
}

func (s *checkovScanner) Tool() entities.ToolName {
	return entities.ToolCheckov
}

// Scan never fails; problems are logged and yield a zero outcome
func (s *checkovScanner) Scan(ctx context.Context, req gateways.ScanRequest) entities.ScanOutcome {
	outcome, err := s.scan(ctx, req)
	if err != nil {
		s.deps.Logger.Warn("Checkov scan failed", interfaces.F("target", req.Target), interfaces.F("error", err))
		return entities.ScanOutcome{}
	}

	s.deps.Logger.Info("Checkov scan completed",
		interfaces.F("critical", outcome.Critical),
		interfaces.F("high", outcome.High),
		interfaces.F("medium", outcome.Medium),
		interfaces.F("low", outcome.Low))
	return outcome
}

func (s *checkovScanner) scan(ctx context.Context, req gateways.ScanRequest) (entities.ScanOutcome, error) {
	if !s.deps.FS.Exists(req.Target) {
		return entities.ScanOutcome{}, fmt.Errorf("%w: %s", gateways.ErrTargetMissing, req.Target)
	}
	if err := s.deps.ensureAvailable(ctx, entities.ToolCheckov, "checkov", req.Version); err != nil {
		return entities.ScanOutcome{}, err
	}

	outputDir, err := s.deps.FS.TempDir("prgate-checkov")
	if err != nil {
		return entities.ScanOutcome{}, err
	}
	defer func() { _ = s.deps.FS.RemoveAll(outputDir) }()

	args := []string{"-d", req.Target, "--output", "json", "--output-file-path", outputDir}
	args = append(args, req.ExtraArgs...)

	s.deps.Logger.Info("Running Checkov scan", interfaces.F("target", req.Target))
	result := s.deps.Runner.Run(ctx, gateways.Command{Name: "checkov", Args: args})
	if result.Err != nil {
		return entities.ScanOutcome{}, result.Err
	}

	output := filepath.Join(outputDir, checkovResultsFile)
	if !s.deps.FS.Exists(output) {
		return entities.ScanOutcome{}, fmt.Errorf("%w: checkov exited %d without a report: %s",
			gateways.ErrExecution, result.ExitCode, result.Stderr)
	}
	if result.ExitCode != 0 {
		s.deps.Logger.Debug("Checkov reported failed checks", interfaces.F("exit_code", result.ExitCode))
	}

	data, err := s.deps.FS.ReadFile(output)
	if err != nil {
		return entities.ScanOutcome{}, err
	}
	return ParseCheckovReport(data, s.deps.Severity)
}

// ParseCheckovReport normalizes a Checkov JSON report. Checkov writes a single
// object for one framework and an array when several frameworks ran.
func ParseCheckovReport(data []byte, defaults entities.SeverityDefaults) (entities.ScanOutcome, error) {
	var outcome entities.ScanOutcome

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return outcome, nil
	}

	var reports []checkovReport
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &reports); err != nil {
			return entities.ScanOutcome{}, fmt.Errorf("%w: checkov: %w", gateways.ErrMalformedOutput, err)
		}
	} else {
		var single checkovReport
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return entities.ScanOutcome{}, fmt.Errorf("%w: checkov: %w", gateways.ErrMalformedOutput, err)
		}
		reports = append(reports, single)
	}

	for _, report := range reports {
		for _, check := range report.Results.FailedChecks {
			var raw string
			if check.Severity != nil {
				raw = *check.Severity
			}
			outcome.Record(entities.Finding{
				ID:          stringOr(check.CheckID, "Unknown"),
				Severity:    defaults.Resolve(raw, check.CheckID),
				Description: stringOr(check.CheckName, "No description available"),
				Subject:     stringOr(check.Resource, "Unknown"),
			})
		}
	}
	return outcome, nil
}
