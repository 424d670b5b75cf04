package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

const trivyResultsFile = "trivy-results.json"

// trivyReport mirrors the subset of `trivy fs --format json` we read
type trivyReport struct {
	Results []struct {
		Target          string               `json:"Target"`
		Vulnerabilities []trivyVulnerability `json:"Vulnerabilities"`
	} `json:"Results"`
}

type trivyVulnerability struct {
	VulnerabilityID string `json:"VulnerabilityID"`
	PkgName         string `json:"PkgName"`
	Severity        string `json:"Severity"`
	Title           string `json:"Title"`
	Description     string `json:"Description"`
}

// trivyScanner runs Trivy in filesystem mode
type trivyScanner struct {
	deps ScannerDeps
}

// NewTrivyScanner creates the dependency vulnerability scanner adapter
func NewTrivyScanner(deps ScannerDeps) gateways.SeverityScanner {
	return &trivyScanner{deps: deps.withDefaults()}
}

func (s *trivyScanner) Tool() entities.ToolName {
	return entities.ToolTrivy
}

// Scan never fails; problems are logged and yield a zero outcome
func (s *trivyScanner) Scan(ctx context.Context, req gateways.ScanRequest) entities.ScanOutcome {
	outcome, err := s.scan(ctx, req)
	if err != nil {
		s.deps.Logger.Warn("Trivy scan failed", interfaces.F("target", req.Target), interfaces.F("error", err))
		return entities.ScanOutcome{}
	}

	s.deps.Logger.Info("Trivy scan completed",
		interfaces.F("critical", outcome.Critical),
		interfaces.F("high", outcome.High),
		interfaces.F("medium", outcome.Medium),
		interfaces.F("low", outcome.Low))
	return outcome
}

func (s *trivyScanner) scan(ctx context.Context, req gateways.ScanRequest) (entities.ScanOutcome, error) {
	if !s.deps.FS.Exists(req.Target) {
		return entities.ScanOutcome{}, fmt.Errorf("%w: %s", gateways.ErrTargetMissing, req.Target)
	}
	if err := s.deps.ensureAvailable(ctx, entities.ToolTrivy, "trivy", req.Version); err != nil {
		return entities.ScanOutcome{}, err
	}

	workDir, err := s.deps.FS.TempDir("prgate-trivy")
	if err != nil {
		return entities.ScanOutcome{}, err
	}
	defer func() { _ = s.deps.FS.RemoveAll(workDir) }()

	output := filepath.Join(workDir, trivyResultsFile)
	args := []string{"fs", "--format", "json", "--output", output}
	args = append(args, req.ExtraArgs...)
	args = append(args, req.Target)

	s.deps.Logger.Info("Running Trivy filesystem scan", interfaces.F("target", req.Target))
	result := s.deps.Runner.Run(ctx, gateways.Command{Name: "trivy", Args: args})
	if result.Err != nil {
		return entities.ScanOutcome{}, result.Err
	}
	if result.ExitCode != 0 && !s.deps.FS.Exists(output) {
		return entities.ScanOutcome{}, fmt.Errorf("%w: trivy exited %d: %s",
			gateways.ErrExecution, result.ExitCode, result.Stderr)
	}

	data, err := s.deps.FS.ReadFile(output)
	if err != nil {
		return entities.ScanOutcome{}, err
	}
	return ParseTrivyReport(data, s.deps.Severity)
}

// ParseTrivyReport normalizes a Trivy JSON report.
// An empty document or a report without Results is a clean scan.
func ParseTrivyReport(data []byte, defaults entities.SeverityDefaults) (entities.ScanOutcome, error) {
	var outcome entities.ScanOutcome
	if len(data) == 0 {
		return outcome, nil
	}

	var report trivyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return entities.ScanOutcome{}, fmt.Errorf("%w: trivy: %w", gateways.ErrMalformedOutput, err)
	}

	for _, result := range report.Results {
		for _, v := range result.Vulnerabilities {
			outcome.Record(entities.Finding{
				ID:          stringOr(v.VulnerabilityID, "Unknown"),
				Severity:    defaults.Resolve(v.Severity, v.VulnerabilityID),
				Description: stringOr(v.Description, stringOr(v.Title, "No description available")),
				Subject:     stringOr(v.PkgName, "Unknown"),
			})
		}
	}
	return outcome, nil
}
