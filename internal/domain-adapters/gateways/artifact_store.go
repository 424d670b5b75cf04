package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

const (
	// DefaultReportsDir is where run artifacts are written, relative to the workspace
	DefaultReportsDir = "devsecops-reports"
	// SummaryFileName is the machine-readable run summary
	SummaryFileName = "devsecops-summary.json"
)

// summaryDocument is the on-disk shape of the run summary
type summaryDocument struct {
	Timestamp string          `json:"timestamp"`
	RunID     string          `json:"runId,omitempty"`
	Summary   summaryCounts   `json:"summary"`
	Findings  summaryFindings `json:"findings"`
}

type summaryCounts struct {
	Trivy   severityCounts `json:"trivy"`
	Checkov severityCounts `json:"checkov"`
	OPA     policyCounts   `json:"opa"`
}

type severityCounts struct {
	Critical uint `json:"critical"`
	High     uint `json:"high"`
	Medium   uint `json:"medium"`
	Low      uint `json:"low"`
	Total    uint `json:"total"`
}

type policyCounts struct {
	DenyCount uint `json:"denyCount"`
	Total     uint `json:"total"`
}

type summaryFindings struct {
	Trivy   []trivyFindingJSON   `json:"trivy"`
	Checkov []checkovFindingJSON `json:"checkov"`
	OPA     []opaFindingJSON     `json:"opa"`
}

type trivyFindingJSON struct {
	Vulnerability string `json:"vulnerability"`
	Severity      string `json:"severity"`
	Description   string `json:"description"`
	Package       string `json:"package"`
}

type checkovFindingJSON struct {
	Check       string `json:"check"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
}

type opaFindingJSON struct {
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Resource string `json:"resource"`
}

// jsonArtifactStore writes the run summary as indented JSON
type jsonArtifactStore struct {
	dir string
	fs  gateways.FileSystem
}

// NewArtifactStore creates an ArtifactStore writing into dir
func NewArtifactStore(dir string, fs gateways.FileSystem) gateways.ArtifactStore {
	if dir == "" {
		dir = DefaultReportsDir
	}
	if fs == nil {
		fs = NewOSFileSystem()
	}
	return &jsonArtifactStore{dir: dir, fs: fs}
}

// WriteSummary writes <dir>/devsecops-summary.json and returns its path
func (s *jsonArtifactStore) WriteSummary(_ context.Context, outcomes entities.Outcomes, meta gateways.SummaryMeta) (string, error) {
	data, err := MarshalSummary(outcomes, meta)
	if err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(s.dir); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, SummaryFileName)
	if err := s.fs.WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// MarshalSummary renders outcomes in the summary document format
func MarshalSummary(outcomes entities.Outcomes, meta gateways.SummaryMeta) ([]byte, error) {
	timestamp := meta.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	doc := summaryDocument{
		Timestamp: timestamp.UTC().Format(time.RFC3339Nano),
		RunID:     meta.RunID,
		Summary: summaryCounts{
			Trivy:   countsOf(outcomes.Trivy),
			Checkov: countsOf(outcomes.Checkov),
			OPA:     policyCounts{DenyCount: outcomes.OPA.DenyCount, Total: outcomes.OPA.DenyCount},
		},
		Findings: summaryFindings{
			Trivy:   make([]trivyFindingJSON, 0, len(outcomes.Trivy.Findings)),
			Checkov: make([]checkovFindingJSON, 0, len(outcomes.Checkov.Findings)),
			OPA:     make([]opaFindingJSON, 0, len(outcomes.OPA.Findings)),
		},
	}

	for _, f := range outcomes.Trivy.Findings {
		doc.Findings.Trivy = append(doc.Findings.Trivy, trivyFindingJSON{
			Vulnerability: f.ID,
			Severity:      f.Severity.Label(),
			Description:   f.Description,
			Package:       f.Subject,
		})
	}
	for _, f := range outcomes.Checkov.Findings {
		doc.Findings.Checkov = append(doc.Findings.Checkov, checkovFindingJSON{
			Check:       f.ID,
			Severity:    f.Severity.Label(),
			Description: f.Description,
			Resource:    f.Subject,
		})
	}
	for _, f := range outcomes.OPA.Findings {
		doc.Findings.OPA = append(doc.Findings.OPA, opaFindingJSON{
			Rule:     f.Rule,
			Message:  f.Message,
			Resource: f.Subject,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return data, nil
}

// LoadSummary reads a summary document back into outcomes
func LoadSummary(fs gateways.FileSystem, path string) (entities.Outcomes, gateways.SummaryMeta, error) {
	if fs == nil {
		fs = NewOSFileSystem()
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return entities.Outcomes{}, gateways.SummaryMeta{}, err
	}
	return UnmarshalSummary(data)
}

// UnmarshalSummary parses a summary document. Findings beyond the retention
// cap are dropped; counts are taken as written.
func UnmarshalSummary(data []byte) (entities.Outcomes, gateways.SummaryMeta, error) {
	var doc summaryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return entities.Outcomes{}, gateways.SummaryMeta{}, fmt.Errorf("%w: summary: %w", gateways.ErrMalformedOutput, err)
	}

	meta := gateways.SummaryMeta{RunID: doc.RunID}
	if doc.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, doc.Timestamp)
		if err != nil {
			return entities.Outcomes{}, gateways.SummaryMeta{}, fmt.Errorf("%w: summary timestamp: %w", gateways.ErrMalformedOutput, err)
		}
		meta.Timestamp = ts
	}

	outcomes := entities.Outcomes{
		Trivy:   outcomeOf(doc.Summary.Trivy),
		Checkov: outcomeOf(doc.Summary.Checkov),
		OPA:     entities.PolicyOutcome{DenyCount: doc.Summary.OPA.DenyCount},
	}

	for _, f := range doc.Findings.Trivy {
		if len(outcomes.Trivy.Findings) == entities.MaxFindings {
			break
		}
		outcomes.Trivy.Findings = append(outcomes.Trivy.Findings, entities.Finding{
			ID:          f.Vulnerability,
			Severity:    entities.SeverityDefaults{}.Resolve(f.Severity, ""),
			Description: f.Description,
			Subject:     f.Package,
		})
	}
	for _, f := range doc.Findings.Checkov {
		if len(outcomes.Checkov.Findings) == entities.MaxFindings {
			break
		}
		outcomes.Checkov.Findings = append(outcomes.Checkov.Findings, entities.Finding{
			ID:          f.Check,
			Severity:    entities.SeverityDefaults{}.Resolve(f.Severity, ""),
			Description: f.Description,
			Subject:     f.Resource,
		})
	}
	for _, f := range doc.Findings.OPA {
		if len(outcomes.OPA.Findings) == entities.MaxFindings {
			break
		}
		outcomes.OPA.Findings = append(outcomes.OPA.Findings, entities.PolicyFinding{
			Rule:    f.Rule,
			Message: f.Message,
			Subject: f.Resource,
		})
	}

	return outcomes, meta, nil
}

func countsOf(o entities.ScanOutcome) severityCounts {
	return severityCounts{
		Critical: o.Critical,
		High:     o.High,
		Medium:   o.Medium,
		Low:      o.Low,
		Total:    o.Total(),
	}
}

func outcomeOf(c severityCounts) entities.ScanOutcome {
	return entities.ScanOutcome{
		Critical: c.Critical,
		High:     c.High,
		Medium:   c.Medium,
		Low:      c.Low,
	}
}
