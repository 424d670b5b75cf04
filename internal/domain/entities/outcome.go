package entities

// MaxFindings bounds how many findings an outcome keeps for reporting.
// Counters are never capped.
const MaxFindings = 10

// Finding is one normalized issue reported by a severity-aware scanner.
// Subject names the affected package or resource depending on the tool.
type Finding struct {
	ID          string
	Severity    Severity
	Description string
	Subject     string
}

// ScanOutcome aggregates the results of one severity-aware scanner for one run
type ScanOutcome struct {
	Critical uint
	High     uint
	Medium   uint
	Low      uint
	Findings []Finding
}

// Record counts a finding and keeps it while the outcome holds fewer than
// MaxFindings entries.
func (o *ScanOutcome) Record(f Finding) {
	switch f.Severity {
	case SeverityCritical:
		o.Critical++
	case SeverityHigh:
		o.High++
	case SeverityLow:
		o.Low++
	default:
		// callers normalize first; medium is the documented fallback
		o.Medium++
	}

	if len(o.Findings) < MaxFindings {
		o.Findings = append(o.Findings, f)
	}
}

// Total returns the uncapped number of findings across all levels.
func (o ScanOutcome) Total() uint {
	return o.Critical + o.High + o.Medium + o.Low
}

// Count returns the counter for a single level.
func (o ScanOutcome) Count(s Severity) uint {
	switch s {
	case SeverityCritical:
		return o.Critical
	case SeverityHigh:
		return o.High
	case SeverityMedium:
		return o.Medium
	case SeverityLow:
		return o.Low
	default:
		return 0
	}
}

// PolicyFinding is one deny produced by the policy evaluator.
// Policy violations are binary, so there is no severity.
type PolicyFinding struct {
	Rule    string
	Message string
	Subject string
}

// PolicyOutcome aggregates the denies of the policy evaluator for one run
type PolicyOutcome struct {
	DenyCount uint
	Findings  []PolicyFinding
}

// Record counts a deny and keeps it while fewer than MaxFindings are held.
func (o *PolicyOutcome) Record(f PolicyFinding) {
	o.DenyCount++
	if len(o.Findings) < MaxFindings {
		o.Findings = append(o.Findings, f)
	}
}

// Outcomes is the combined result set of one gate run.
// Every tool is always present; a failed scanner contributes a zero outcome.
type Outcomes struct {
	Trivy   ScanOutcome
	Checkov ScanOutcome
	OPA     PolicyOutcome
}

// HasFindings reports whether any tool retained at least one finding.
func (o Outcomes) HasFindings() bool {
	return len(o.Trivy.Findings) > 0 || len(o.Checkov.Findings) > 0 || len(o.OPA.Findings) > 0
}
