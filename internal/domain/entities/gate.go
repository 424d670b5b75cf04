package entities

import "strings"

// ToolName identifies one of the three scanners behind the gate
type ToolName string

// Scanners, in report order
const (
	ToolTrivy   ToolName = "trivy"
	ToolCheckov ToolName = "checkov"
	ToolOPA     ToolName = "opa"
)

// AllTools lists the scanners in the order they appear in reports and outputs.
var AllTools = []ToolName{ToolTrivy, ToolCheckov, ToolOPA}

// DisplayName returns the name shown in the report table.
func (t ToolName) DisplayName() string {
	switch t {
	case ToolTrivy:
		return "Trivy"
	case ToolCheckov:
		return "Checkov"
	case ToolOPA:
		return "OPA"
	default:
		return string(t)
	}
}

// ThresholdPolicy is the minimum severity that blocks a merge
type ThresholdPolicy string

// Threshold policies
const (
	ThresholdCritical ThresholdPolicy = "critical"
	ThresholdHigh     ThresholdPolicy = "high"
	ThresholdOff      ThresholdPolicy = "off"
)

// DefaultThreshold applies when fail-on is unset or unrecognized.
const DefaultThreshold = ThresholdHigh

// ParseThreshold matches case-insensitively. Anything unrecognized, including
// other severity names such as "medium", resolves to ThresholdHigh rather
// than to a non-blocking policy.
func ParseThreshold(raw string) ThresholdPolicy {
	switch p := ThresholdPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case ThresholdCritical, ThresholdHigh, ThresholdOff:
		return p
	default:
		return DefaultThreshold
	}
}

func (p ThresholdPolicy) String() string {
	return string(p)
}

// Status is the pass/fail indicator shown per tool
type Status string

// Tool statuses
const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// GateResult is the derived merge decision of one run. It is never persisted.
type GateResult struct {
	Blocking   bool
	ToolStatus map[ToolName]Status
}

// StatusOf returns the status recorded for a tool, PASS when absent.
func (r GateResult) StatusOf(tool ToolName) Status {
	if s, ok := r.ToolStatus[tool]; ok {
		return s
	}
	return StatusPass
}
