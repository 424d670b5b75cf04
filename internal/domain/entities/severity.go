// Package entities defines core domain models and data structures.
package entities

import "strings"

// Severity represents the normalized severity of a scanner finding.
// Values are lowercase to match what the scanners emit once lower-cased.
type Severity string

// Severity levels, most severe first
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity maps a raw scanner severity to a Severity.
// The second return value is false for empty, "unknown", "null" or any other
// unrecognized input; callers must then apply a default.
func ParseSeverity(raw string) (Severity, bool) {
	switch s := Severity(strings.ToLower(strings.TrimSpace(raw))); s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return s, true
	default:
		return "", false
	}
}

// IsValid reports whether s is one of the four concrete levels.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank returns a sortable weight: critical=4, high=3, medium=2, low=1, anything else 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Label returns the upper-case form used in reports.
func (s Severity) Label() string {
	return strings.ToUpper(string(s))
}

func (s Severity) String() string {
	return string(s)
}
