package entities

import "strings"

// SeverityDefaults decides the level of a finding whose scanner did not tag one.
// Untagged findings are never dropped: they fall back to a moderate level
// so that they still show up in the counts.
type SeverityDefaults struct {
	// Fallback applies when no override matches. Zero value means medium.
	Fallback Severity

	// ByID forces a level for specific check identifiers. Keys are upper-case;
	// Merge normalizes them and Resolve upper-cases the id it looks up.
	ByID map[string]Severity
}

// DefaultSeverityDefaults returns the built-in table for Checkov AWS checks
// that ship without a severity in the open-source policy set.
func DefaultSeverityDefaults() SeverityDefaults {
	return SeverityDefaults{
		Fallback: SeverityMedium,
		ByID: map[string]Severity{
			"CKV_AWS_24":  SeverityHigh,   // security group allows ingress 0.0.0.0/0 to port 22
			"CKV_AWS_145": SeverityHigh,   // S3 bucket not encrypted with KMS
			"CKV_AWS_23":  SeverityMedium, // security group rule without description
		},
	}
}

// Resolve returns the normalized level for a raw severity reported for check id.
func (d SeverityDefaults) Resolve(raw, id string) Severity {
	if s, ok := ParseSeverity(raw); ok {
		return s
	}

	if id != "" {
		if s, ok := d.ByID[strings.ToUpper(id)]; ok && s.IsValid() {
			return s
		}
	}

	if d.Fallback.IsValid() {
		return d.Fallback
	}
	return SeverityMedium
}

// Merge returns a copy of d with overrides applied on top.
// Invalid severities in overrides are ignored.
func (d SeverityDefaults) Merge(fallback Severity, overrides map[string]Severity) SeverityDefaults {
	merged := SeverityDefaults{
		Fallback: d.Fallback,
		ByID:     make(map[string]Severity, len(d.ByID)+len(overrides)),
	}
	for id, s := range d.ByID {
		merged.ByID[strings.ToUpper(id)] = s
	}
	for id, s := range overrides {
		if s.IsValid() {
			merged.ByID[strings.ToUpper(id)] = s
		}
	}
	if fallback.IsValid() {
		merged.Fallback = fallback
	}
	return merged
}
