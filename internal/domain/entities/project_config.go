package entities

// ProjectConfig is the repository-level configuration file (.prgate.yml)
type ProjectConfig struct {
	// Inputs holds option values keyed by input name (e.g. "fail-on")
	Inputs map[string]string

	// Severity decides the level of untagged findings
	Severity SeverityDefaults
}
