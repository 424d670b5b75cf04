// Package inputs resolves gate options from flags, Actions inputs, the
// repository config file and built-in defaults.
package inputs

// Option names, shared by flags, Actions inputs and .prgate.yml
const (
	PathsApp        = "paths-app"
	PathsIaC        = "paths-iac"
	FailOn          = "fail-on"
	OPAPolicyPath   = "opa-policy-path"
	TrivyVersion    = "trivy-version"
	CheckovVersion  = "checkov-version"
	ConftestVersion = "conftest-version"
	TrivyArgs       = "trivy-args"
	CheckovArgs     = "checkov-args"
	ConftestArgs    = "conftest-args"
	CommentTitle    = "comment-title"
	GitHubToken     = "github-token"
	ReportsDir      = "reports-dir"
	InstallMissing  = "install-missing"
	SigningKey      = "signing-key"
	TrivyMirror     = "trivy-mirror"
	ConftestMirror  = "conftest-mirror"
	OTelEndpoint    = "otel-endpoint"
	Metrics         = "metrics"
	ArtifactBucket  = "artifact-bucket"
	ArtifactPrefix  = "artifact-prefix"
	ArtifactRegion  = "artifact-region"
	ConfigFile      = "config"
)

// Defaults returns the built-in option values. Scanner versions are left to
// the installer's own defaults.
func Defaults() map[string]string {
	return map[string]string{
		PathsApp:       "app/",
		PathsIaC:       "infra/",
		FailOn:         "high",
		OPAPolicyPath:  "policies/conftest",
		CommentTitle:   "DevSecOps PR Gate",
		ReportsDir:     "devsecops-reports",
		InstallMissing: "false",
		Metrics:        "true",
		ArtifactPrefix: "prgate",
		ConfigFile:     ".prgate.yml",
	}
}
