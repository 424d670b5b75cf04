package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ochairo/prgate/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/prgate/internal/domain-orchestrators"
	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/services"
	"github.com/ochairo/prgate/internal/external-adapters/actions"
	"github.com/ochairo/prgate/internal/external-adapters/console"
	"github.com/ochairo/prgate/internal/external-adapters/inputs"
	"github.com/ochairo/prgate/internal/external-adapters/telemetry"
	"github.com/ochairo/prgate/internal/external-adapters/yaml"
)

// scanOptions are the resolved inputs of a gate run
type scanOptions struct {
	request        orchestrators.RunRequest
	reportsDir     string
	token          string
	installMissing bool
	signingKey     string
	mirrors        map[entities.ToolName]string
	otelEndpoint   string
	metrics        bool
	bucket         string
	prefix         string
	region         string
	severity       entities.SeverityDefaults
}

func runScan(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	defaults := inputs.Defaults()
	for _, name := range []string{
		inputs.PathsApp, inputs.PathsIaC, inputs.FailOn, inputs.OPAPolicyPath,
		inputs.TrivyVersion, inputs.CheckovVersion, inputs.ConftestVersion,
		inputs.TrivyArgs, inputs.CheckovArgs, inputs.ConftestArgs,
		inputs.CommentTitle, inputs.GitHubToken, inputs.ReportsDir,
		inputs.InstallMissing, inputs.SigningKey, inputs.TrivyMirror, inputs.ConftestMirror,
		inputs.OTelEndpoint, inputs.Metrics,
		inputs.ArtifactBucket, inputs.ArtifactPrefix, inputs.ArtifactRegion,
		inputs.ConfigFile,
	} {
		fs.String(name, defaults[name], scanFlagHelp[name])
	}
	timeout := fs.Duration("timeout", 0, "Cancel the run after this long (0 = no limit)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: prgate scan [options]

Scan application code with Trivy and infrastructure code with Checkov and
Conftest, publish the report on the pull request and fail when findings at or
above the threshold exist.

Each option can also come from a workflow input (INPUT_FAIL-ON) or the
"inputs:" map of .prgate.yml, in that order of precedence after flags.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  prgate scan
  prgate scan --fail-on critical --paths-app services/
  prgate scan --install-missing true --trivy-args "--skip-dirs vendor"
`)
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return exitPass
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return exitUsage
	}

	logger := actions.NewWorkflowLogger(os.Stdout, os.Getenv)

	opts, err := resolveScanOptions(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	result, err := executeScan(ctx, opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DevSecOps PR Gate failed: %v\n", err)
		return exitFailed
	}

	fmt.Fprint(os.Stderr, console.Summary(opts.request.Title, result.Outcomes, result.Gate, result.Threshold))

	if result.Gate.Blocking {
		actions.SetFailed(os.Stdout, os.Getenv, result.BlockMessage)
		return exitFailed
	}
	return exitPass
}

// resolveScanOptions layers flags, workflow inputs, the config file and defaults
func resolveScanOptions(fs *pflag.FlagSet) (*scanOptions, error) {
	flagsAndEnv := inputs.NewResolver(
		inputs.NewFlagSource(fs),
		inputs.NewActionsSource(os.Getenv),
		inputs.NewMapSource("default", inputs.Defaults()),
	)
	config, err := yaml.NewConfigParser().LoadFile(flagsAndEnv.String(inputs.ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	r := inputs.NewResolver(
		inputs.NewFlagSource(fs),
		inputs.NewActionsSource(os.Getenv),
		inputs.NewMapSource("config file", config.Inputs),
		inputs.NewMapSource("default", inputs.Defaults()),
	)

	tools := map[string]*orchestrators.ToolSettings{}
	request := orchestrators.RunRequest{
		AppPath:    r.String(inputs.PathsApp),
		IaCPath:    r.String(inputs.PathsIaC),
		PolicyPath: r.String(inputs.OPAPolicyPath),
		Threshold:  entities.ParseThreshold(r.String(inputs.FailOn)),
		Title:      r.String(inputs.CommentTitle),
	}
	tools[inputs.TrivyArgs] = &request.Trivy
	tools[inputs.CheckovArgs] = &request.Checkov
	tools[inputs.ConftestArgs] = &request.Conftest

	for option, settings := range tools {
		args, err := gateways.SplitArgs(r.String(option))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", option, err)
		}
		settings.Args = args
	}
	request.Trivy.Version = r.String(inputs.TrivyVersion)
	request.Checkov.Version = r.String(inputs.CheckovVersion)
	request.Conftest.Version = r.String(inputs.ConftestVersion)

	installMissing, err := r.Bool(inputs.InstallMissing)
	if err != nil {
		return nil, err
	}
	metrics, err := r.Bool(inputs.Metrics)
	if err != nil {
		return nil, err
	}

	token := r.String(inputs.GitHubToken)
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	return &scanOptions{
		request:        request,
		reportsDir:     r.String(inputs.ReportsDir),
		token:          token,
		installMissing: installMissing,
		signingKey:     r.String(inputs.SigningKey),
		mirrors: map[entities.ToolName]string{
			entities.ToolTrivy: r.String(inputs.TrivyMirror),
			entities.ToolOPA:   r.String(inputs.ConftestMirror),
		},
		otelEndpoint: r.String(inputs.OTelEndpoint),
		metrics:      metrics,
		bucket:       r.String(inputs.ArtifactBucket),
		prefix:       r.String(inputs.ArtifactPrefix),
		region:       r.String(inputs.ArtifactRegion),
		severity:     config.Severity,
	}, nil
}

func executeScan(ctx context.Context, opts *scanOptions, logger interfaces.Logger) (*orchestrators.RunResult, error) {
	event, err := actions.LoadEvent(os.Getenv)
	if err != nil {
		logger.Warn("Could not read workflow event", interfaces.F("error", err.Error()))
	}

	// Layer 1: gateways (infrastructure)
	scannerDeps := gateways.ScannerDeps{
		Runner:   gateways.NewCommandRunner(logger),
		FS:       gateways.NewOSFileSystem(),
		Logger:   logger,
		Severity: opts.severity,
	}
	if opts.installMissing {
		if err := attachInstaller(opts, &scannerDeps, logger); err != nil {
			logger.Warn("Scanner installation disabled", interfaces.F("error", err.Error()))
		}
	}

	telOpts := telemetryOptions(opts, logger)
	tel, err := telemetry.New(ctx, telOpts)
	if err != nil {
		logger.Warn("Tracing disabled", interfaces.F("error", err.Error()))
		telOpts.Endpoint = ""
		// without an endpoint New only builds the no-op tracer and cannot fail
		tel, _ = telemetry.New(ctx, telOpts)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tel.Close(closeCtx); err != nil {
			logger.Warn("Telemetry export failed", interfaces.F("error", err.Error()))
		}
	}()

	deps := orchestrators.GateDeps{
		Trivy:     gateways.NewTrivyScanner(scannerDeps),
		Checkov:   gateways.NewCheckovScanner(scannerDeps),
		Conftest:  gateways.NewConftestScanner(scannerDeps),
		Gate:      services.NewGateService(),
		Artifacts: gateways.NewArtifactStore(opts.reportsDir, scannerDeps.FS),
		Telemetry: tel,
		Logger:    logger,
	}

	switch {
	case !event.IsPullRequest():
		logger.Warn("Not a pull request event, the report will not be posted", interfaces.F("event", event.Name))
	case opts.token == "":
		logger.Warn("No GitHub token available, the report will not be posted")
	default:
		sink, err := gateways.NewGitHubCommentSink(gateways.GitHubSinkConfig{
			Token:     opts.token,
			Owner:     event.Owner,
			Repo:      event.Repo,
			PRNumber:  event.PRNumber,
			BaseURL:   event.APIURL,
			UserAgent: "prgate/" + version,
			Logger:    logger,
		})
		if err != nil {
			logger.Warn("Report publishing disabled", interfaces.F("error", err.Error()))
		} else {
			deps.Sink = sink
		}
	}

	if opts.bucket != "" {
		uploader, err := gateways.NewS3ArtifactUploader(ctx, gateways.S3UploaderConfig{
			Bucket: opts.bucket,
			Prefix: opts.prefix,
			Region: opts.region,
			FS:     scannerDeps.FS,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("Artifact upload disabled", interfaces.F("error", err.Error()))
		} else {
			deps.Uploader = uploader
		}
	}

	// Layer 2: orchestrator (use case)
	orch := orchestrators.NewGateOrchestrator(deps)
	result, err := orch.Run(ctx, opts.request)
	if err != nil {
		return nil, err
	}

	outputs := actions.NewOutputWriter(os.Getenv, os.Stdout)
	for _, out := range result.Outputs() {
		if err := outputs.Set(out.Name, out.Value); err != nil {
			logger.Warn("Failed to set output", interfaces.F("name", out.Name), interfaces.F("error", err.Error()))
		}
	}
	if err := actions.AppendStepSummary(os.Getenv, result.Report); err != nil {
		logger.Warn("Failed to write job summary", interfaces.F("error", err.Error()))
	}

	return result, nil
}

// attachInstaller builds the installer and puts its directory first on PATH
func attachInstaller(opts *scanOptions, deps *gateways.ScannerDeps, logger interfaces.Logger) error {
	installDir, err := gateways.DefaultInstallDir()
	if err != nil {
		return err
	}

	cfg := gateways.ToolInstallerConfig{
		InstallDir:   installDir,
		Mirrors:      opts.mirrors,
		GitHubAPIURL: os.Getenv("GITHUB_API_URL"),
		Token:        opts.token,
		Runner:       deps.Runner,
		Logger:       logger,
	}
	if opts.signingKey != "" {
		verifier, err := gateways.NewGPGVerifier(opts.signingKey)
		if err != nil {
			return err
		}
		cfg.Verifier = verifier
	}

	installer, err := gateways.NewToolInstaller(cfg)
	if err != nil {
		return err
	}

	path := os.Getenv("PATH")
	if !strings.Contains(string(filepath.ListSeparator)+path+string(filepath.ListSeparator),
		string(filepath.ListSeparator)+installDir+string(filepath.ListSeparator)) {
		if err := os.Setenv("PATH", installDir+string(filepath.ListSeparator)+path); err != nil {
			return fmt.Errorf("failed to update PATH: %w", err)
		}
	}
	deps.Provisioner = installer
	return nil
}

func telemetryOptions(opts *scanOptions, logger interfaces.Logger) telemetry.Options {
	to := telemetry.Options{ServiceVersion: version, Logger: logger}
	if opts.otelEndpoint != "" {
		// accept both host:port and http(s):// URLs; plain http means no TLS
		endpoint := opts.otelEndpoint
		to.Insecure = strings.HasPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
		to.Endpoint = strings.TrimRight(endpoint, "/")
	}
	if opts.metrics {
		to.MetricsPath = filepath.Join(opts.reportsDir, telemetry.MetricsFileName)
	}
	return to
}

var scanFlagHelp = map[string]string{
	inputs.PathsApp:        "Application directory scanned by Trivy",
	inputs.PathsIaC:        "Infrastructure directory scanned by Checkov and Conftest",
	inputs.FailOn:          "Lowest severity that blocks the merge: critical, high or off",
	inputs.OPAPolicyPath:   "Rego policy directory for Conftest",
	inputs.TrivyVersion:    "Trivy version to install when missing (or latest)",
	inputs.CheckovVersion:  "Checkov version to install when missing (or latest)",
	inputs.ConftestVersion: "Conftest version to install when missing (or latest)",
	inputs.TrivyArgs:       "Extra arguments for trivy fs",
	inputs.CheckovArgs:     "Extra arguments for checkov",
	inputs.ConftestArgs:    "Extra arguments for conftest test",
	inputs.CommentTitle:    "Heading of the pull request report",
	inputs.GitHubToken:     "Token used to post the report (default $GITHUB_TOKEN)",
	inputs.ReportsDir:      "Directory for the run summary and metrics",
	inputs.InstallMissing:  "Download scanners that are not on PATH",
	inputs.SigningKey:      "OpenPGP public key that must have signed downloaded scanners",
	inputs.TrivyMirror:     "Fallback base URL for Trivy release downloads",
	inputs.ConftestMirror:  "Fallback base URL for Conftest release downloads",
	inputs.OTelEndpoint:    "OTLP/gRPC collector for run traces",
	inputs.Metrics:         "Write Prometheus metrics next to the summary",
	inputs.ArtifactBucket:  "S3 bucket receiving a copy of the summary",
	inputs.ArtifactPrefix:  "Key prefix inside the artifact bucket",
	inputs.ArtifactRegion:  "AWS region of the artifact bucket",
	inputs.ConfigFile:      "Repository configuration file",
}
