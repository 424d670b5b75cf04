// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
	"github.com/ochairo/prgate/internal/domain/interfaces/services"
)

// PlaceholderLocator is emitted as comment-url when the report could not be published
const PlaceholderLocator = "https://github.com/placeholder"

// Telemetry records traces and metrics for a run. Every method is best effort.
type Telemetry interface {
	// StartSpan opens a span named name; the returned func ends it.
	StartSpan(ctx context.Context, name string) (context.Context, func())
	RecordScan(ctx context.Context, tool entities.ToolName, findings uint, elapsed time.Duration)
	RecordRun(ctx context.Context, outcomes entities.Outcomes, result entities.GateResult)
}

// ToolSettings are the per-scanner knobs of a run
type ToolSettings struct {
	Version string
	Args    []string
}

// RunRequest carries the resolved configuration of one gate run
type RunRequest struct {
	AppPath    string
	IaCPath    string
	PolicyPath string
	Threshold  entities.ThresholdPolicy
	Title      string

	Trivy    ToolSettings
	Checkov  ToolSettings
	Conftest ToolSettings
}

// RunResult is everything a run produced
type RunResult struct {
	RunID        string
	Threshold    entities.ThresholdPolicy
	Outcomes     entities.Outcomes
	Gate         entities.GateResult
	Report       string
	CommentURL   string
	SummaryPath  string
	ArtifactURL  string
	BlockMessage string
	Duration     time.Duration
}

// Output is one named run output exposed to the calling workflow
type Output struct {
	Name  string
	Value string
}

// Outputs returns the run outputs in their stable order
func (r *RunResult) Outputs() []Output {
	u := func(n uint) string { return strconv.FormatUint(uint64(n), 10) }
	return []Output{
		{Name: "trivy-high", Value: u(r.Outcomes.Trivy.High)},
		{Name: "trivy-critical", Value: u(r.Outcomes.Trivy.Critical)},
		{Name: "checkov-high", Value: u(r.Outcomes.Checkov.High)},
		{Name: "checkov-critical", Value: u(r.Outcomes.Checkov.Critical)},
		{Name: "opa-deny-count", Value: u(r.Outcomes.OPA.DenyCount)},
		{Name: "has-blockers", Value: strconv.FormatBool(r.Gate.Blocking)},
		{Name: "comment-url", Value: r.CommentURL},
	}
}

// GateDeps are the collaborators of the gate orchestrator.
// Sink, Artifacts, Uploader and Telemetry are optional.
type GateDeps struct {
	Trivy     gateways.SeverityScanner
	Checkov   gateways.SeverityScanner
	Conftest  gateways.PolicyScanner
	Gate      services.GateService
	Sink      gateways.ReportSink
	Artifacts gateways.ArtifactStore
	Uploader  gateways.ArtifactUploader
	Telemetry Telemetry
	Logger    interfaces.Logger

	// Now and NewRunID are overridable for tests
	Now      func() time.Time
	NewRunID func() string
}

// GateOrchestrator runs the scanners, decides the gate and publishes the report
type GateOrchestrator struct {
	deps GateDeps
}

// NewGateOrchestrator creates a new gate orchestrator
func NewGateOrchestrator(deps GateDeps) *GateOrchestrator {
	deps.Logger = interfaces.OrNoOp(deps.Logger)
	if deps.Telemetry == nil {
		deps.Telemetry = noopTelemetry{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = func() string { return uuid.NewString() }
	}
	return &GateOrchestrator{deps: deps}
}

// Run executes one gate run. The returned error is reserved for programming
// errors such as a missing scanner; scanner, sink and artifact failures are
// logged and absorbed. Whether the merge is blocked is reported through
// RunResult.Gate.Blocking.
func (o *GateOrchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if o.deps.Trivy == nil || o.deps.Checkov == nil || o.deps.Conftest == nil || o.deps.Gate == nil {
		return nil, fmt.Errorf("gate orchestrator is missing a scanner or the gate service")
	}

	startTime := o.deps.Now()
	ctx, end := o.deps.Telemetry.StartSpan(ctx, "prgate.run")
	defer end()

	result := &RunResult{
		RunID:     o.deps.NewRunID(),
		Threshold: entities.ParseThreshold(string(req.Threshold)),
	}

	// Step 1: Run the scanners concurrently and wait for all of them
	result.Outcomes = o.scanAll(ctx, req)

	// Step 2: Decide the gate and render the report
	result.Gate = o.deps.Gate.Evaluate(result.Outcomes, result.Threshold)
	result.Report = o.deps.Gate.RenderReport(result.Outcomes, result.Threshold, req.Title)
	if result.Gate.Blocking {
		result.BlockMessage = o.deps.Gate.BlockMessage(result.Threshold)
	}

	// Step 3: Publish (best effort)
	result.CommentURL = o.publish(ctx, req.Title, result.Report)

	// Step 4: Persist the summary artifact (best effort)
	result.SummaryPath, result.ArtifactURL = o.persist(ctx, result)

	o.deps.Telemetry.RecordRun(ctx, result.Outcomes, result.Gate)
	result.Duration = o.deps.Now().Sub(startTime)

	o.deps.Logger.Info("Gate run finished",
		interfaces.F("run_id", result.RunID),
		interfaces.F("threshold", result.Threshold),
		interfaces.F("blocking", result.Gate.Blocking),
		interfaces.F("duration", result.Duration))

	return result, nil
}

// scanAll runs the three adapters as independent tasks joined at a barrier.
// Each task owns its result slot and recovers its own panics, so one broken
// scanner never prevents the others from reporting.
func (o *GateOrchestrator) scanAll(ctx context.Context, req RunRequest) entities.Outcomes {
	var (
		outcomes entities.Outcomes
		wg       sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		outcomes.Trivy = o.runSeverityScan(ctx, o.deps.Trivy, gateways.ScanRequest{
			Target:    req.AppPath,
			Version:   req.Trivy.Version,
			ExtraArgs: req.Trivy.Args,
		})
	}()
	go func() {
		defer wg.Done()
		outcomes.Checkov = o.runSeverityScan(ctx, o.deps.Checkov, gateways.ScanRequest{
			Target:    req.IaCPath,
			Version:   req.Checkov.Version,
			ExtraArgs: req.Checkov.Args,
		})
	}()
	go func() {
		defer wg.Done()
		outcomes.OPA = o.runPolicyScan(ctx, gateways.PolicyScanRequest{
			Target:     req.IaCPath,
			PolicyPath: req.PolicyPath,
			Version:    req.Conftest.Version,
			ExtraArgs:  req.Conftest.Args,
		})
	}()
	wg.Wait()

	return outcomes
}

func (o *GateOrchestrator) runSeverityScan(
	ctx context.Context,
	scanner gateways.SeverityScanner,
	req gateways.ScanRequest,
) (outcome entities.ScanOutcome) {
	tool := scanner.Tool()
	ctx, end := o.deps.Telemetry.StartSpan(ctx, "prgate.scan."+string(tool))
	startTime := o.deps.Now()

	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("Scanner panicked",
				interfaces.F("tool", tool),
				interfaces.F("panic", r),
				interfaces.F("stack", string(debug.Stack())))
			outcome = entities.ScanOutcome{}
		}
		o.deps.Telemetry.RecordScan(ctx, tool, outcome.Total(), o.deps.Now().Sub(startTime))
		end()
	}()

	return scanner.Scan(ctx, req)
}

func (o *GateOrchestrator) runPolicyScan(ctx context.Context, req gateways.PolicyScanRequest) (outcome entities.PolicyOutcome) {
	ctx, end := o.deps.Telemetry.StartSpan(ctx, "prgate.scan."+string(entities.ToolOPA))
	startTime := o.deps.Now()

	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("Scanner panicked",
				interfaces.F("tool", entities.ToolOPA),
				interfaces.F("panic", r),
				interfaces.F("stack", string(debug.Stack())))
			outcome = entities.PolicyOutcome{}
		}
		o.deps.Telemetry.RecordScan(ctx, entities.ToolOPA, outcome.DenyCount, o.deps.Now().Sub(startTime))
		end()
	}()

	return o.deps.Conftest.Scan(ctx, req)
}

// publish hands the report to the sink exactly once and returns its locator
func (o *GateOrchestrator) publish(ctx context.Context, title, report string) string {
	if o.deps.Sink == nil {
		o.deps.Logger.Warn("No report sink configured; skipping comment")
		return PlaceholderLocator
	}

	existing, err := o.deps.Sink.FindExisting(ctx, title)
	if err != nil {
		o.deps.Logger.Warn("Could not look up existing report", interfaces.F("error", err))
		existing = nil
	}

	locator, err := o.deps.Sink.CreateOrUpdate(ctx, existing, report)
	if err != nil {
		o.deps.Logger.Warn("Failed to publish report", interfaces.F("error", err))
		return PlaceholderLocator
	}
	if locator == "" {
		return PlaceholderLocator
	}

	o.deps.Logger.Info("Report published", interfaces.F("url", locator))
	return locator
}

// persist writes the summary artifact and optionally uploads it
func (o *GateOrchestrator) persist(ctx context.Context, result *RunResult) (string, string) {
	if o.deps.Artifacts == nil {
		return "", ""
	}

	path, err := o.deps.Artifacts.WriteSummary(ctx, result.Outcomes, gateways.SummaryMeta{
		RunID:     result.RunID,
		Timestamp: o.deps.Now(),
	})
	if err != nil {
		o.deps.Logger.Warn("Failed to write summary artifact", interfaces.F("error", err))
		return "", ""
	}
	o.deps.Logger.Debug("Summary artifact written", interfaces.F("path", path))

	if o.deps.Uploader == nil {
		return path, ""
	}
	url, err := o.deps.Uploader.Upload(ctx, path, result.RunID)
	if err != nil {
		o.deps.Logger.Warn("Failed to upload summary artifact", interfaces.F("error", err))
		return path, ""
	}
	return path, url
}

type noopTelemetry struct{}

func (noopTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

func (noopTelemetry) RecordScan(context.Context, entities.ToolName, uint, time.Duration) {}

func (noopTelemetry) RecordRun(context.Context, entities.Outcomes, entities.GateResult) {}
