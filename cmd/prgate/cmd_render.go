package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/ochairo/prgate/internal/domain-adapters/gateways"
	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/services"
	"github.com/ochairo/prgate/internal/external-adapters/inputs"
)

func runRender(_ context.Context, args []string) int {
	fs := pflag.NewFlagSet("render", pflag.ContinueOnError)
	var (
		summaryPath = fs.String("summary", filepath.Join(gateways.DefaultReportsDir, gateways.SummaryFileName), "Summary written by a previous scan")
		failOn      = fs.String(inputs.FailOn, inputs.Defaults()[inputs.FailOn], "Lowest severity that blocks the merge: critical, high or off")
		title       = fs.String(inputs.CommentTitle, inputs.Defaults()[inputs.CommentTitle], "Heading of the report")
		check       = fs.Bool("check", false, "Exit with status 1 when the summary would block the merge")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: prgate render [options]

Print the markdown report for a saved run summary, optionally under a
different threshold.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  prgate render
  prgate render --summary artifacts/devsecops-summary.json --fail-on critical --check
`)
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return exitPass
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return exitUsage
	}

	outcomes, meta, err := gateways.LoadSummary(gateways.NewOSFileSystem(), *summaryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailed
	}

	policy := entities.ParseThreshold(*failOn)
	gate := services.NewGateService()
	result := gate.Evaluate(outcomes, policy)

	fmt.Print(gate.RenderReport(outcomes, policy, *title))
	if meta.RunID != "" {
		fmt.Fprintf(os.Stderr, "Rendered run %s from %s\n", meta.RunID, meta.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}

	if *check && result.Blocking {
		fmt.Fprintln(os.Stderr, gate.BlockMessage(policy))
		return exitFailed
	}
	return exitPass
}
