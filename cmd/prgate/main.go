// Package main provides the prgate CLI, a merge gate for pull request security scans.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches to a subcommand and turns any escaped panic into a failed run
func run(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "DevSecOps PR Gate failed: %v\n", r)
			code = exitFailed
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := ""
	if len(args) > 0 {
		command, args = args[0], args[1:]
	} else if os.Getenv("GITHUB_ACTIONS") == "true" {
		// a bare invocation from a workflow step is the gate run
		command = "scan"
	}

	switch command {
	case "scan":
		return runScan(ctx, args)
	case "render":
		return runRender(ctx, args)
	case "version", "--version":
		fmt.Println("prgate " + version)
		return exitPass
	case "help", "-h", "--help":
		printUsage()
		return exitPass
	case "":
		printUsage()
		return exitUsage
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Println(`prgate - DevSecOps merge gate for pull requests

Usage:
  prgate <command> [options]

Commands:
  scan     Run Trivy, Checkov and Conftest and decide whether the merge is blocked
  render   Re-render the pull request report from a saved summary
  version  Print the version

Options can also be given as workflow inputs (INPUT_<NAME>) or in .prgate.yml.
Use "prgate <command> --help" for more information about a command.`)
}
