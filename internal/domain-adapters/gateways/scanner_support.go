package gateways

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

// ScannerDeps bundles the collaborators shared by the scanner adapters
type ScannerDeps struct {
	Runner gateways.CommandRunner
	FS     gateways.FileSystem
	Logger interfaces.Logger

	// Provisioner installs a missing scanner. Nil means missing tools are
	// reported as unavailable.
	Provisioner gateways.ToolProvisioner

	// Severity decides the level of untagged findings. Zero value uses medium.
	Severity entities.SeverityDefaults
}

func (d ScannerDeps) withDefaults() ScannerDeps {
	if d.Runner == nil {
		d.Runner = NewCommandRunner(d.Logger)
	}
	if d.FS == nil {
		d.FS = NewOSFileSystem()
	}
	d.Logger = interfaces.OrNoOp(d.Logger)
	return d
}

// ensureAvailable makes sure binary can be executed, installing it when a
// provisioner is configured.
func (d ScannerDeps) ensureAvailable(ctx context.Context, tool entities.ToolName, binary, version string) error {
	if _, err := d.Runner.LookPath(binary); err == nil {
		return nil
	}
	if d.Provisioner == nil {
		return fmt.Errorf("%w: %s is not on PATH", gateways.ErrToolUnavailable, binary)
	}

	d.Logger.Info("Installing scanner", interfaces.F("tool", tool), interfaces.F("version", version))
	if err := d.Provisioner.Ensure(ctx, tool, version); err != nil {
		return fmt.Errorf("%w: %w", gateways.ErrToolUnavailable, err)
	}
	if _, err := d.Runner.LookPath(binary); err != nil {
		return fmt.Errorf("%w: %s still not on PATH after install", gateways.ErrToolUnavailable, binary)
	}
	return nil
}

// SplitArgs splits a user supplied argument string the way a POSIX shell
// would for simple cases: whitespace separates words, single and double
// quotes group, and a backslash escapes the next character outside single
// quotes. No expansion is performed.
func SplitArgs(raw string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range raw {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q", quote, raw)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash in %q", raw)
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}

// stringOr returns s, or fallback when s is blank
func stringOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
