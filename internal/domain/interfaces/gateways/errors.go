package gateways

import "errors"

// Scanner failure categories. Adapters wrap these with %w; they never reach the
// orchestrator because every adapter converts them into a zero outcome.
var (
	// ErrToolUnavailable means the scanner binary is missing or could not be started.
	ErrToolUnavailable = errors.New("scanner unavailable")

	// ErrExecution means the scanner ran but exited with an unexpected status.
	ErrExecution = errors.New("scanner execution failed")

	// ErrMalformedOutput means the scanner output could not be parsed.
	ErrMalformedOutput = errors.New("malformed scanner output")

	// ErrTargetMissing means the path to scan does not exist.
	ErrTargetMissing = errors.New("scan target not found")
)
