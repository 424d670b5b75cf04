// Package services defines interfaces for domain service contracts.
package services

import "github.com/ochairo/prgate/internal/domain/entities"

// GateService defines the merge decision and its human-readable rendering.
// Both operations are pure: same inputs, same output.
type GateService interface {
	// Evaluate computes the blocking verdict and per-tool status
	Evaluate(outcomes entities.Outcomes, policy entities.ThresholdPolicy) entities.GateResult

	// RenderReport produces the markdown report published to the sink
	RenderReport(outcomes entities.Outcomes, policy entities.ThresholdPolicy, title string) string

	// BlockMessage is the single-line failure message for a blocked run
	BlockMessage(policy entities.ThresholdPolicy) string
}
