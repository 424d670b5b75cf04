// Package services implements domain business logic and use cases.
package services

import (
	"fmt"
	"strings"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces/services"
)

// gateService implements GateService with pure business logic
type gateService struct{}

// NewGateService creates a new gate service
func NewGateService() services.GateService {
	return &gateService{}
}

// Evaluate determines whether the merge is blocked.
// Only the vulnerability and misconfiguration counts take part in the verdict;
// policy denies are reported but never block.
// Pure business logic - no I/O
func (s *gateService) Evaluate(outcomes entities.Outcomes, policy entities.ThresholdPolicy) entities.GateResult {
	trivyBlocks := blocks(outcomes.Trivy, policy)
	checkovBlocks := blocks(outcomes.Checkov, policy)

	return entities.GateResult{
		Blocking: trivyBlocks || checkovBlocks,
		ToolStatus: map[entities.ToolName]entities.Status{
			entities.ToolTrivy:   statusOf(trivyBlocks),
			entities.ToolCheckov: statusOf(checkovBlocks),
			entities.ToolOPA:     statusOf(outcomes.OPA.DenyCount > 0),
		},
	}
}

// BlockMessage returns the single-line message surfaced when a run is blocked
func (s *gateService) BlockMessage(policy entities.ThresholdPolicy) string {
	return fmt.Sprintf("DevSecOps PR Gate: Found %s or higher severity issues that must be resolved before merge.",
		strings.ToUpper(entities.ParseThreshold(string(policy)).String()))
}

// blocks applies the threshold rule to a single tool's counts.
// Unrecognized policies get the high rule.
func blocks(o entities.ScanOutcome, policy entities.ThresholdPolicy) bool {
	switch entities.ParseThreshold(string(policy)) {
	case entities.ThresholdOff:
		return false
	case entities.ThresholdCritical:
		return o.Critical > 0
	default:
		return o.Critical > 0 || o.High > 0
	}
}

func statusOf(failed bool) entities.Status {
	if failed {
		return entities.StatusFail
	}
	return entities.StatusPass
}
