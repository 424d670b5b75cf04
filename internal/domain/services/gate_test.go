package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ochairo/prgate/internal/domain/entities"
)

func outcomesWith(trivyCrit, trivyHigh, checkovCrit, checkovHigh, denies uint) entities.Outcomes {
	return entities.Outcomes{
		Trivy:   entities.ScanOutcome{Critical: trivyCrit, High: trivyHigh},
		Checkov: entities.ScanOutcome{Critical: checkovCrit, High: checkovHigh},
		OPA:     entities.PolicyOutcome{DenyCount: denies},
	}
}

func TestEvaluate_ThresholdTable(t *testing.T) {
	svc := NewGateService()

	tests := []struct {
		name     string
		outcomes entities.Outcomes
		policy   entities.ThresholdPolicy
		blocking bool
	}{
		{"critical policy, trivy critical", outcomesWith(1, 0, 0, 0, 0), entities.ThresholdCritical, true},
		{"critical policy, checkov critical", outcomesWith(0, 0, 2, 0, 0), entities.ThresholdCritical, true},
		{"critical policy ignores high", outcomesWith(0, 5, 0, 5, 0), entities.ThresholdCritical, false},
		{"high policy, trivy high", outcomesWith(0, 1, 0, 0, 0), entities.ThresholdHigh, true},
		{"high policy, checkov high", outcomesWith(0, 0, 0, 1, 0), entities.ThresholdHigh, true},
		{"high policy, trivy critical", outcomesWith(1, 0, 0, 0, 0), entities.ThresholdHigh, true},
		{"high policy, clean", outcomesWith(0, 0, 0, 0, 0), entities.ThresholdHigh, false},
		{"off never blocks", outcomesWith(9, 9, 9, 9, 9), entities.ThresholdOff, false},
		{"mixed case critical", outcomesWith(0, 1, 0, 0, 0), "CRITICAL", false},
		{"unrecognized falls back to high", outcomesWith(0, 1, 0, 0, 0), "medium", true},
		{"empty policy falls back to high", outcomesWith(0, 0, 0, 1, 0), "", true},
		{"policy denies never block", outcomesWith(0, 0, 0, 0, 7), entities.ThresholdHigh, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Evaluate(tt.outcomes, tt.policy)
			assert.Equal(t, tt.blocking, got.Blocking)
		})
	}
}

func TestEvaluate_PerToolStatus(t *testing.T) {
	svc := NewGateService()

	got := svc.Evaluate(outcomesWith(0, 1, 0, 0, 2), entities.ThresholdHigh)

	assert.True(t, got.Blocking)
	assert.Equal(t, entities.StatusFail, got.StatusOf(entities.ToolTrivy))
	assert.Equal(t, entities.StatusPass, got.StatusOf(entities.ToolCheckov))
	assert.Equal(t, entities.StatusFail, got.StatusOf(entities.ToolOPA))

	// OPA status does not depend on the threshold.
	got = svc.Evaluate(outcomesWith(0, 0, 0, 0, 1), entities.ThresholdOff)
	assert.Equal(t, entities.StatusFail, got.StatusOf(entities.ToolOPA))
	assert.Equal(t, entities.StatusPass, got.StatusOf(entities.ToolTrivy))
}

func TestEvaluate_CriticalImpliesHigh(t *testing.T) {
	svc := NewGateService()

	for tc := uint(0); tc < 3; tc++ {
		for th := uint(0); th < 3; th++ {
			for cc := uint(0); cc < 3; cc++ {
				for ch := uint(0); ch < 3; ch++ {
					o := outcomesWith(tc, th, cc, ch, 0)
					if svc.Evaluate(o, entities.ThresholdCritical).Blocking {
						assert.True(t, svc.Evaluate(o, entities.ThresholdHigh).Blocking, "outcomes %+v", o)
					}
					assert.False(t, svc.Evaluate(o, entities.ThresholdOff).Blocking)
				}
			}
		}
	}
}

func TestBlockMessage(t *testing.T) {
	svc := NewGateService()

	assert.Equal(t,
		"DevSecOps PR Gate: Found HIGH or higher severity issues that must be resolved before merge.",
		svc.BlockMessage(entities.ThresholdHigh))
	assert.Equal(t,
		"DevSecOps PR Gate: Found CRITICAL or higher severity issues that must be resolved before merge.",
		svc.BlockMessage("Critical"))
	assert.Equal(t,
		"DevSecOps PR Gate: Found HIGH or higher severity issues that must be resolved before merge.",
		svc.BlockMessage("bogus"))
}
