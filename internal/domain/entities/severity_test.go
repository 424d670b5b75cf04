package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw    string
		want   Severity
		wantOK bool
	}{
		{"CRITICAL", SeverityCritical, true},
		{"High", SeverityHigh, true},
		{"medium", SeverityMedium, true},
		{" low ", SeverityLow, true},
		{"UNKNOWN", "", false},
		{"null", "", false},
		{"", "", false},
		{"info", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseSeverity(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeverityRankOrdering(t *testing.T) {
	t.Parallel()

	ordered := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i-1].Rank(), ordered[i].Rank(), "%s should outrank %s", ordered[i-1], ordered[i])
	}
	assert.Equal(t, 0, Severity("unknown").Rank())
}

func TestSeverityIsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, SeverityHigh.IsValid())
	assert.False(t, Severity("HIGH").IsValid(), "must be lowercase")
	assert.False(t, Severity("").IsValid())
}

func TestSeverityLabel(t *testing.T) {
	assert.Equal(t, "CRITICAL", SeverityCritical.Label())
	assert.Equal(t, "LOW", SeverityLow.Label())
}
