package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ochairo/prgate/internal/domain/entities"
)

// ReportMarker identifies a gate report so the sink can replace it on re-runs.
const ReportMarker = "<!-- devsecops-pr-gate:do-not-remove -->"

// maxInlineFindings is how many findings per tool are listed in the report body.
const maxInlineFindings = 3

const (
	closingBlocked = "*Merge blocked - findings ≥ %s exist.*"
	closingPassed  = "*All security checks passed! Ready for merge.*"
	noIssuesLine   = "- No security issues found!"
	moreFindings   = "- *... and %d more %s findings. See full report in artifacts.*"
	notApplicable  = "–"
)

// RenderReport builds the markdown report for one run.
// The output depends only on its arguments, so re-rendering the same run
// produces byte-identical text.
func (s *gateService) RenderReport(outcomes entities.Outcomes, policy entities.ThresholdPolicy, title string) string {
	policy = entities.ParseThreshold(string(policy))
	result := s.Evaluate(outcomes, policy)

	var b strings.Builder
	b.WriteString(ReportMarker)
	b.WriteString("\n\n### ")
	b.WriteString(title)
	b.WriteString("\n\n")

	writeSummaryTable(&b, outcomes, result)
	b.WriteString("\n")
	writeTopIssues(&b, outcomes)
	b.WriteString("\n")

	if result.Blocking {
		fmt.Fprintf(&b, closingBlocked, policy)
	} else {
		b.WriteString(closingPassed)
	}
	b.WriteString("\n")

	return b.String()
}

func writeSummaryTable(b *strings.Builder, outcomes entities.Outcomes, result entities.GateResult) {
	b.WriteString("**Summary**\n")
	b.WriteString("| Tool    | Critical | High | Status |\n")
	b.WriteString("|---------|---------:|-----:|:------:|\n")

	row := func(tool entities.ToolName, critical, high string) {
		fmt.Fprintf(b, "| %-7s | %8s | %4s | %6s |\n", tool.DisplayName(), critical, high, result.StatusOf(tool))
	}
	row(entities.ToolTrivy, uintString(outcomes.Trivy.Critical), uintString(outcomes.Trivy.High))
	row(entities.ToolCheckov, uintString(outcomes.Checkov.Critical), uintString(outcomes.Checkov.High))
	row(entities.ToolOPA, notApplicable, notApplicable)
}

func writeTopIssues(b *strings.Builder, outcomes entities.Outcomes) {
	b.WriteString("**Top Issues**\n")

	if !outcomes.HasFindings() {
		b.WriteString(noIssuesLine)
		b.WriteString("\n")
		return
	}

	for i, f := range outcomes.Trivy.Findings {
		if i == maxInlineFindings {
			break
		}
		fmt.Fprintf(b, "- Trivy: `%s` – %s – %s (%s)\n", f.Subject, f.Severity.Label(), f.ID, f.Description)
	}
	writeMore(b, entities.ToolTrivy, len(outcomes.Trivy.Findings))

	for i, f := range outcomes.Checkov.Findings {
		if i == maxInlineFindings {
			break
		}
		fmt.Fprintf(b, "- Checkov: `%s` – %s – %s (%s)\n", f.Subject, f.Severity.Label(), f.ID, f.Description)
	}
	writeMore(b, entities.ToolCheckov, len(outcomes.Checkov.Findings))

	for i, f := range outcomes.OPA.Findings {
		if i == maxInlineFindings {
			break
		}
		fmt.Fprintf(b, "- OPA: %s at %s\n", f.Message, f.Subject)
	}
	writeMore(b, entities.ToolOPA, len(outcomes.OPA.Findings))
}

// writeMore emits the elision line for the retained findings not listed inline.
// The artifact keeps the same retained list, so the count matches what it holds.
func writeMore(b *strings.Builder, tool entities.ToolName, retained int) {
	if retained <= maxInlineFindings {
		return
	}
	fmt.Fprintf(b, moreFindings, retained-maxInlineFindings, tool.DisplayName())
	b.WriteString("\n")
}

func uintString(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}
