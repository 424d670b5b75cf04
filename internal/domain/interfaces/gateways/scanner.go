// Package gateways defines interfaces for external service adapters.
package gateways

import (
	"context"

	"github.com/ochairo/prgate/internal/domain/entities"
)

// ScanRequest describes one invocation of a severity-aware scanner
type ScanRequest struct {
	Target    string
	Version   string // optional, used only when the tool has to be installed
	ExtraArgs []string
}

// PolicyScanRequest describes one invocation of the policy evaluator
type PolicyScanRequest struct {
	Target     string
	PolicyPath string
	Version    string
	ExtraArgs  []string
}

// SeverityScanner runs one external tool and normalizes its output.
// Implementations never fail: any error is logged and a zero outcome returned.
type SeverityScanner interface {
	Tool() entities.ToolName
	Scan(ctx context.Context, req ScanRequest) entities.ScanOutcome
}

// PolicyScanner runs the policy evaluator.
// Like SeverityScanner it degrades to a zero outcome instead of failing.
type PolicyScanner interface {
	Scan(ctx context.Context, req PolicyScanRequest) entities.PolicyOutcome
}

// ToolProvisioner makes sure a scanner binary is available before it runs
type ToolProvisioner interface {
	Ensure(ctx context.Context, tool entities.ToolName, version string) error
}

// SignatureVerifier checks a detached signature over a downloaded file
type SignatureVerifier interface {
	VerifyDetached(filePath string, signature []byte) error
}
