package gateways

import (
	"context"
	"time"

	"github.com/ochairo/prgate/internal/domain/entities"
)

// CommentHandle identifies a previously published report
type CommentHandle struct {
	ID      int64
	HTMLURL string
}

// ReportSink publishes the rendered report, e.g. as a pull request comment
type ReportSink interface {
	// FindExisting returns the handle of an earlier report with the same title, or nil.
	FindExisting(ctx context.Context, title string) (*CommentHandle, error)

	// CreateOrUpdate replaces the report behind handle, or creates one when handle is nil,
	// and returns a locator (URL) for it.
	CreateOrUpdate(ctx context.Context, handle *CommentHandle, body string) (string, error)
}

// SummaryMeta is the run metadata stored alongside the outcomes
type SummaryMeta struct {
	RunID     string
	Timestamp time.Time
}

// ArtifactStore persists the machine-readable summary of a run
type ArtifactStore interface {
	// WriteSummary stores the summary and returns where it was written.
	WriteSummary(ctx context.Context, outcomes entities.Outcomes, meta SummaryMeta) (string, error)
}

// ArtifactUploader copies a written artifact to remote storage
type ArtifactUploader interface {
	Upload(ctx context.Context, localPath, runID string) (string, error)
}
