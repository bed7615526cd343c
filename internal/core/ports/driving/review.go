package driving

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// Review is the single-reviewer surface: pending escalations, their
// resolution, and manual overrides of automated decisions.
type Review interface {
	// PendingTasks lists unresolved escalations, optionally scoped to a
	// corpus (empty means all).
	PendingTasks(ctx context.Context, corpusID string) ([]domain.Task, error)

	// ResolveTask records a reviewer decision and wakes the suspended
	// pipeline step. Rationale is mandatory.
	ResolveTask(ctx context.Context, decision domain.Decision) error

	// OverrideDiagramType reclassifies an image's diagram type with a
	// mandatory rationale.
	OverrideDiagramType(ctx context.Context, imageID string, dt domain.DiagramType, actor, rationale string) error

	// ReinstateIgnored reverses an auto-ignore, sending the image back
	// to a reviewer for interpretation.
	ReinstateIgnored(ctx context.Context, imageID, actor, rationale string) error

	// ReasonChain returns the last n audit events for a resource,
	// newest first.
	ReasonChain(ctx context.Context, resource string, n int) ([]domain.AuditEvent, error)
}
