package driven

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// ProvenanceLedger is the append-only record of artifact derivation.
// No interface operation may mutate a committed record; adapters expose
// no update or delete for provenance rows. Safe for concurrent writers.
type ProvenanceLedger interface {
	// Append commits a record. Records for a given artifact are
	// appended in the order their causing transitions commit.
	Append(ctx context.Context, rec domain.ProvenanceRecord) error

	// ListByArtifact returns every record naming the artifact as input
	// or output, in append order.
	ListByArtifact(ctx context.Context, artifactID string) ([]domain.ProvenanceRecord, error)

	// ListByOutput returns records producing the artifact, in append
	// order. Used for ancestry walks.
	ListByOutput(ctx context.Context, artifactID string) ([]domain.ProvenanceRecord, error)
}

// AuditLog is the append-only operational log. Like the ledger, it
// supports no mutation of committed entries.
type AuditLog interface {
	// Append commits an audit event.
	Append(ctx context.Context, ev domain.AuditEvent) error

	// ListByResource returns the most recent events for a resource,
	// newest first, up to limit.
	ListByResource(ctx context.Context, resource string, limit int) ([]domain.AuditEvent, error)
}
