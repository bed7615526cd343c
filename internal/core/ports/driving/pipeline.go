package driving

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// DocumentStatus is the discoverable state of a document: its record,
// completion picture and the audit reason chain explaining how it got
// there. Blocked and failed documents are never reported bare.
type DocumentStatus struct {
	// Document is the current record.
	Document domain.Document

	// Completion is the weighted completion picture.
	Completion domain.CompletionMetrics

	// Images are the document's images.
	Images []domain.Image

	// ReasonChain is the last N audit events for the document,
	// newest first.
	ReasonChain []domain.AuditEvent
}

// Pipeline drives documents through the processing lifecycle.
type Pipeline interface {
	// Ingest registers a source file into a corpus and returns the new
	// document in the ingested state.
	Ingest(ctx context.Context, corpusID, uri string, content []byte) (*domain.Document, error)

	// Process drives a document from its current state as far as the
	// pipeline can take it without human decisions. Blocks on HITL
	// suspension points for images that need them.
	Process(ctx context.Context, documentID string) error

	// Reprocess starts a new processing epoch for the document,
	// preserving prior approved outputs. Returns
	// domain.ErrReprocessingConflict if one is already in flight.
	Reprocess(ctx context.Context, documentID, actor string) error

	// Cancel aborts in-flight processing for a document, releasing any
	// held resource slots. Used when the document is removed.
	Cancel(documentID string)

	// Status reports a document's full discoverable state.
	Status(ctx context.Context, documentID string) (*DocumentStatus, error)
}
