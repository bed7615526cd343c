package domain

import "time"

// DocumentState is the lifecycle state of a document in the pipeline.
type DocumentState string

// Document states. Transitions between them are governed exclusively by
// the state machine; no other code mutates a document's state.
const (
	DocIngested           DocumentState = "ingested"
	DocNormalized         DocumentState = "normalized"
	DocTextExtracted      DocumentState = "text_extracted"
	DocImagesExtracted    DocumentState = "images_extracted"
	DocPartiallyProcessed DocumentState = "partially_processed"
	DocReady              DocumentState = "ready"
	DocReprocessing       DocumentState = "reprocessing"
	DocBlocked            DocumentState = "blocked"
	DocFailed             DocumentState = "failed"
	DocRemoved            DocumentState = "document_removed"
	DocPermanentlyDeleted DocumentState = "permanently_deleted"
)

// Active reports whether the document is still moving through the
// pipeline. Blocked documents are active: they are waiting on a human,
// not finished.
func (s DocumentState) Active() bool {
	switch s {
	case DocFailed, DocRemoved, DocPermanentlyDeleted:
		return false
	}
	return true
}

// Terminal reports whether no further automatic transitions are possible.
func (s DocumentState) Terminal() bool {
	return s == DocFailed || s == DocPermanentlyDeleted
}

// DeletionStrategy selects how vector data is handled when a document
// is removed.
type DeletionStrategy string

const (
	// SoftKeep leaves vectors stored but excluded from retrieval.
	// Instantly reversible.
	SoftKeep DeletionStrategy = "soft_keep"

	// SoftRemove deletes vectors immediately, retaining document
	// metadata. Reversible only by full reprocessing.
	SoftRemove DeletionStrategy = "soft_remove"

	// HardDelete physically removes vectors, images, artifacts and
	// files after the retention window. Irreversible once swept.
	HardDelete DeletionStrategy = "hard_delete"
)

// Valid reports whether the strategy is one of the known values.
func (d DeletionStrategy) Valid() bool {
	switch d {
	case SoftKeep, SoftRemove, HardDelete:
		return true
	}
	return false
}

// TimeoutClass buckets documents by visual complexity. Larger documents
// receive proportionally longer pipeline budgets.
type TimeoutClass string

const (
	TimeoutSmall    TimeoutClass = "small"
	TimeoutStandard TimeoutClass = "standard"
	TimeoutComplex  TimeoutClass = "complex"
)

// Document is a source artifact (patent filing, prior art, office
// action, product evidence) moving through the pipeline.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// CorpusID is the isolation boundary this document belongs to.
	// Immutable once assigned; reassignment requires a new document
	// record with a provenance link to this one.
	CorpusID string

	// URI is the original location of the source file.
	URI string

	// Title is the human-readable title.
	Title string

	// State is the current lifecycle state.
	State DocumentState

	// ContentHash is the SHA-256 of the raw source content.
	ContentHash string

	// Text is the normalised text body once extraction has run.
	Text string

	// Epoch counts reprocessing rounds. Outputs from prior epochs are
	// preserved as versions, never overwritten.
	Epoch int

	// ErrorCount accumulates transient step failures.
	ErrorCount int

	// BlockedFrom records the state the document held when it was
	// blocked, so unblocking resumes there. Nil unless blocked.
	BlockedFrom *DocumentState

	// Deletion is the strategy chosen at removal time, nil before then.
	Deletion *DeletionStrategy

	// IngestedAt is when the document entered the pipeline.
	IngestedAt time.Time

	// ProcessingStartedAt is set on the first transition out of ingested.
	ProcessingStartedAt *time.Time

	// ProcessingCompletedAt is set when the document reaches ready.
	ProcessingCompletedAt *time.Time

	// RemovedAt is set when the document transitions to removed.
	RemovedAt *time.Time
}

// TimeoutClassFor buckets a document by its image count.
func TimeoutClassFor(imageCount int) TimeoutClass {
	switch {
	case imageCount < 5:
		return TimeoutSmall
	case imageCount < 15:
		return TimeoutStandard
	default:
		return TimeoutComplex
	}
}
