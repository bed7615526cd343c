package driven

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// VectorStore persists embeddings and executes the lifecycle manager's
// strategies. The physical index format is the adapter's concern.
type VectorStore interface {
	// Put stores a vector, replacing any prior vector with the same ID.
	// Replacement keyed on ID is what makes transition replay safe.
	Put(ctx context.Context, rec domain.VectorRecord) error

	// CountByDocument returns how many retrievable (non-excluded)
	// vectors a document has.
	CountByDocument(ctx context.Context, documentID string) (int, error)

	// SetExcluded flips the retrieval-exclusion flag on a document's
	// vectors and returns how many were touched (soft-keep).
	SetExcluded(ctx context.Context, documentID string, excluded bool) (int, error)

	// DeleteByDocument removes a document's vectors and returns how
	// many were removed (soft-remove, hard-delete).
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// RestorationCache holds the entries that make soft removals
// reversible until they expire.
type RestorationCache interface {
	// Put stores a restoration entry for a removed document.
	Put(ctx context.Context, entry domain.RestorationEntry) error

	// Get retrieves the entry for a document.
	Get(ctx context.Context, documentID string) (*domain.RestorationEntry, error)

	// Delete drops an entry after restoration or expiry.
	Delete(ctx context.Context, documentID string) error

	// List returns all entries. Used by the retention sweeper.
	List(ctx context.Context) ([]domain.RestorationEntry, error)
}
