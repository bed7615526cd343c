package domain

import "time"

// VectorRecord is one stored embedding tied to an image interpretation.
// The physical index format behind it is out of scope; records carry
// the metadata the lifecycle manager needs.
type VectorRecord struct {
	// ID is the unique identifier, stable across transition replays so
	// that re-running a committed step cannot duplicate vectors.
	ID string

	// DocumentID and ImageID tie the vector to its source artifacts.
	DocumentID string
	ImageID    string

	// CorpusID scopes retrieval; queries never cross corpora.
	CorpusID string

	// Embedding is the vector payload.
	Embedding []float32

	// Excluded removes the vector from retrieval without deleting it
	// (the soft-keep strategy).
	Excluded bool

	// CreatedAt is when the vector was stored.
	CreatedAt time.Time
}

// RestorationEntry makes a removal reversible until it expires.
type RestorationEntry struct {
	// DocumentID is the removed document.
	DocumentID string

	// Strategy is the deletion strategy that was executed.
	Strategy DeletionStrategy

	// CreatedAt is when the removal happened.
	CreatedAt time.Time

	// ExpiresAt is when restoration stops being possible.
	ExpiresAt time.Time
}

// Expired reports whether the restoration window has lapsed at now.
func (e RestorationEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
