package domain

import "time"

// Corpus is an isolation boundary grouping documents for one matter.
// Artifacts belonging to different corpora may never be cross-referenced;
// the isolation enforcer rejects any attempt to do so.
type Corpus struct {
	// ID is the unique identifier for the corpus.
	ID string

	// Name is the human-readable matter name.
	Name string

	// Description explains what the corpus collects (e.g. prior art for
	// a specific filing).
	Description string

	// CreatedAt is when the corpus was registered.
	CreatedAt time.Time
}
