package driven

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// CorpusStore persists corpora. The isolation enforcer reads through an
// injected cache backed by this store; there is no process-wide corpus
// registry.
type CorpusStore interface {
	// Save stores or updates a corpus.
	Save(ctx context.Context, c domain.Corpus) error

	// Get retrieves a corpus by ID.
	Get(ctx context.Context, id string) (*domain.Corpus, error)

	// List returns all corpora.
	List(ctx context.Context) ([]domain.Corpus, error)
}
