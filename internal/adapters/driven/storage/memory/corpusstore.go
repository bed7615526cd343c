package memory

import (
	"context"
	"sync"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure CorpusStore implements the interface.
var _ driven.CorpusStore = (*CorpusStore)(nil)

// CorpusStore is an in-memory implementation of driven.CorpusStore.
type CorpusStore struct {
	mu      sync.RWMutex
	corpora map[string]domain.Corpus
}

// NewCorpusStore creates a new in-memory corpus store.
func NewCorpusStore() *CorpusStore {
	return &CorpusStore{corpora: make(map[string]domain.Corpus)}
}

// Save stores or updates a corpus.
func (s *CorpusStore) Save(_ context.Context, c domain.Corpus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpora[c.ID] = c
	return nil
}

// Get retrieves a corpus by ID.
func (s *CorpusStore) Get(_ context.Context, id string) (*domain.Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corpora[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// List returns all corpora.
func (s *CorpusStore) List(_ context.Context) ([]domain.Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Corpus, 0, len(s.corpora))
	for _, c := range s.corpora {
		out = append(out, c)
	}
	return out, nil
}
