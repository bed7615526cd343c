package memory

import (
	"context"
	"sync"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure the stores implement their interfaces.
var (
	_ driven.VectorStore      = (*VectorStore)(nil)
	_ driven.RestorationCache = (*RestorationCache)(nil)
)

// VectorStore is an in-memory implementation of driven.VectorStore.
type VectorStore struct {
	mu      sync.RWMutex
	vectors map[string]domain.VectorRecord
}

// NewVectorStore creates a new in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{vectors: make(map[string]domain.VectorRecord)}
}

// Put stores a vector, replacing any prior vector with the same ID.
func (s *VectorStore) Put(_ context.Context, rec domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Embedding = append([]float32(nil), rec.Embedding...)
	s.vectors[rec.ID] = rec
	return nil
}

// CountByDocument returns how many retrievable vectors a document has.
func (s *VectorStore) CountByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.vectors {
		if rec.DocumentID == documentID && !rec.Excluded {
			n++
		}
	}
	return n, nil
}

// SetExcluded flips the retrieval-exclusion flag on a document's vectors.
func (s *VectorStore) SetExcluded(_ context.Context, documentID string, excluded bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.vectors {
		if rec.DocumentID == documentID {
			rec.Excluded = excluded
			s.vectors[id] = rec
			n++
		}
	}
	return n, nil
}

// DeleteByDocument removes a document's vectors.
func (s *VectorStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.vectors {
		if rec.DocumentID == documentID {
			delete(s.vectors, id)
			n++
		}
	}
	return n, nil
}

// RestorationCache is an in-memory implementation of
// driven.RestorationCache.
type RestorationCache struct {
	mu      sync.RWMutex
	entries map[string]domain.RestorationEntry
}

// NewRestorationCache creates a new in-memory restoration cache.
func NewRestorationCache() *RestorationCache {
	return &RestorationCache{entries: make(map[string]domain.RestorationEntry)}
}

// Put stores a restoration entry for a removed document.
func (c *RestorationCache) Put(_ context.Context, entry domain.RestorationEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.DocumentID] = entry
	return nil
}

// Get retrieves the entry for a document.
func (c *RestorationCache) Get(_ context.Context, documentID string) (*domain.RestorationEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// Delete drops an entry.
func (c *RestorationCache) Delete(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, documentID)
	return nil
}

// List returns all entries.
func (c *RestorationCache) List(_ context.Context) ([]domain.RestorationEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.RestorationEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out, nil
}
