package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure the stores implement their interfaces.
var (
	_ driven.DocumentStore = (*DocumentStore)(nil)
	_ driven.ImageStore    = (*ImageStore)(nil)
)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{documents: make(map[string]domain.Document)}
}

// SaveDocument stores or updates a document.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// ListDocuments returns documents for a corpus.
func (s *DocumentStore) ListDocuments(_ context.Context, corpusID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Document
	for _, doc := range s.documents {
		if doc.CorpusID == corpusID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestedAt.Before(out[j].IngestedAt) })
	return out, nil
}

// ListByState returns documents currently in the given state.
func (s *DocumentStore) ListByState(_ context.Context, state domain.DocumentState) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Document
	for _, doc := range s.documents {
		if doc.State == state {
			out = append(out, doc)
		}
	}
	return out, nil
}

// DeleteDocument physically removes a document row.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	return nil
}

// ImageStore is an in-memory implementation of driven.ImageStore.
type ImageStore struct {
	mu       sync.RWMutex
	images   map[string]domain.Image
	versions map[string][]domain.ImageVersion
}

// NewImageStore creates a new in-memory image store.
func NewImageStore() *ImageStore {
	return &ImageStore{
		images:   make(map[string]domain.Image),
		versions: make(map[string][]domain.ImageVersion),
	}
}

// SaveImage stores or updates an image.
func (s *ImageStore) SaveImage(_ context.Context, img *domain.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ID] = *img
	return nil
}

// GetImage retrieves an image by ID.
func (s *ImageStore) GetImage(_ context.Context, id string) (*domain.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &img, nil
}

// ListImages returns all images for a document.
func (s *ImageStore) ListImages(_ context.Context, documentID string) ([]domain.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Image
	for _, img := range s.images {
		if img.DocumentID == documentID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCanonical returns completed canonical images for a corpus.
func (s *ImageStore) ListCanonical(_ context.Context, corpusID string) ([]domain.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Image
	for _, img := range s.images {
		if img.CorpusID == corpusID && img.State == domain.ImgCompleted && img.CanonicalID == nil {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveVersion preserves an image's interpretation from a prior epoch.
func (s *ImageStore) SaveVersion(_ context.Context, v *domain.ImageVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[v.ImageID] = append(s.versions[v.ImageID], *v)
	return nil
}

// ListVersions returns preserved versions for an image, oldest first.
func (s *ImageStore) ListVersions(_ context.Context, imageID string) ([]domain.ImageVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ImageVersion, len(s.versions[imageID]))
	copy(out, s.versions[imageID])
	return out, nil
}

// DeleteImages physically removes a document's images and versions.
func (s *ImageStore) DeleteImages(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, img := range s.images {
		if img.DocumentID == documentID {
			delete(s.images, id)
			delete(s.versions, id)
		}
	}
	return nil
}
