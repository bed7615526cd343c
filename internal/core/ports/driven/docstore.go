package driven

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// DocumentStore persists documents. State mutations flow exclusively
// through the state machine; adapters just upsert what they are given.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns documents for a corpus.
	ListDocuments(ctx context.Context, corpusID string) ([]domain.Document, error)

	// ListByState returns documents currently in the given state,
	// across corpora. Used by the retention sweeper.
	ListByState(ctx context.Context, state domain.DocumentState) ([]domain.Document, error)

	// DeleteDocument physically removes a document row. Only the
	// hard-delete sweep calls this.
	DeleteDocument(ctx context.Context, id string) error
}

// ImageStore persists images and their preserved prior versions.
type ImageStore interface {
	// SaveImage stores or updates an image.
	SaveImage(ctx context.Context, img *domain.Image) error

	// GetImage retrieves an image by ID.
	GetImage(ctx context.Context, id string) (*domain.Image, error)

	// ListImages returns all images for a document.
	ListImages(ctx context.Context, documentID string) ([]domain.Image, error)

	// ListCanonical returns completed canonical images for a corpus:
	// the duplicate resolver's candidate pool. Never spans corpora.
	ListCanonical(ctx context.Context, corpusID string) ([]domain.Image, error)

	// SaveVersion preserves an image's interpretation from a prior
	// epoch. Versions are never updated or deleted.
	SaveVersion(ctx context.Context, v *domain.ImageVersion) error

	// ListVersions returns preserved versions for an image, oldest first.
	ListVersions(ctx context.Context, imageID string) ([]domain.ImageVersion, error)

	// DeleteImages physically removes a document's images and their
	// versions. Only the hard-delete sweep calls this.
	DeleteImages(ctx context.Context, documentID string) error
}
