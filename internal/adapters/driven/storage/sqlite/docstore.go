package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, corpus_id, uri, title, state, content_hash, body, epoch, error_count,
	blocked_from, deletion_strategy, ingested_at, processing_started_at, processing_completed_at, removed_at`

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	var deletion, blockedFrom sql.NullString
	if doc.Deletion != nil {
		deletion = sql.NullString{String: string(*doc.Deletion), Valid: true}
	}
	if doc.BlockedFrom != nil {
		blockedFrom = sql.NullString{String: string(*doc.BlockedFrom), Valid: true}
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			corpus_id = excluded.corpus_id,
			uri = excluded.uri,
			title = excluded.title,
			state = excluded.state,
			content_hash = excluded.content_hash,
			body = excluded.body,
			epoch = excluded.epoch,
			error_count = excluded.error_count,
			blocked_from = excluded.blocked_from,
			deletion_strategy = excluded.deletion_strategy,
			ingested_at = excluded.ingested_at,
			processing_started_at = excluded.processing_started_at,
			processing_completed_at = excluded.processing_completed_at,
			removed_at = excluded.removed_at
	`, doc.ID, doc.CorpusID, doc.URI, doc.Title, string(doc.State), doc.ContentHash, doc.Text,
		doc.Epoch, doc.ErrorCount, blockedFrom, deletion, doc.IngestedAt,
		nullTime(doc.ProcessingStartedAt), nullTime(doc.ProcessingCompletedAt), nullTime(doc.RemovedAt))

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	return scanDocument(row.Scan)
}

// ListDocuments returns documents for a corpus, oldest first.
func (s *documentStore) ListDocuments(ctx context.Context, corpusID string) ([]domain.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE corpus_id = ? ORDER BY ingested_at`, corpusID)
}

// ListByState returns documents currently in the given state.
func (s *documentStore) ListByState(ctx context.Context, state domain.DocumentState) ([]domain.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE state = ?`, string(state))
}

// DeleteDocument physically removes a document row. Only the hard-delete
// sweep calls this.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

func (s *documentStore) queryDocuments(ctx context.Context, query string, args ...any) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// scanDocument scans a document from any row-shaped Scan function.
func scanDocument(scan func(...any) error) (*domain.Document, error) {
	var doc domain.Document
	var state, blockedFrom, deletion sql.NullString
	var startedAt, completedAt, removedAt sql.NullTime

	if err := scan(&doc.ID, &doc.CorpusID, &doc.URI, &doc.Title, &state, &doc.ContentHash,
		&doc.Text, &doc.Epoch, &doc.ErrorCount, &blockedFrom, &deletion, &doc.IngestedAt,
		&startedAt, &completedAt, &removedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.State = domain.DocumentState(state.String)
	if blockedFrom.Valid {
		prior := domain.DocumentState(blockedFrom.String)
		doc.BlockedFrom = &prior
	}
	if deletion.Valid {
		strategy := domain.DeletionStrategy(deletion.String)
		doc.Deletion = &strategy
	}
	if startedAt.Valid {
		doc.ProcessingStartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		doc.ProcessingCompletedAt = &completedAt.Time
	}
	if removedAt.Valid {
		doc.RemovedAt = &removedAt.Time
	}

	return &doc, nil
}

// ==================== Image Store ====================

// imageStore implements driven.ImageStore.
type imageStore struct {
	store *Store
}

var _ driven.ImageStore = (*imageStore)(nil)

const imageColumns = `id, document_id, corpus_id, fingerprint, state, diagram_type, width, height,
	byte_size, ocr_attempts, vision_attempts, canonical_id, description, description_confidence,
	human_validated, epoch, created_at, updated_at`

// SaveImage stores or updates an image.
func (s *imageStore) SaveImage(ctx context.Context, img *domain.Image) error {
	var canonical sql.NullString
	if img.CanonicalID != nil {
		canonical = sql.NullString{String: *img.CanonicalID, Valid: true}
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			corpus_id = excluded.corpus_id,
			fingerprint = excluded.fingerprint,
			state = excluded.state,
			diagram_type = excluded.diagram_type,
			width = excluded.width,
			height = excluded.height,
			byte_size = excluded.byte_size,
			ocr_attempts = excluded.ocr_attempts,
			vision_attempts = excluded.vision_attempts,
			canonical_id = excluded.canonical_id,
			description = excluded.description,
			description_confidence = excluded.description_confidence,
			human_validated = excluded.human_validated,
			epoch = excluded.epoch,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, img.ID, img.DocumentID, img.CorpusID, img.Fingerprint, string(img.State),
		string(img.DiagramType), img.Width, img.Height, img.ByteSize,
		img.OCRAttempts, img.VisionAttempts, canonical, img.Description,
		img.DescriptionConfidence, img.HumanValidated, img.Epoch, img.CreatedAt, img.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// GetImage retrieves an image by ID.
func (s *imageStore) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, id)

	return scanImage(row.Scan)
}

// ListImages returns all images for a document.
func (s *imageStore) ListImages(ctx context.Context, documentID string) ([]domain.Image, error) {
	return s.queryImages(ctx,
		`SELECT `+imageColumns+` FROM images WHERE document_id = ? ORDER BY id`, documentID)
}

// ListCanonical returns completed canonical images for a corpus. The
// query is corpus-scoped by construction; it can never return a foreign
// candidate.
func (s *imageStore) ListCanonical(ctx context.Context, corpusID string) ([]domain.Image, error) {
	return s.queryImages(ctx,
		`SELECT `+imageColumns+` FROM images
		WHERE corpus_id = ? AND state = ? AND canonical_id IS NULL ORDER BY id`,
		corpusID, string(domain.ImgCompleted))
}

// SaveVersion preserves an image's interpretation from a prior epoch.
// Versions are insert-only.
func (s *imageStore) SaveVersion(ctx context.Context, v *domain.ImageVersion) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO image_versions (id, image_id, epoch, description, description_confidence, human_validated, preserved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.ImageID, v.Epoch, v.Description, v.DescriptionConfidence, v.HumanValidated, v.PreservedAt)

	if err != nil {
		return fmt.Errorf("saving image version: %w", err)
	}
	return nil
}

// ListVersions returns preserved versions for an image, oldest first.
func (s *imageStore) ListVersions(ctx context.Context, imageID string) ([]domain.ImageVersion, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, image_id, epoch, description, description_confidence, human_validated, preserved_at
		FROM image_versions WHERE image_id = ? ORDER BY epoch
	`, imageID)
	if err != nil {
		return nil, fmt.Errorf("querying image versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.ImageVersion //nolint:prealloc // size unknown from query
	for rows.Next() {
		var v domain.ImageVersion
		if err := rows.Scan(&v.ID, &v.ImageID, &v.Epoch, &v.Description,
			&v.DescriptionConfidence, &v.HumanValidated, &v.PreservedAt); err != nil {
			return nil, fmt.Errorf("scanning image version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating image versions: %w", err)
	}

	return versions, nil
}

// DeleteImages physically removes a document's images and their
// versions. Only the hard-delete sweep calls this.
func (s *imageStore) DeleteImages(ctx context.Context, documentID string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM image_versions WHERE image_id IN (SELECT id FROM images WHERE document_id = ?)
	`, documentID); err != nil {
		return fmt.Errorf("deleting image versions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM images WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting images: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *imageStore) queryImages(ctx context.Context, query string, args ...any) ([]domain.Image, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying images: %w", err)
	}
	defer rows.Close()

	var images []domain.Image //nolint:prealloc // size unknown from query
	for rows.Next() {
		img, err := scanImage(rows.Scan)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating images: %w", err)
	}

	return images, nil
}

// scanImage scans an image from any row-shaped Scan function.
func scanImage(scan func(...any) error) (*domain.Image, error) {
	var img domain.Image
	var state, diagramType string
	var canonical sql.NullString

	if err := scan(&img.ID, &img.DocumentID, &img.CorpusID, &img.Fingerprint, &state,
		&diagramType, &img.Width, &img.Height, &img.ByteSize, &img.OCRAttempts,
		&img.VisionAttempts, &canonical, &img.Description, &img.DescriptionConfidence,
		&img.HumanValidated, &img.Epoch, &img.CreatedAt, &img.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning image: %w", err)
	}

	img.State = domain.ImageState(state)
	img.DiagramType = domain.DiagramType(diagramType)
	if canonical.Valid {
		img.CanonicalID = &canonical.String
	}

	return &img, nil
}

// nullTime wraps an optional time for storage.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
