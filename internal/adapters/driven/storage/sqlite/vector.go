package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// ==================== Vector Store ====================

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

// Put stores a vector, replacing any prior vector with the same ID.
// Replacement keyed on ID keeps transition replay from duplicating
// vectors.
func (s *vectorStore) Put(ctx context.Context, rec domain.VectorRecord) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO vectors (id, document_id, image_id, corpus_id, embedding, excluded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			image_id = excluded.image_id,
			corpus_id = excluded.corpus_id,
			embedding = excluded.embedding,
			excluded = excluded.excluded,
			created_at = excluded.created_at
	`, rec.ID, rec.DocumentID, rec.ImageID, rec.CorpusID,
		float32SliceToBytes(rec.Embedding), rec.Excluded, rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("storing vector: %w", err)
	}
	return nil
}

// CountByDocument returns how many retrievable vectors a document has.
func (s *vectorStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM vectors WHERE document_id = ? AND excluded = 0
	`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return count, nil
}

// SetExcluded flips the retrieval-exclusion flag on a document's vectors.
func (s *vectorStore) SetExcluded(ctx context.Context, documentID string, excluded bool) (int, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE vectors SET excluded = ? WHERE document_id = ? AND excluded != ?
	`, excluded, documentID, excluded)
	if err != nil {
		return 0, fmt.Errorf("updating vector exclusion: %w", err)
	}
	return rowsAffected(res)
}

// DeleteByDocument removes a document's vectors.
func (s *vectorStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM vectors WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting vectors: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(n), nil
}

// ==================== Restoration Cache ====================

// restorationCache implements driven.RestorationCache.
type restorationCache struct {
	store *Store
}

var _ driven.RestorationCache = (*restorationCache)(nil)

// Put stores a restoration entry for a removed document.
func (s *restorationCache) Put(ctx context.Context, entry domain.RestorationEntry) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO restoration_entries (document_id, strategy, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			strategy = excluded.strategy,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, entry.DocumentID, string(entry.Strategy), entry.CreatedAt, entry.ExpiresAt)

	if err != nil {
		return fmt.Errorf("storing restoration entry: %w", err)
	}
	return nil
}

// Get retrieves the entry for a document.
func (s *restorationCache) Get(ctx context.Context, documentID string) (*domain.RestorationEntry, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT document_id, strategy, created_at, expires_at
		FROM restoration_entries WHERE document_id = ?
	`, documentID)

	var entry domain.RestorationEntry
	var strategy string
	if err := row.Scan(&entry.DocumentID, &strategy, &entry.CreatedAt, &entry.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning restoration entry: %w", err)
	}

	entry.Strategy = domain.DeletionStrategy(strategy)
	return &entry, nil
}

// Delete drops an entry after restoration or expiry.
func (s *restorationCache) Delete(ctx context.Context, documentID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM restoration_entries WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("deleting restoration entry: %w", err)
	}
	return nil
}

// List returns all entries.
func (s *restorationCache) List(ctx context.Context) ([]domain.RestorationEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_id, strategy, created_at, expires_at FROM restoration_entries
	`)
	if err != nil {
		return nil, fmt.Errorf("querying restoration entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.RestorationEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var entry domain.RestorationEntry
		var strategy string
		if err := rows.Scan(&entry.DocumentID, &strategy, &entry.CreatedAt, &entry.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning restoration entry: %w", err)
		}
		entry.Strategy = domain.DeletionStrategy(strategy)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating restoration entries: %w", err)
	}

	return entries, nil
}
