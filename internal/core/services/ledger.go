package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Provenance guards the append-only derivation ledger. Every artifact
// creation and transformation passes through Record, which enforces
// acyclicity before committing: a record may never list an output that
// is a transitive input of itself.
type Provenance struct {
	ledger driven.ProvenanceLedger

	// mu serialises the cycle check against the append it guards.
	// Appends for different artifacts still interleave freely at the
	// adapter level; only the check-then-commit pair is atomic.
	mu sync.Mutex

	now func() time.Time
}

// NewProvenance creates a provenance service over a ledger.
func NewProvenance(ledger driven.ProvenanceLedger) *Provenance {
	return &Provenance{ledger: ledger, now: time.Now}
}

// Record validates and commits a provenance record, filling in its ID
// and timestamp. Returns domain.ErrProvenanceCycle if the record would
// make the graph cyclic.
func (p *Provenance) Record(ctx context.Context, rec domain.ProvenanceRecord) (*domain.ProvenanceRecord, error) {
	if len(rec.Outputs) == 0 {
		return nil, fmt.Errorf("provenance record: %w: at least one output required", domain.ErrInvalidInput)
	}
	if rec.Kind == "" || rec.Agent == "" {
		return nil, fmt.Errorf("provenance record: %w: kind and agent required", domain.ErrInvalidInput)
	}

	rec.ID = uuid.NewString()
	rec.RecordedAt = p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkAcyclic(ctx, rec); err != nil {
		return nil, err
	}
	if err := p.ledger.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append provenance: %w", err)
	}
	return &rec, nil
}

// History returns every record naming the artifact, in commit order.
func (p *Provenance) History(ctx context.Context, artifactID string) ([]domain.ProvenanceRecord, error) {
	return p.ledger.ListByArtifact(ctx, artifactID)
}

// Ancestors returns the transitive input set of an artifact.
func (p *Provenance) Ancestors(ctx context.Context, artifactID string) (map[string]bool, error) {
	seen := make(map[string]bool)
	frontier := []string{artifactID}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		producers, err := p.ledger.ListByOutput(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list producers of %s: %w", id, err)
		}
		for _, rec := range producers {
			for _, in := range rec.Inputs {
				if !seen[in] {
					seen[in] = true
					frontier = append(frontier, in)
				}
			}
		}
	}
	return seen, nil
}

// checkAcyclic rejects records whose outputs appear among their own
// inputs or the transitive ancestors of those inputs.
func (p *Provenance) checkAcyclic(ctx context.Context, rec domain.ProvenanceRecord) error {
	forbidden := make(map[string]bool, len(rec.Inputs))
	for _, in := range rec.Inputs {
		forbidden[in] = true
		anc, err := p.Ancestors(ctx, in)
		if err != nil {
			return err
		}
		for id := range anc {
			forbidden[id] = true
		}
	}
	for _, out := range rec.Outputs {
		if forbidden[out] {
			return fmt.Errorf("record %s output %s: %w", rec.Kind, out, domain.ErrProvenanceCycle)
		}
	}
	return nil
}
