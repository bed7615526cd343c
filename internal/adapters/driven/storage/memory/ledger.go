package memory

import (
	"context"
	"sync"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure the stores implement their interfaces.
var (
	_ driven.ProvenanceLedger = (*ProvenanceLedger)(nil)
	_ driven.AuditLog         = (*AuditLog)(nil)
)

// ProvenanceLedger is an in-memory append-only ledger. Committed
// records are copied on read so callers can never mutate them.
type ProvenanceLedger struct {
	mu      sync.RWMutex
	records []domain.ProvenanceRecord
}

// NewProvenanceLedger creates a new in-memory ledger.
func NewProvenanceLedger() *ProvenanceLedger {
	return &ProvenanceLedger{}
}

// Append commits a record.
func (l *ProvenanceLedger) Append(_ context.Context, rec domain.ProvenanceRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec.Inputs = append([]string(nil), rec.Inputs...)
	rec.Outputs = append([]string(nil), rec.Outputs...)
	l.records = append(l.records, rec)
	return nil
}

// ListByArtifact returns every record naming the artifact, in append order.
func (l *ProvenanceLedger) ListByArtifact(_ context.Context, artifactID string) ([]domain.ProvenanceRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.ProvenanceRecord
	for _, rec := range l.records {
		if contains(rec.Inputs, artifactID) || contains(rec.Outputs, artifactID) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

// ListByOutput returns records producing the artifact, in append order.
func (l *ProvenanceLedger) ListByOutput(_ context.Context, artifactID string) ([]domain.ProvenanceRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.ProvenanceRecord
	for _, rec := range l.records {
		if contains(rec.Outputs, artifactID) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func copyRecord(rec domain.ProvenanceRecord) domain.ProvenanceRecord {
	rec.Inputs = append([]string(nil), rec.Inputs...)
	rec.Outputs = append([]string(nil), rec.Outputs...)
	return rec
}

// AuditLog is an in-memory append-only audit log.
type AuditLog struct {
	mu     sync.RWMutex
	events []domain.AuditEvent
}

// NewAuditLog creates a new in-memory audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append commits an audit event.
func (l *AuditLog) Append(_ context.Context, ev domain.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev.Detail != nil {
		detail := make(map[string]string, len(ev.Detail))
		for k, v := range ev.Detail {
			detail[k] = v
		}
		ev.Detail = detail
	}
	l.events = append(l.events, ev)
	return nil
}

// ListByResource returns the most recent events for a resource, newest
// first, up to limit.
func (l *AuditLog) ListByResource(_ context.Context, resource string, limit int) ([]domain.AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.AuditEvent
	for i := len(l.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if l.events[i].Resource == resource {
			out = append(out, l.events[i])
		}
	}
	return out, nil
}

// All returns every event in append order. Test helper.
func (l *AuditLog) All() []domain.AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}
