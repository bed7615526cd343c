package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// ==================== Provenance Ledger ====================

// provenanceLedger implements driven.ProvenanceLedger. Rows are
// insert-only: the adapter has no UPDATE or DELETE path for committed
// records.
type provenanceLedger struct {
	store *Store
}

var _ driven.ProvenanceLedger = (*provenanceLedger)(nil)

// Append commits a record and its artifact index rows in one
// transaction. Append order is preserved by the autoincrement seq.
func (s *provenanceLedger) Append(ctx context.Context, rec domain.ProvenanceRecord) error {
	inputsJSON, err := json.Marshal(rec.Inputs)
	if err != nil {
		return fmt.Errorf("marshalling inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(rec.Outputs)
	if err != nil {
		return fmt.Errorf("marshalling outputs: %w", err)
	}

	var confidence sql.NullFloat64
	if rec.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *rec.Confidence, Valid: true}
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO provenance_records (id, inputs, outputs, kind, agent, agent_kind, confidence, note, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(inputsJSON), string(outputsJSON), string(rec.Kind), rec.Agent,
		string(rec.AgentKind), confidence, rec.Note, rec.RecordedAt); err != nil {
		return fmt.Errorf("inserting provenance record: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO provenance_artifacts (record_id, artifact_id, role) VALUES (?, ?, ?)
		ON CONFLICT(record_id, artifact_id, role) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("preparing artifact statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range rec.Inputs {
		if _, err := stmt.ExecContext(ctx, rec.ID, id, "input"); err != nil {
			return fmt.Errorf("indexing input artifact: %w", err)
		}
	}
	for _, id := range rec.Outputs {
		if _, err := stmt.ExecContext(ctx, rec.ID, id, "output"); err != nil {
			return fmt.Errorf("indexing output artifact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListByArtifact returns every record naming the artifact as input or
// output, in append order.
func (s *provenanceLedger) ListByArtifact(ctx context.Context, artifactID string) ([]domain.ProvenanceRecord, error) {
	return s.queryRecords(ctx, `
		SELECT DISTINCT r.id, r.inputs, r.outputs, r.kind, r.agent, r.agent_kind, r.confidence, r.note, r.recorded_at
		FROM provenance_records r
		JOIN provenance_artifacts a ON a.record_id = r.id
		WHERE a.artifact_id = ?
		ORDER BY r.seq
	`, artifactID)
}

// ListByOutput returns records producing the artifact, in append order.
func (s *provenanceLedger) ListByOutput(ctx context.Context, artifactID string) ([]domain.ProvenanceRecord, error) {
	return s.queryRecords(ctx, `
		SELECT r.id, r.inputs, r.outputs, r.kind, r.agent, r.agent_kind, r.confidence, r.note, r.recorded_at
		FROM provenance_records r
		JOIN provenance_artifacts a ON a.record_id = r.id
		WHERE a.artifact_id = ? AND a.role = 'output'
		ORDER BY r.seq
	`, artifactID)
}

func (s *provenanceLedger) queryRecords(ctx context.Context, query string, args ...any) ([]domain.ProvenanceRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying provenance records: %w", err)
	}
	defer rows.Close()

	var records []domain.ProvenanceRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var rec domain.ProvenanceRecord
		var inputsJSON, outputsJSON, kind, agentKind string
		var confidence sql.NullFloat64

		if err := rows.Scan(&rec.ID, &inputsJSON, &outputsJSON, &kind, &rec.Agent,
			&agentKind, &confidence, &rec.Note, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning provenance record: %w", err)
		}

		if err := json.Unmarshal([]byte(inputsJSON), &rec.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshalling inputs: %w", err)
		}
		if err := json.Unmarshal([]byte(outputsJSON), &rec.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshalling outputs: %w", err)
		}

		rec.Kind = domain.TransformationKind(kind)
		rec.AgentKind = domain.AgentKind(agentKind)
		if confidence.Valid {
			rec.Confidence = &confidence.Float64
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provenance records: %w", err)
	}

	return records, nil
}

// ==================== Audit Log ====================

// auditLog implements driven.AuditLog. Insert-only, like the ledger.
type auditLog struct {
	store *Store
}

var _ driven.AuditLog = (*auditLog)(nil)

// Append commits an audit event.
func (s *auditLog) Append(ctx context.Context, ev domain.AuditEvent) error {
	detailJSON, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("marshalling detail: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, timestamp, actor, actor_kind, resource, resource_kind, action, rationale,
			 before_state, after_state, correlation_id, phase, ruleset, severity, tag, detail, reviewer_override)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Timestamp, ev.Actor, string(ev.ActorKind), ev.Resource, ev.ResourceKind,
		ev.Action, ev.Rationale, ev.BeforeState, ev.AfterState, ev.CorrelationID,
		ev.Phase, ev.Ruleset, string(ev.Severity), ev.Tag, string(detailJSON), ev.ReviewerOverrideAvailable)

	if err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// ListByResource returns the most recent events for a resource, newest
// first, up to limit.
func (s *auditLog) ListByResource(ctx context.Context, resource string, limit int) ([]domain.AuditEvent, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, timestamp, actor, actor_kind, resource, resource_kind, action, rationale,
			before_state, after_state, correlation_id, phase, ruleset, severity, tag, detail, reviewer_override
		FROM audit_events WHERE resource = ?
		ORDER BY seq DESC LIMIT ?
	`, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		var ev domain.AuditEvent
		var actorKind, severity, detailJSON string

		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Actor, &actorKind, &ev.Resource,
			&ev.ResourceKind, &ev.Action, &ev.Rationale, &ev.BeforeState, &ev.AfterState,
			&ev.CorrelationID, &ev.Phase, &ev.Ruleset, &severity, &ev.Tag,
			&detailJSON, &ev.ReviewerOverrideAvailable); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}

		ev.ActorKind = domain.ActorKind(actorKind)
		ev.Severity = domain.AuditSeverity(severity)
		if detailJSON != "" && detailJSON != "null" {
			if err := json.Unmarshal([]byte(detailJSON), &ev.Detail); err != nil {
				return nil, fmt.Errorf("unmarshalling detail: %w", err)
			}
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}

	return events, nil
}
