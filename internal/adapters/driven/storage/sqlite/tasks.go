package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// ==================== Task Queue ====================

// taskQueue implements driven.TaskQueue over the store, so tasks opened
// by one process are visible to a reviewer running in another. Decision
// waits poll the store; a verdict written by any process wakes them.
type taskQueue struct {
	store *Store
}

var _ driven.TaskQueue = (*taskQueue)(nil)

// decisionPollInterval paces AwaitDecision's checks for a verdict.
const decisionPollInterval = 250 * time.Millisecond

// CreateTask registers a task and returns its ID.
func (q *taskQueue) CreateTask(ctx context.Context, task domain.Task) (string, error) {
	if task.ID == "" {
		return "", fmt.Errorf("create task: %w: missing ID", domain.ErrInvalidInput)
	}
	evidenceJSON, err := json.Marshal(task.Evidence)
	if err != nil {
		return "", fmt.Errorf("marshalling evidence: %w", err)
	}

	_, err = q.store.db.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, corpus_id, document_id, image_id, evidence, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, task.ID, string(task.Kind), task.CorpusID, task.DocumentID, task.ImageID,
		string(evidenceJSON), task.CreatedAt)
	if err != nil {
		var exists int
		row := q.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ?", task.ID)
		if scanErr := row.Scan(&exists); scanErr == nil && exists > 0 {
			return "", fmt.Errorf("create task %s: %w", task.ID, domain.ErrAlreadyExists)
		}
		return "", fmt.Errorf("inserting task: %w", err)
	}
	return task.ID, nil
}

// AwaitDecision blocks until the task is resolved or ctx is done.
func (q *taskQueue) AwaitDecision(ctx context.Context, taskID string) (domain.Decision, error) {
	var exists int
	row := q.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ?", taskID)
	if err := row.Scan(&exists); err != nil {
		return domain.Decision{}, fmt.Errorf("looking up task: %w", err)
	}
	if exists == 0 {
		return domain.Decision{}, fmt.Errorf("await decision: task %s: %w", taskID, domain.ErrNotFound)
	}

	ticker := time.NewTicker(decisionPollInterval)
	defer ticker.Stop()
	for {
		decision, err := q.getDecision(ctx, taskID)
		if err == nil {
			return decision, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Decision{}, err
		}
		select {
		case <-ctx.Done():
			return domain.Decision{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Resolve delivers a decision, marking the task settled for every
// process watching it.
func (q *taskQueue) Resolve(ctx context.Context, decision domain.Decision) error {
	tx, err := q.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		"UPDATE tasks SET resolved = 1 WHERE id = ? AND resolved = 0", decision.TaskID)
	if err != nil {
		return fmt.Errorf("marking task resolved: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking task resolution: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("resolve: task %s: %w", decision.TaskID, domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO task_decisions (task_id, choice, actor, actor_kind, rationale, description, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, decision.TaskID, string(decision.Choice), decision.Actor, string(decision.ActorKind),
		decision.Rationale, decision.Description, decision.DecidedAt); err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListPending returns unresolved tasks, optionally filtered by corpus,
// oldest first.
func (q *taskQueue) ListPending(ctx context.Context, corpusID string) ([]domain.Task, error) {
	query := `SELECT id, kind, corpus_id, document_id, image_id, evidence, created_at
		FROM tasks WHERE resolved = 0`
	args := []any{}
	if corpusID != "" {
		query += " AND corpus_id = ?"
		args = append(args, corpusID)
	}
	query += " ORDER BY created_at"

	rows, err := q.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task //nolint:prealloc // size unknown from query
	for rows.Next() {
		var task domain.Task
		var kind, evidenceJSON string
		if err := rows.Scan(&task.ID, &kind, &task.CorpusID, &task.DocumentID,
			&task.ImageID, &evidenceJSON, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		task.Kind = domain.TaskKind(kind)
		if evidenceJSON != "" && evidenceJSON != "null" {
			if err := json.Unmarshal([]byte(evidenceJSON), &task.Evidence); err != nil {
				return nil, fmt.Errorf("unmarshalling evidence: %w", err)
			}
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	return tasks, nil
}

// getDecision loads the verdict for a task, domain.ErrNotFound if none
// has been recorded yet.
func (q *taskQueue) getDecision(ctx context.Context, taskID string) (domain.Decision, error) {
	row := q.store.db.QueryRowContext(ctx, `
		SELECT task_id, choice, actor, actor_kind, rationale, description, decided_at
		FROM task_decisions WHERE task_id = ?
	`, taskID)

	var decision domain.Decision
	var choice, actorKind string
	if err := row.Scan(&decision.TaskID, &choice, &decision.Actor, &actorKind,
		&decision.Rationale, &decision.Description, &decision.DecidedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Decision{}, domain.ErrNotFound
		}
		return domain.Decision{}, fmt.Errorf("scanning decision: %w", err)
	}
	decision.Choice = domain.DecisionChoice(choice)
	decision.ActorKind = domain.ActorKind(actorKind)
	return decision, nil
}
