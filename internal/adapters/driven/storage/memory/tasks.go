package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure TaskQueue implements the interface.
var _ driven.TaskQueue = (*TaskQueue)(nil)

// TaskQueue is an in-memory HITL queue. AwaitDecision blocks on a
// channel resolved by Resolve, so suspended pipeline steps wake exactly
// once, without polling.
type TaskQueue struct {
	mu      sync.Mutex
	pending map[string]domain.Task
	waiters map[string]chan domain.Decision
	decided map[string]domain.Decision
}

// NewTaskQueue creates a new in-memory task queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		pending: make(map[string]domain.Task),
		waiters: make(map[string]chan domain.Decision),
		decided: make(map[string]domain.Decision),
	}
}

// CreateTask registers a task and returns its ID.
func (q *TaskQueue) CreateTask(_ context.Context, task domain.Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if task.ID == "" {
		return "", fmt.Errorf("create task: %w: missing ID", domain.ErrInvalidInput)
	}
	if _, ok := q.pending[task.ID]; ok {
		return "", fmt.Errorf("create task %s: %w", task.ID, domain.ErrAlreadyExists)
	}
	q.pending[task.ID] = task
	q.waiters[task.ID] = make(chan domain.Decision, 1)
	return task.ID, nil
}

// AwaitDecision blocks until the task is resolved or ctx is done.
func (q *TaskQueue) AwaitDecision(ctx context.Context, taskID string) (domain.Decision, error) {
	q.mu.Lock()
	if d, ok := q.decided[taskID]; ok {
		q.mu.Unlock()
		return d, nil
	}
	ch, ok := q.waiters[taskID]
	q.mu.Unlock()
	if !ok {
		return domain.Decision{}, fmt.Errorf("await decision: task %s: %w", taskID, domain.ErrNotFound)
	}

	select {
	case <-ctx.Done():
		return domain.Decision{}, ctx.Err()
	case d := <-ch:
		return d, nil
	}
}

// Resolve delivers a decision, waking the awaiting step.
func (q *TaskQueue) Resolve(_ context.Context, decision domain.Decision) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.waiters[decision.TaskID]
	if !ok {
		return fmt.Errorf("resolve: task %s: %w", decision.TaskID, domain.ErrNotFound)
	}
	delete(q.pending, decision.TaskID)
	delete(q.waiters, decision.TaskID)
	q.decided[decision.TaskID] = decision
	ch <- decision
	return nil
}

// ListPending returns unresolved tasks, optionally filtered by corpus.
func (q *TaskQueue) ListPending(_ context.Context, corpusID string) ([]domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.Task
	for _, t := range q.pending {
		if corpusID == "" || t.CorpusID == corpusID {
			out = append(out, t)
		}
	}
	return out, nil
}
