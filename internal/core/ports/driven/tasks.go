package driven

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// TaskQueue is the human-in-the-loop interface. AwaitDecision is an
// explicit suspension point: the owning pipeline step blocks until a
// reviewer (or a cancellation) resolves the task, possibly from
// another process.
type TaskQueue interface {
	// CreateTask registers a task and returns its ID.
	CreateTask(ctx context.Context, task domain.Task) (string, error)

	// AwaitDecision blocks until the task is resolved or ctx is done.
	AwaitDecision(ctx context.Context, taskID string) (domain.Decision, error)

	// Resolve delivers a decision, waking the awaiting step.
	Resolve(ctx context.Context, decision domain.Decision) error

	// ListPending returns unresolved tasks, optionally filtered by
	// corpus (empty corpusID means all).
	ListPending(ctx context.Context, corpusID string) ([]domain.Task, error)
}
