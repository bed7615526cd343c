package driving

import (
	"context"
	"time"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// Removal executes document removal under one of the three deletion
// strategies and the retention machinery around them.
type Removal interface {
	// Remove takes a document out of service under the given strategy.
	// Reason becomes the cleanup audit record's reason code.
	Remove(ctx context.Context, documentID string, strategy domain.DeletionStrategy, actor, reason string) error

	// Restore reverses a removal while its restoration entry is live.
	// Soft-keep restores instantly; soft-remove and hard-delete re-enter
	// reprocessing.
	Restore(ctx context.Context, documentID, actor string) error

	// Sweep expires restoration entries and executes hard deletes whose
	// retention window has lapsed, as of now.
	Sweep(ctx context.Context, now time.Time) error
}
