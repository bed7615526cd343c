package driven

import (
	"context"

	"github.com/casefile-labs/verity/internal/core/domain"
)

// SettingsStore persists pipeline settings.
type SettingsStore interface {
	// Load returns the stored settings, or defaults when none exist.
	Load(ctx context.Context) (domain.Settings, error)

	// Save persists the settings.
	Save(ctx context.Context, s domain.Settings) error
}
