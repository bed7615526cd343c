package domain

import (
	"fmt"
	"time"
)

// SimilaritySettings are the duplicate-resolution band boundaries.
// These are tuning defaults, not fixed contracts.
type SimilaritySettings struct {
	// ExactThreshold and above auto-links with no human involvement.
	ExactThreshold float64 `toml:"exact_threshold"`

	// NearThreshold up to ExactThreshold blocks for side-by-side review.
	NearThreshold float64 `toml:"near_threshold"`

	// PossibleThreshold up to NearThreshold proceeds flagged for
	// optional batch review.
	PossibleThreshold float64 `toml:"possible_threshold"`
}

// CompletionSettings are the document completion thresholds.
type CompletionSettings struct {
	// ReadyPercent is the weighted completion required for ready.
	ReadyPercent float64 `toml:"ready_percent"`

	// PartialPercent is the weighted completion required for
	// partially processed.
	PartialPercent float64 `toml:"partial_percent"`
}

// QualitySettings are the confidence floors for the auto-ignore
// fallback and interpretation escalation.
type QualitySettings struct {
	// OCRFloor and VisionFloor: an image whose OCR and vision
	// confidence both fall below these is auto-ignored, on the record.
	OCRFloor    float64 `toml:"ocr_floor"`
	VisionFloor float64 `toml:"vision_floor"`

	// InterpretationFloor: a synthesis below this goes to a reviewer
	// instead of completing automatically.
	InterpretationFloor float64 `toml:"interpretation_floor"`
}

// RetrySettings bound transient-failure retries.
type RetrySettings struct {
	// MaxAttempts is the per-step attempt budget. Resource timeouts
	// count toward the same budget.
	MaxAttempts int `toml:"max_attempts"`

	// Backoff is the base backoff, doubled per attempt.
	Backoff time.Duration `toml:"backoff"`
}

// SchedulerSettings size the resource scheduler.
type SchedulerSettings struct {
	// OCRSlots, VisionSlots and EmbeddingSlots bound concurrency per
	// resource class.
	OCRSlots       int `toml:"ocr_slots"`
	VisionSlots    int `toml:"vision_slots"`
	EmbeddingSlots int `toml:"embedding_slots"`

	// AcquireTimeout is the default slot-acquisition timeout.
	AcquireTimeout time.Duration `toml:"acquire_timeout"`

	// PromoteAfter is the anti-starvation bound: a request waiting
	// longer is promoted one priority level.
	PromoteAfter time.Duration `toml:"promote_after"`
}

// TimeoutSettings are the per-document pipeline budgets, scaled by
// timeout class.
type TimeoutSettings struct {
	// Small, Standard and Complex are the class budgets before a
	// below-partial document is blocked.
	Small    time.Duration `toml:"small"`
	Standard time.Duration `toml:"standard"`
	Complex  time.Duration `toml:"complex"`

	// ForceCompletion blocks the document regardless of percentage,
	// with a mandatory audit entry.
	ForceCompletion time.Duration `toml:"force_completion"`
}

// Budget returns the class budget for the given timeout class.
func (t TimeoutSettings) Budget(class TimeoutClass) time.Duration {
	switch class {
	case TimeoutSmall:
		return t.Small
	case TimeoutComplex:
		return t.Complex
	default:
		return t.Standard
	}
}

// RetentionSettings govern removal reversibility.
type RetentionSettings struct {
	// HardDeleteAfter is the window before a hard delete is swept.
	HardDeleteAfter time.Duration `toml:"hard_delete_after"`

	// RestorationTTL is how long soft removals stay restorable.
	RestorationTTL time.Duration `toml:"restoration_ttl"`
}

// OverrideSettings govern administrative isolation overrides.
type OverrideSettings struct {
	// MinJustification is the minimum justification length accepted.
	MinJustification int `toml:"min_justification"`
}

// Settings is the full pipeline configuration.
type Settings struct {
	Similarity SimilaritySettings `toml:"similarity"`
	Completion CompletionSettings `toml:"completion"`
	Quality    QualitySettings    `toml:"quality"`
	Retry      RetrySettings      `toml:"retry"`
	Scheduler  SchedulerSettings  `toml:"scheduler"`
	Timeouts   TimeoutSettings    `toml:"timeouts"`
	Retention  RetentionSettings  `toml:"retention"`
	Override   OverrideSettings   `toml:"override"`
}

// DefaultSettings returns the tuning defaults.
func DefaultSettings() Settings {
	return Settings{
		Similarity: SimilaritySettings{
			ExactThreshold:    0.98,
			NearThreshold:     0.85,
			PossibleThreshold: 0.70,
		},
		Completion: CompletionSettings{
			ReadyPercent:   90.0,
			PartialPercent: 70.0,
		},
		Quality: QualitySettings{
			OCRFloor:            0.30,
			VisionFloor:         0.30,
			InterpretationFloor: 0.60,
		},
		Retry: RetrySettings{
			MaxAttempts: 3,
			Backoff:     2 * time.Second,
		},
		Scheduler: SchedulerSettings{
			OCRSlots:       4,
			VisionSlots:    2,
			EmbeddingSlots: 4,
			AcquireTimeout: 2 * time.Minute,
			PromoteAfter:   10 * time.Minute,
		},
		Timeouts: TimeoutSettings{
			Small:           2 * time.Hour,
			Standard:        8 * time.Hour,
			Complex:         16 * time.Hour,
			ForceCompletion: 24 * time.Hour,
		},
		Retention: RetentionSettings{
			HardDeleteAfter: 30 * 24 * time.Hour,
			RestorationTTL:  7 * 24 * time.Hour,
		},
		Override: OverrideSettings{
			MinJustification: 40,
		},
	}
}

// Validate checks the settings for internal consistency.
func (s Settings) Validate() error {
	sim := s.Similarity
	if !(sim.PossibleThreshold < sim.NearThreshold && sim.NearThreshold < sim.ExactThreshold) {
		return fmt.Errorf("%w: similarity thresholds must be ordered possible < near < exact", ErrInvalidInput)
	}
	if sim.PossibleThreshold < 0 || sim.ExactThreshold > 1 {
		return fmt.Errorf("%w: similarity thresholds must stay within [0,1]", ErrInvalidInput)
	}
	if s.Completion.PartialPercent >= s.Completion.ReadyPercent {
		return fmt.Errorf("%w: partial threshold must be below ready threshold", ErrInvalidInput)
	}
	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry budget must be at least one attempt", ErrInvalidInput)
	}
	if s.Scheduler.OCRSlots < 1 || s.Scheduler.VisionSlots < 1 || s.Scheduler.EmbeddingSlots < 1 {
		return fmt.Errorf("%w: every resource class needs at least one slot", ErrInvalidInput)
	}
	if s.Timeouts.ForceCompletion < s.Timeouts.Complex {
		return fmt.Errorf("%w: force-completion budget must cover the complex class budget", ErrInvalidInput)
	}
	return nil
}

// Slots returns the configured slot count for a resource class.
func (s SchedulerSettings) Slots(class ResourceClass) int {
	switch class {
	case ResourceOCR:
		return s.OCRSlots
	case ResourceVision:
		return s.VisionSlots
	case ResourceEmbedding:
		return s.EmbeddingSlots
	default:
		return 0
	}
}
