package domain

import "time"

// ResourceClass identifies an external engine pool bounded by the
// resource scheduler.
type ResourceClass string

const (
	// ResourceOCR bounds concurrent OCR engine calls.
	ResourceOCR ResourceClass = "ocr"

	// ResourceVision bounds concurrent vision-analysis calls.
	ResourceVision ResourceClass = "vision"

	// ResourceEmbedding bounds concurrent embedding calls.
	ResourceEmbedding ResourceClass = "embedding"
)

// Priority orders waiting work in the scheduler queues. Priority never
// preempts an already-running operation, only queue position.
type Priority int

const (
	// PriorityBatch is background work with no deadline pressure.
	PriorityBatch Priority = iota

	// PriorityStandard is ordinary pipeline work.
	PriorityStandard

	// PriorityCritical covers title/method diagrams and documents
	// nearing their force-completion timeout.
	PriorityCritical
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityStandard:
		return "standard"
	default:
		return "batch"
	}
}

// Promote returns the next priority level up, used by the
// anti-starvation rule. Critical stays critical.
func (p Priority) Promote() Priority {
	if p >= PriorityCritical {
		return PriorityCritical
	}
	return p + 1
}

// Slot is an ephemeral concurrency token issued by the scheduler for
// the duration of one processing step. Slots are never persisted.
type Slot struct {
	// ID identifies the slot for release and auditing.
	ID string

	// Class is the resource class the slot draws from.
	Class ResourceClass

	// Priority is the priority the slot was granted at.
	Priority Priority

	// AcquiredAt is when the slot was granted.
	AcquiredAt time.Time
}

// SchedulerMetrics is a point-in-time snapshot of scheduler occupancy.
type SchedulerMetrics struct {
	// InUse and Free count slots per resource class.
	InUse map[ResourceClass]int
	Free  map[ResourceClass]int

	// Waiting counts queued requests per resource class.
	Waiting map[ResourceClass]int

	// Promotions counts anti-starvation priority boosts since start.
	Promotions int
}
