package domain

import "time"

// ActorKind identifies who performed an audited action.
type ActorKind string

const (
	ActorAgent ActorKind = "agent"
	ActorHuman ActorKind = "human"
)

// AuditSeverity ranks the operational impact of an audited action.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// Audit tags attached to specific decision classes.
const (
	// TagAutoLowQuality marks images auto-ignored because both OCR and
	// vision confidence fell below the configured floors.
	TagAutoLowQuality = "auto_low_quality"

	// TagPossibleDuplicate flags images in the optional batch-review
	// similarity band.
	TagPossibleDuplicate = "possible_duplicate"

	// TagIsolationViolation marks rejected cross-corpus references.
	TagIsolationViolation = "isolation_violation"

	// TagForceCompletion marks documents blocked by the force-completion
	// timeout regardless of their completion percentage.
	TagForceCompletion = "force_completion_timeout"
)

// AuditEvent is an immutable operational log entry, distinct from
// provenance: it captures decisions (state transitions, overrides,
// violations) rather than artifact derivation. The persisted field set
// is a bit-exact contract consumed by litigation export tooling.
type AuditEvent struct {
	// ID is the unique identifier for the event.
	ID string

	// Timestamp is when the decision was taken.
	Timestamp time.Time

	// Actor identifies who acted (reviewer identity or agent name).
	Actor string

	// ActorKind classifies the actor.
	ActorKind ActorKind

	// Resource is the affected artifact or component identifier.
	Resource string

	// ResourceKind names what the resource is (document, image, corpus,
	// scheduler, vectors).
	ResourceKind string

	// Action is the decision taken.
	Action string

	// Rationale explains the decision. Mandatory when a human overrides
	// or corrects the pipeline.
	Rationale string

	// BeforeState and AfterState snapshot the resource around the action.
	BeforeState string
	AfterState  string

	// CorrelationID groups events belonging to one pipeline run.
	CorrelationID string

	// Phase is the pipeline phase the decision was taken in.
	Phase string

	// Ruleset is the version of the governing rules in force.
	Ruleset string

	// Severity ranks operational impact.
	Severity AuditSeverity

	// Tag carries a decision-class marker (see Tag constants).
	Tag string

	// Detail holds structured extras such as both corpus IDs on an
	// isolation violation or the vector count on a cleanup.
	Detail map[string]string

	// ReviewerOverrideAvailable marks automated decisions a reviewer may
	// still reverse.
	ReviewerOverrideAvailable bool
}

// Ruleset version stamped on every audit event produced by this build.
const RulesetVersion = "1.0"
