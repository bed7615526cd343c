package domain

import "time"

// TaskKind identifies what a human is being asked to decide.
type TaskKind string

const (
	// TaskNearDuplicate presents two images side by side; the reviewer
	// links them as duplicates or processes the new one as unique.
	TaskNearDuplicate TaskKind = "near_duplicate"

	// TaskInterpretation asks the reviewer to approve, edit or ignore a
	// low-confidence interpretation.
	TaskInterpretation TaskKind = "interpretation"

	// TaskBlockedDocument asks the reviewer to unblock a document that
	// missed its completion thresholds.
	TaskBlockedDocument TaskKind = "blocked_document"
)

// Task is a human-in-the-loop escalation. The pipeline blocks on the
// decision; nothing proceeds for the affected entity until it arrives.
type Task struct {
	// ID is the unique identifier for the task.
	ID string

	// Kind is what the reviewer is asked to decide.
	Kind TaskKind

	// CorpusID scopes the task; evidence never crosses corpora.
	CorpusID string

	// DocumentID and ImageID identify the affected entities. ImageID is
	// empty for document-level tasks.
	DocumentID string
	ImageID    string

	// Evidence carries the bundle presented to the reviewer, e.g. both
	// image IDs and the similarity score for a near-duplicate task.
	Evidence map[string]string

	// CreatedAt is when the pipeline escalated.
	CreatedAt time.Time
}

// DecisionChoice is the reviewer's verdict on a task.
type DecisionChoice string

const (
	// ChoiceLinkDuplicate links the candidate image to the canonical.
	ChoiceLinkDuplicate DecisionChoice = "link_duplicate"

	// ChoiceProcessUnique re-enters the image into full processing.
	ChoiceProcessUnique DecisionChoice = "process_unique"

	// ChoiceApprove accepts the pending interpretation.
	ChoiceApprove DecisionChoice = "approve"

	// ChoiceIgnore marks the image as carrying no semantic content.
	ChoiceIgnore DecisionChoice = "ignore"

	// ChoiceCancelled resolves a task whose document was removed while
	// the task was pending.
	ChoiceCancelled DecisionChoice = "cancelled"
)

// Decision resolves a task. Rationale is mandatory for human decisions.
type Decision struct {
	// TaskID identifies the task being resolved.
	TaskID string

	// Choice is the verdict.
	Choice DecisionChoice

	// Actor is the reviewer identity (or "system" for cancellations).
	Actor string

	// ActorKind classifies the actor.
	ActorKind ActorKind

	// Rationale explains the verdict. Required when ActorKind is human.
	Rationale string

	// Description carries an edited interpretation when the reviewer
	// corrected the text before approving.
	Description string

	// DecidedAt is when the verdict was recorded.
	DecidedAt time.Time
}
