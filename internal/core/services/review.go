package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
	"github.com/casefile-labs/verity/internal/core/ports/driving"
	"github.com/casefile-labs/verity/internal/logger"
)

var _ driving.Review = (*Review)(nil)

// Review is the single-reviewer surface. Decisions on tasks with a
// suspended pipeline step wake that step; decisions on orphaned tasks
// (the owning run already returned) are applied here directly, so a
// verdict never sits unexecuted.
type Review struct {
	machine    *StateMachine
	pipeline   *Pipeline
	provenance *Provenance

	docs  driven.DocumentStore
	imgs  driven.ImageStore
	tasks driven.TaskQueue
	audit driven.AuditLog

	now func() time.Time
}

// NewReview creates the review service.
func NewReview(
	machine *StateMachine,
	pipeline *Pipeline,
	provenance *Provenance,
	docs driven.DocumentStore,
	imgs driven.ImageStore,
	tasks driven.TaskQueue,
	audit driven.AuditLog,
) *Review {
	return &Review{
		machine:    machine,
		pipeline:   pipeline,
		provenance: provenance,
		docs:       docs,
		imgs:       imgs,
		tasks:      tasks,
		audit:      audit,
		now:        time.Now,
	}
}

// PendingTasks lists unresolved escalations, optionally corpus-scoped.
func (r *Review) PendingTasks(ctx context.Context, corpusID string) ([]domain.Task, error) {
	return r.tasks.ListPending(ctx, corpusID)
}

// ResolveTask records a reviewer decision. Rationale is mandatory for
// human verdicts; there is no silent override path.
func (r *Review) ResolveTask(ctx context.Context, decision domain.Decision) error {
	if decision.ActorKind == "" {
		decision.ActorKind = domain.ActorHuman
	}
	if decision.ActorKind == domain.ActorHuman && decision.Rationale == "" {
		return fmt.Errorf("decision on task %s: %w", decision.TaskID, domain.ErrJustificationRequired)
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = r.now()
	}

	task, err := r.findTask(ctx, decision.TaskID)
	if err != nil {
		return err
	}

	if err := r.tasks.Resolve(ctx, decision); err != nil {
		return fmt.Errorf("resolve task: %w", err)
	}

	ev := domain.AuditEvent{
		ID:           uuid.NewString(),
		Timestamp:    r.now(),
		Actor:        decision.Actor,
		ActorKind:    decision.ActorKind,
		Resource:     task.DocumentID,
		ResourceKind: "document",
		Action:       "task_resolved",
		Rationale:    decision.Rationale,
		Phase:        "review",
		Ruleset:      domain.RulesetVersion,
		Severity:     domain.SeverityInfo,
		Detail: map[string]string{
			"task":   task.ID,
			"kind":   string(task.Kind),
			"choice": string(decision.Choice),
		},
	}
	if task.ImageID != "" {
		ev.Resource = task.ImageID
		ev.ResourceKind = "image"
	}
	if err := r.audit.Append(ctx, ev); err != nil {
		return fmt.Errorf("audit decision: %w", err)
	}

	if !r.pipeline.isActive(task.DocumentID) {
		return r.applyOrphanDecision(ctx, *task, decision)
	}
	return nil
}

// applyOrphanDecision executes a verdict whose owning pipeline run is
// no longer awaiting it.
func (r *Review) applyOrphanDecision(ctx context.Context, task domain.Task, decision domain.Decision) error {
	switch task.Kind {
	case domain.TaskBlockedDocument:
		if decision.Choice != domain.ChoiceApprove {
			return nil
		}
		_, err := r.machine.TransitionDocument(ctx, task.DocumentID, TriggerUnblocked, TransitionOpts{
			Actor:     decision.Actor,
			ActorKind: decision.ActorKind,
			Rationale: decision.Rationale,
		})
		return err

	case domain.TaskInterpretation:
		return r.applyInterpretation(ctx, task, decision)

	case domain.TaskNearDuplicate:
		return r.applyNearDuplicate(ctx, task, decision)

	default:
		return nil
	}
}

func (r *Review) applyInterpretation(ctx context.Context, task domain.Task, decision domain.Decision) error {
	img, err := r.imgs.GetImage(ctx, task.ImageID)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}

	switch decision.Choice {
	case domain.ChoiceApprove:
		approved := domain.SynthesisResult{
			Description: img.Description,
			Confidence:  img.DescriptionConfidence,
		}
		if decision.Description != "" {
			approved.Description = decision.Description
		}
		return r.pipeline.completeImage(ctx, *img, approved, true, decision.Actor, decision.ActorKind, decision.Rationale, nil, "")

	case domain.ChoiceIgnore:
		_, err := r.machine.TransitionImage(ctx, task.ImageID, TriggerImageIgnored, TransitionOpts{
			Actor:     decision.Actor,
			ActorKind: decision.ActorKind,
			Rationale: decision.Rationale,
		})
		return err

	default:
		return nil
	}
}

func (r *Review) applyNearDuplicate(ctx context.Context, task domain.Task, decision domain.Decision) error {
	img, err := r.imgs.GetImage(ctx, task.ImageID)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}

	switch decision.Choice {
	case domain.ChoiceLinkDuplicate:
		canonicalID := task.Evidence["candidate"]
		if canonicalID == "" {
			return fmt.Errorf("task %s has no candidate evidence: %w", task.ID, domain.ErrInvalidInput)
		}
		return r.pipeline.linkDuplicate(ctx, *img, canonicalID, decision.Actor, decision.ActorKind, decision.Rationale, "")

	case domain.ChoiceProcessUnique:
		doc, err := r.docs.GetDocument(ctx, task.DocumentID)
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		if _, err := r.machine.TransitionImage(ctx, task.ImageID, TriggerProcessingStarted, TransitionOpts{
			Actor:     decision.Actor,
			ActorKind: decision.ActorKind,
			Rationale: decision.Rationale,
		}); err != nil {
			return err
		}
		return r.pipeline.fullProcess(ctx, doc, *img, "")

	default:
		return nil
	}
}

// OverrideDiagramType reclassifies an image's diagram role. The change
// shifts the document's completion weights, so the document is
// re-evaluated on its next processing pass.
func (r *Review) OverrideDiagramType(ctx context.Context, imageID string, dt domain.DiagramType, actor, rationale string) error {
	if !dt.Valid() {
		return fmt.Errorf("diagram type %q: %w", dt, domain.ErrInvalidInput)
	}
	if rationale == "" {
		return fmt.Errorf("diagram type override: %w", domain.ErrJustificationRequired)
	}

	img, err := r.imgs.GetImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}
	before := img.DiagramType
	if before == dt {
		return nil
	}
	img.DiagramType = dt
	img.UpdatedAt = r.now()
	if err := r.imgs.SaveImage(ctx, img); err != nil {
		return fmt.Errorf("save image: %w", err)
	}

	ev := domain.AuditEvent{
		ID:           uuid.NewString(),
		Timestamp:    r.now(),
		Actor:        actor,
		ActorKind:    domain.ActorHuman,
		Resource:     imageID,
		ResourceKind: "image",
		Action:       "diagram_type_overridden",
		Rationale:    rationale,
		BeforeState:  string(before),
		AfterState:   string(dt),
		Phase:        "review",
		Ruleset:      domain.RulesetVersion,
		Severity:     domain.SeverityWarning,
	}
	if err := r.audit.Append(ctx, ev); err != nil {
		return fmt.Errorf("audit override: %w", err)
	}
	logger.Info("Diagram type for %s overridden: %s -> %s", imageID, before, dt)
	return nil
}

// ReinstateIgnored reverses an ignore, typically the auto-low-quality
// fallback, and opens an interpretation task for a reviewer verdict.
func (r *Review) ReinstateIgnored(ctx context.Context, imageID, actor, rationale string) error {
	if rationale == "" {
		return fmt.Errorf("reinstate: %w", domain.ErrJustificationRequired)
	}

	img, err := r.imgs.GetImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}

	if _, err := r.machine.TransitionImage(ctx, imageID, TriggerReinstated, TransitionOpts{
		Actor:     actor,
		ActorKind: domain.ActorHuman,
		Rationale: rationale,
	}); err != nil {
		return err
	}

	task := domain.Task{
		ID:         uuid.NewString(),
		Kind:       domain.TaskInterpretation,
		CorpusID:   img.CorpusID,
		DocumentID: img.DocumentID,
		ImageID:    img.ID,
		Evidence: map[string]string{
			"description": img.Description,
			"reinstated":  "true",
		},
		CreatedAt: r.now(),
	}
	if _, err := r.tasks.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create interpretation task: %w", err)
	}
	return nil
}

// ReasonChain returns the last n audit events for a resource.
func (r *Review) ReasonChain(ctx context.Context, resource string, n int) ([]domain.AuditEvent, error) {
	return r.audit.ListByResource(ctx, resource, n)
}

// findTask locates a pending task by ID.
func (r *Review) findTask(ctx context.Context, taskID string) (*domain.Task, error) {
	pending, err := r.tasks.ListPending(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	for i := range pending {
		if pending[i].ID == taskID {
			return &pending[i], nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
}
