package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
	"github.com/casefile-labs/verity/internal/logger"
)

// Trigger names the event causing a state transition.
type Trigger string

// Document triggers.
const (
	TriggerNormalized         Trigger = "normalization_complete"
	TriggerTextExtracted      Trigger = "text_extraction_complete"
	TriggerImagesExtracted    Trigger = "image_extraction_complete"
	TriggerPartialThreshold   Trigger = "partial_threshold_met"
	TriggerReadyThreshold     Trigger = "ready_threshold_met"
	TriggerReprocessRequested Trigger = "reprocess_requested"
	TriggerReprocessResume    Trigger = "reprocess_resume"
	TriggerUnblocked          Trigger = "unblocked"
	TriggerRemovalRequested   Trigger = "removal_requested"
	TriggerRestored           Trigger = "restored"
	TriggerRetentionElapsed   Trigger = "retention_elapsed"
	TriggerBlockedEscalation  Trigger = "blocked"
	TriggerFatalError         Trigger = "fatal_error"
)

// Image triggers.
const (
	TriggerProcessingStarted    Trigger = "processing_started"
	TriggerInterpretationNeeded Trigger = "interpretation_needed"
	TriggerImageCompleted       Trigger = "image_completed"
	TriggerImageIgnored         Trigger = "image_ignored"
	TriggerDraftOpened          Trigger = "draft_opened"
	TriggerDraftCompleted       Trigger = "draft_completed"
	TriggerReinstated           Trigger = "reinstated"
	TriggerReextracted          Trigger = "reextracted"
	TriggerCascadeDeletion      Trigger = "cascade_deletion"
)

// docTransitions are the explicit document transitions. The
// any-active-state escalations to blocked, failed and removed are
// handled in targetDocState.
var docTransitions = map[domain.DocumentState]map[Trigger]domain.DocumentState{
	domain.DocIngested: {
		TriggerNormalized: domain.DocNormalized,
	},
	domain.DocNormalized: {
		TriggerTextExtracted: domain.DocTextExtracted,
	},
	domain.DocTextExtracted: {
		TriggerImagesExtracted: domain.DocImagesExtracted,
	},
	domain.DocImagesExtracted: {
		TriggerPartialThreshold: domain.DocPartiallyProcessed,
		TriggerReadyThreshold:   domain.DocReady,
	},
	domain.DocPartiallyProcessed: {
		TriggerReadyThreshold:     domain.DocReady,
		TriggerReprocessRequested: domain.DocReprocessing,
	},
	domain.DocReady: {
		TriggerReprocessRequested: domain.DocReprocessing,
	},
	domain.DocFailed: {
		TriggerReprocessRequested: domain.DocReprocessing,
	},
	domain.DocReprocessing: {
		TriggerReprocessResume: domain.DocTextExtracted,
	},
	domain.DocBlocked: {
		// Unblocking resumes at BlockedFrom when recorded; the table
		// entry is the fallback for documents blocked before tracking.
		TriggerUnblocked:          domain.DocImagesExtracted,
		TriggerReprocessRequested: domain.DocReprocessing,
	},
	domain.DocRemoved: {
		TriggerRestored:           domain.DocReady,
		TriggerReprocessRequested: domain.DocReprocessing,
		TriggerRetentionElapsed:   domain.DocPermanentlyDeleted,
	},
}

// imgTransitions are the explicit image transitions. Draft opening and
// cascade deletion are handled in targetImgState.
var imgTransitions = map[domain.ImageState]map[Trigger]domain.ImageState{
	domain.ImgExtracted: {
		TriggerProcessingStarted: domain.ImgProcessing,
	},
	domain.ImgProcessing: {
		TriggerInterpretationNeeded: domain.ImgNeedsInterpretation,
		TriggerImageCompleted:       domain.ImgCompleted,
		TriggerImageIgnored:         domain.ImgIgnored,
	},
	domain.ImgNeedsInterpretation: {
		TriggerImageCompleted:    domain.ImgCompleted,
		TriggerImageIgnored:      domain.ImgIgnored,
		TriggerProcessingStarted: domain.ImgProcessing,
	},
	domain.ImgIgnored: {
		TriggerReinstated: domain.ImgNeedsInterpretation,
	},
	domain.ImgCompleted: {
		TriggerReextracted: domain.ImgExtracted,
	},
	domain.ImgDraft: {
		TriggerDraftCompleted: domain.ImgCompleted,
	},
}

// TransitionError reports a trigger the tables do not permit from the
// entity's current state.
type TransitionError struct {
	Entity  string
	From    string
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: trigger %q not permitted from state %q", e.Entity, e.Trigger, e.From)
}

func (e *TransitionError) Unwrap() error { return domain.ErrInvalidTransition }

// TransitionOpts carries the audit context and hooks for one transition.
type TransitionOpts struct {
	// Actor and ActorKind identify who caused the transition.
	Actor     string
	ActorKind domain.ActorKind

	// Rationale is mandatory for human-caused transitions.
	Rationale string

	// CorrelationID groups the transition with its pipeline run.
	CorrelationID string

	// Tag, Severity, Detail and ReviewerOverrideAvailable flow into the
	// audit event unchanged.
	Tag                       string
	Severity                  domain.AuditSeverity
	Detail                    map[string]string
	ReviewerOverrideAvailable bool

	// MutateDocument/MutateImage adjust entity fields inside the same
	// commit as the state change.
	MutateDocument func(*domain.Document)
	MutateImage    func(*domain.Image)

	// Effect runs after the state is durably committed. A crash before
	// commit leaves the transition retryable; a crash after commit is
	// resumed by replaying the transition, which is a no-op.
	Effect func(ctx context.Context) error
}

// TransitionResult reports what a transition did.
type TransitionResult struct {
	// Applied is false when the transition had already been committed
	// (replay after a crash); nothing was changed and no side effects ran.
	Applied bool

	// From and To are the states around the transition.
	From string
	To   string

	// AuditID is the committed audit event, empty on replays.
	AuditID string
}

// StateMachine owns every document and image state change. Transitions
// for one entity are serialised by per-entity ownership; transitions
// for different entities proceed fully in parallel.
type StateMachine struct {
	docs  driven.DocumentStore
	imgs  driven.ImageStore
	audit driven.AuditLog
	locks entityLocks
	now   func() time.Time
}

// NewStateMachine creates the state machine over the given stores.
func NewStateMachine(docs driven.DocumentStore, imgs driven.ImageStore, audit driven.AuditLog) *StateMachine {
	return &StateMachine{docs: docs, imgs: imgs, audit: audit, now: time.Now}
}

// TransitionDocument applies a trigger to a document.
func (m *StateMachine) TransitionDocument(ctx context.Context, docID string, trigger Trigger, opts TransitionOpts) (*TransitionResult, error) {
	unlock := m.locks.lock("doc:" + docID)
	defer unlock()

	doc, err := m.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	target, ok := targetDocState(doc.State, trigger)
	if !ok {
		if docReplayed(doc.State, trigger) {
			logger.Debug("Replayed document transition %s on %s, no-op", trigger, docID)
			return &TransitionResult{Applied: false, From: string(doc.State), To: string(doc.State)}, nil
		}
		return nil, &TransitionError{Entity: "document " + docID, From: string(doc.State), Trigger: trigger}
	}

	if trigger == TriggerUnblocked && doc.BlockedFrom != nil {
		target = *doc.BlockedFrom
	}

	from := doc.State
	doc.State = target
	if target == domain.DocBlocked {
		prior := from
		doc.BlockedFrom = &prior
	} else {
		doc.BlockedFrom = nil
	}
	m.stampDocument(doc, from, target)
	if opts.MutateDocument != nil {
		opts.MutateDocument(doc)
	}

	if err := m.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("commit document transition: %w", err)
	}

	auditID, err := m.writeAudit(ctx, "document", docID, trigger, string(from), string(target), opts)
	if err != nil {
		return nil, err
	}

	if opts.Effect != nil {
		if err := opts.Effect(ctx); err != nil {
			return nil, fmt.Errorf("post-commit effect for %s: %w", docID, err)
		}
	}
	return &TransitionResult{Applied: true, From: string(from), To: string(target), AuditID: auditID}, nil
}

// TransitionImage applies a trigger to an image.
func (m *StateMachine) TransitionImage(ctx context.Context, imageID string, trigger Trigger, opts TransitionOpts) (*TransitionResult, error) {
	unlock := m.locks.lock("img:" + imageID)
	defer unlock()

	img, err := m.imgs.GetImage(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}

	target, ok := targetImgState(img.State, trigger)
	if !ok {
		if imgReplayed(img.State, trigger) {
			logger.Debug("Replayed image transition %s on %s, no-op", trigger, imageID)
			return &TransitionResult{Applied: false, From: string(img.State), To: string(img.State)}, nil
		}
		return nil, &TransitionError{Entity: "image " + imageID, From: string(img.State), Trigger: trigger}
	}

	from := img.State
	img.State = target
	img.UpdatedAt = m.now()
	if opts.MutateImage != nil {
		opts.MutateImage(img)
	}

	if err := m.imgs.SaveImage(ctx, img); err != nil {
		return nil, fmt.Errorf("commit image transition: %w", err)
	}

	auditID, err := m.writeAudit(ctx, "image", imageID, trigger, string(from), string(target), opts)
	if err != nil {
		return nil, err
	}

	if opts.Effect != nil {
		if err := opts.Effect(ctx); err != nil {
			return nil, fmt.Errorf("post-commit effect for %s: %w", imageID, err)
		}
	}
	return &TransitionResult{Applied: true, From: string(from), To: string(target), AuditID: auditID}, nil
}

// targetDocState resolves the trigger against the tables plus the
// any-active-state escalations.
func targetDocState(from domain.DocumentState, trigger Trigger) (domain.DocumentState, bool) {
	switch trigger {
	case TriggerBlockedEscalation:
		if from.Active() && from != domain.DocBlocked && from != domain.DocRemoved {
			return domain.DocBlocked, true
		}
		return "", false
	case TriggerFatalError:
		if from.Active() {
			return domain.DocFailed, true
		}
		return "", false
	case TriggerRemovalRequested:
		if from != domain.DocRemoved && from != domain.DocPermanentlyDeleted {
			return domain.DocRemoved, true
		}
		return "", false
	}
	target, ok := docTransitions[from][trigger]
	return target, ok
}

// targetImgState resolves the trigger against the tables plus draft
// opening and cascade deletion.
func targetImgState(from domain.ImageState, trigger Trigger) (domain.ImageState, bool) {
	switch trigger {
	case TriggerDraftOpened:
		if from.Active() && from != domain.ImgDraft && from != domain.ImgMarkedForDeletion {
			return domain.ImgDraft, true
		}
		return "", false
	case TriggerCascadeDeletion:
		if from != domain.ImgMarkedForDeletion {
			return domain.ImgMarkedForDeletion, true
		}
		return "", false
	case TriggerReextracted:
		// Reprocessing re-marks every non-deleted image, whatever state
		// it reached in the prior epoch.
		if from != domain.ImgMarkedForDeletion && from != domain.ImgExtracted {
			return domain.ImgExtracted, true
		}
		return "", false
	}
	target, ok := imgTransitions[from][trigger]
	return target, ok
}

// docReplayed reports whether the entity already sits in the state this
// trigger leads to, i.e. the transition was committed before a crash.
func docReplayed(current domain.DocumentState, trigger Trigger) bool {
	switch trigger {
	case TriggerBlockedEscalation:
		return current == domain.DocBlocked
	case TriggerFatalError:
		return current == domain.DocFailed
	case TriggerRemovalRequested:
		return current == domain.DocRemoved
	case TriggerUnblocked:
		// The committed target is whatever state the block interrupted,
		// so any non-blocked state counts as already unblocked.
		return current != domain.DocBlocked
	}
	for _, targets := range docTransitions {
		if t, ok := targets[trigger]; ok && t == current {
			return true
		}
	}
	return false
}

func imgReplayed(current domain.ImageState, trigger Trigger) bool {
	switch trigger {
	case TriggerDraftOpened:
		return current == domain.ImgDraft
	case TriggerCascadeDeletion:
		return current == domain.ImgMarkedForDeletion
	case TriggerReextracted:
		return current == domain.ImgExtracted
	}
	for _, targets := range imgTransitions {
		if t, ok := targets[trigger]; ok && t == current {
			return true
		}
	}
	return false
}

// stampDocument maintains the lifecycle timestamps around a transition.
func (m *StateMachine) stampDocument(doc *domain.Document, from, to domain.DocumentState) {
	now := m.now()
	if from == domain.DocIngested && doc.ProcessingStartedAt == nil {
		doc.ProcessingStartedAt = &now
	}
	switch to {
	case domain.DocReady:
		doc.ProcessingCompletedAt = &now
	case domain.DocRemoved:
		doc.RemovedAt = &now
	}
}

func (m *StateMachine) writeAudit(ctx context.Context, kind, id string, trigger Trigger, from, to string, opts TransitionOpts) (string, error) {
	severity := opts.Severity
	if severity == "" {
		severity = domain.SeverityInfo
	}
	actor := opts.Actor
	if actor == "" {
		actor = "pipeline"
	}
	actorKind := opts.ActorKind
	if actorKind == "" {
		actorKind = domain.ActorAgent
	}

	ev := domain.AuditEvent{
		ID:                        uuid.NewString(),
		Timestamp:                 m.now(),
		Actor:                     actor,
		ActorKind:                 actorKind,
		Resource:                  id,
		ResourceKind:              kind,
		Action:                    string(trigger),
		Rationale:                 opts.Rationale,
		BeforeState:               from,
		AfterState:                to,
		CorrelationID:             opts.CorrelationID,
		Phase:                     "pipeline",
		Ruleset:                   domain.RulesetVersion,
		Severity:                  severity,
		Tag:                       opts.Tag,
		Detail:                    opts.Detail,
		ReviewerOverrideAvailable: opts.ReviewerOverrideAvailable,
	}
	if err := m.audit.Append(ctx, ev); err != nil {
		return "", fmt.Errorf("audit transition: %w", err)
	}
	return ev.ID, nil
}

// entityLocks serialises transitions per entity.
type entityLocks struct {
	m sync.Map
}

func (l *entityLocks) lock(key string) func() {
	mu, _ := l.m.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}
