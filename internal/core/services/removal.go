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

var _ driving.Removal = (*Removal)(nil)

// Removal takes documents out of service under one of the three
// deletion strategies, keeps removals reversible while their
// restoration window lasts, and sweeps lapsed windows. Provenance and
// audit records survive every strategy, including hard delete.
type Removal struct {
	machine    *StateMachine
	pipeline   *Pipeline
	provenance *Provenance

	docs    driven.DocumentStore
	imgs    driven.ImageStore
	vectors driven.VectorStore
	cache   driven.RestorationCache
	tasks   driven.TaskQueue
	audit   driven.AuditLog

	retention domain.RetentionSettings
	now       func() time.Time
}

// NewRemoval creates the removal service.
func NewRemoval(
	machine *StateMachine,
	pipeline *Pipeline,
	provenance *Provenance,
	docs driven.DocumentStore,
	imgs driven.ImageStore,
	vectors driven.VectorStore,
	cache driven.RestorationCache,
	tasks driven.TaskQueue,
	audit driven.AuditLog,
	retention domain.RetentionSettings,
) *Removal {
	return &Removal{
		machine:    machine,
		pipeline:   pipeline,
		provenance: provenance,
		docs:       docs,
		imgs:       imgs,
		vectors:    vectors,
		cache:      cache,
		tasks:      tasks,
		audit:      audit,
		retention:  retention,
		now:        time.Now,
	}
}

// Remove takes a document out of active service. In-flight processing
// is cancelled and pending escalations for the document are resolved
// as cancelled before the removal commits.
func (r *Removal) Remove(ctx context.Context, documentID string, strategy domain.DeletionStrategy, actor, reason string) error {
	if !strategy.Valid() {
		return fmt.Errorf("deletion strategy %q: %w", strategy, domain.ErrInvalidInput)
	}

	r.pipeline.Cancel(documentID)
	if err := r.cancelPendingTasks(ctx, documentID); err != nil {
		return err
	}

	doc, err := r.docs.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	_, err = r.machine.TransitionDocument(ctx, documentID, TriggerRemovalRequested, TransitionOpts{
		Actor:     actor,
		ActorKind: domain.ActorHuman,
		Rationale: reason,
		Detail:    map[string]string{"strategy": string(strategy)},
		MutateDocument: func(d *domain.Document) {
			s := strategy
			d.Deletion = &s
		},
		Effect: func(ctx context.Context) error {
			return r.executeStrategy(ctx, doc, strategy, actor, reason)
		},
	})
	if err != nil {
		return err
	}

	// Images stay on record but stop counting toward completion.
	images, err := r.imgs.ListImages(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	for _, img := range images {
		if img.State == domain.ImgMarkedForDeletion {
			continue
		}
		if _, err := r.machine.TransitionImage(ctx, img.ID, TriggerCascadeDeletion, TransitionOpts{
			Actor:     actor,
			ActorKind: domain.ActorHuman,
			Rationale: "document removal cascade",
		}); err != nil {
			return err
		}
	}

	logger.Info("Removed document %s under %s", documentID, strategy)
	return nil
}

// executeStrategy runs the vector-side consequences of a committed
// removal and writes the mandatory cleanup audit record.
func (r *Removal) executeStrategy(ctx context.Context, doc *domain.Document, strategy domain.DeletionStrategy, actor, reason string) error {
	var (
		touched int
		err     error
		action  string
	)
	switch strategy {
	case domain.SoftKeep:
		// Vectors are retained but leave retrieval.
		touched, err = r.vectors.SetExcluded(ctx, doc.ID, true)
		action = "vectors_excluded"
	case domain.SoftRemove, domain.HardDelete:
		touched, err = r.vectors.DeleteByDocument(ctx, doc.ID)
		action = "vectors_deleted"
	}
	if err != nil {
		return fmt.Errorf("execute %s: %w", strategy, err)
	}

	if window, reversible := r.restorationWindow(strategy); reversible {
		entry := domain.RestorationEntry{
			DocumentID: doc.ID,
			Strategy:   strategy,
			CreatedAt:  r.now(),
			ExpiresAt:  r.now().Add(window),
		}
		if err := r.cache.Put(ctx, entry); err != nil {
			return fmt.Errorf("store restoration entry: %w", err)
		}
	}

	if _, err := r.provenance.Record(ctx, domain.ProvenanceRecord{
		Inputs:    []string{doc.ID},
		Outputs:   []string{artifactID(doc.ID, "removal", doc.Epoch)},
		Kind:      domain.TransformRemoval,
		Agent:     actor,
		AgentKind: domain.AgentHuman,
		Note:      string(strategy),
	}); err != nil {
		return err
	}

	ev := domain.AuditEvent{
		ID:           uuid.NewString(),
		Timestamp:    r.now(),
		Actor:        actor,
		ActorKind:    domain.ActorHuman,
		Resource:     doc.ID,
		ResourceKind: "vectors",
		Action:       action,
		Rationale:    reason,
		Phase:        "removal",
		Ruleset:      domain.RulesetVersion,
		Severity:     domain.SeverityHigh,
		Detail: map[string]string{
			"strategy": string(strategy),
			"vectors":  fmt.Sprintf("%d", touched),
			"document": doc.ID,
			"corpus":   doc.CorpusID,
		},
	}
	if err := r.audit.Append(ctx, ev); err != nil {
		return fmt.Errorf("audit cleanup: %w", err)
	}
	return nil
}

// restorationWindow returns the reversibility window for a strategy.
// Soft-keep removals need no entry: the vectors still exist and
// restoration is a flag flip with no deadline.
func (r *Removal) restorationWindow(strategy domain.DeletionStrategy) (time.Duration, bool) {
	switch strategy {
	case domain.SoftRemove:
		return r.retention.RestorationTTL, true
	case domain.HardDelete:
		return r.retention.HardDeleteAfter, true
	default:
		return 0, false
	}
}

// Restore reverses a removal. Soft-keep restores instantly to ready;
// soft-remove and hard-delete re-enter reprocessing to rebuild what
// was deleted, provided their restoration window is still open.
func (r *Removal) Restore(ctx context.Context, documentID, actor string) error {
	doc, err := r.docs.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if doc.State != domain.DocRemoved || doc.Deletion == nil {
		return fmt.Errorf("document %s is not removed: %w", documentID, domain.ErrInvalidTransition)
	}
	strategy := *doc.Deletion

	if strategy == domain.SoftKeep {
		restored, err := r.vectors.SetExcluded(ctx, documentID, false)
		if err != nil {
			return fmt.Errorf("re-include vectors: %w", err)
		}
		_, err = r.machine.TransitionDocument(ctx, documentID, TriggerRestored, TransitionOpts{
			Actor:     actor,
			ActorKind: domain.ActorHuman,
			Rationale: "soft-keep restoration, vectors re-included",
			Detail:    map[string]string{"vectors": fmt.Sprintf("%d", restored)},
			MutateDocument: func(d *domain.Document) {
				d.Deletion = nil
				d.RemovedAt = nil
			},
		})
		return err
	}

	entry, err := r.cache.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("restoration entry for %s: %w", documentID, domain.ErrRestorationExpired)
	}
	if entry.Expired(r.now()) {
		return fmt.Errorf("restoration window closed at %s: %w", entry.ExpiresAt.Format(time.RFC3339), domain.ErrRestorationExpired)
	}

	// The deleted vectors are rebuilt by a fresh epoch.
	if err := r.pipeline.Reprocess(ctx, documentID, actor); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("drop restoration entry: %w", err)
	}
	logger.Info("Restored %s from %s into reprocessing", documentID, strategy)
	return nil
}

// Sweep closes lapsed restoration windows: expired hard deletes are
// executed for real, expired soft removals simply stop being
// restorable. Provenance and audit survive.
func (r *Removal) Sweep(ctx context.Context, now time.Time) error {
	entries, err := r.cache.List(ctx)
	if err != nil {
		return fmt.Errorf("list restoration entries: %w", err)
	}

	for _, entry := range entries {
		if !entry.Expired(now) {
			continue
		}
		switch entry.Strategy {
		case domain.HardDelete:
			if err := r.executeHardDelete(ctx, entry.DocumentID); err != nil {
				return err
			}
		case domain.SoftRemove:
			ev := domain.AuditEvent{
				ID:           uuid.NewString(),
				Timestamp:    now,
				Actor:        "retention-sweeper",
				ActorKind:    domain.ActorAgent,
				Resource:     entry.DocumentID,
				ResourceKind: "document",
				Action:       "restoration_expired",
				Rationale:    "soft-remove restoration window lapsed",
				Phase:        "retention",
				Ruleset:      domain.RulesetVersion,
				Severity:     domain.SeverityInfo,
			}
			if err := r.audit.Append(ctx, ev); err != nil {
				return fmt.Errorf("audit expiry: %w", err)
			}
		}
		if err := r.cache.Delete(ctx, entry.DocumentID); err != nil {
			return fmt.Errorf("drop restoration entry: %w", err)
		}
	}
	return nil
}

// executeHardDelete purges the document's derived artifacts once the
// retention window lapses. The document record survives as a tombstone
// so the ledger keeps resolving.
func (r *Removal) executeHardDelete(ctx context.Context, documentID string) error {
	if _, err := r.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("purge vectors: %w", err)
	}
	if err := r.imgs.DeleteImages(ctx, documentID); err != nil {
		return fmt.Errorf("purge images: %w", err)
	}
	_, err := r.machine.TransitionDocument(ctx, documentID, TriggerRetentionElapsed, TransitionOpts{
		Actor:     "retention-sweeper",
		Rationale: "hard-delete retention window lapsed",
		Severity:  domain.SeverityHigh,
		MutateDocument: func(d *domain.Document) {
			d.Text = ""
		},
	})
	if err != nil {
		return err
	}
	logger.Info("Hard delete executed for %s", documentID)
	return nil
}

// cancelPendingTasks resolves the document's open escalations as
// cancelled so no pipeline step stays suspended forever.
func (r *Removal) cancelPendingTasks(ctx context.Context, documentID string) error {
	pending, err := r.tasks.ListPending(ctx, "")
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}
	for _, task := range pending {
		if task.DocumentID != documentID {
			continue
		}
		decision := domain.Decision{
			TaskID:    task.ID,
			Choice:    domain.ChoiceCancelled,
			Actor:     "system",
			ActorKind: domain.ActorAgent,
			Rationale: "document removed while task was pending",
			DecidedAt: r.now(),
		}
		if err := r.tasks.Resolve(ctx, decision); err != nil {
			return fmt.Errorf("cancel task %s: %w", task.ID, err)
		}
	}
	return nil
}
