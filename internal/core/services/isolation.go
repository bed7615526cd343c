package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
	"github.com/casefile-labs/verity/internal/logger"
)

// Rule identifier written on every isolation decision.
const isolationRule = "same-corpus-reference"

// Isolation guarantees that no artifact reference crosses a corpus
// boundary. The corpus map is a read-through cache over the store, not
// a process-wide registry; invalidation happens on corpus writes.
type Isolation struct {
	corpora driven.CorpusStore
	audit   driven.AuditLog
	minJust int

	mu    sync.RWMutex
	cache map[string]domain.Corpus

	now func() time.Time
}

// NewIsolation creates the enforcer. minJustification is the minimum
// override justification length.
func NewIsolation(corpora driven.CorpusStore, audit driven.AuditLog, minJustification int) *Isolation {
	return &Isolation{
		corpora: corpora,
		audit:   audit,
		minJust: minJustification,
		cache:   make(map[string]domain.Corpus),
		now:     time.Now,
	}
}

// ValidateReference allows a reference only when both corpora exist and
// are the same. On violation it writes an audit record with both corpus
// identifiers and returns an IsolationViolationError; the attempted
// operation must abort, never proceed silently.
func (i *Isolation) ValidateReference(ctx context.Context, sourceCorpus, targetCorpus, reference string) error {
	if _, err := i.corpus(ctx, sourceCorpus); err != nil {
		return fmt.Errorf("source corpus %s: %w", sourceCorpus, err)
	}
	if _, err := i.corpus(ctx, targetCorpus); err != nil {
		return fmt.Errorf("target corpus %s: %w", targetCorpus, err)
	}
	if sourceCorpus == targetCorpus {
		return nil
	}

	violation := &domain.IsolationViolationError{
		SourceCorpus: sourceCorpus,
		TargetCorpus: targetCorpus,
		Reference:    reference,
		Rule:         isolationRule,
	}

	ev := domain.AuditEvent{
		ID:           uuid.NewString(),
		Timestamp:    i.now(),
		Actor:        "isolation-enforcer",
		ActorKind:    domain.ActorAgent,
		Resource:     reference,
		ResourceKind: "reference",
		Action:       "reference_blocked",
		Rationale:    violation.Error(),
		Phase:        "isolation",
		Ruleset:      domain.RulesetVersion,
		Severity:     domain.SeverityCritical,
		Tag:          domain.TagIsolationViolation,
		Detail: map[string]string{
			"source_corpus": sourceCorpus,
			"target_corpus": targetCorpus,
			"rule":          isolationRule,
		},
	}
	if err := i.audit.Append(ctx, ev); err != nil {
		// The violation still blocks; a lost audit write is reported
		// alongside it rather than masking it.
		return fmt.Errorf("audit isolation violation: %v: %w", err, violation)
	}

	logger.Warn("Blocked cross-corpus reference %s: %s -> %s", reference, sourceCorpus, targetCorpus)
	return violation
}

// Override permits one cross-corpus reference under a structured
// administrative justification. The audit write is unconditional: an
// override that cannot be audited does not happen.
func (i *Isolation) Override(ctx context.Context, sourceCorpus, targetCorpus, reference, actor string, category domain.OverrideCategory, justification string) error {
	if !category.Valid() {
		return fmt.Errorf("override category %q: %w", category, domain.ErrInvalidInput)
	}
	if len(strings.TrimSpace(justification)) < i.minJust {
		return fmt.Errorf("override justification under %d characters: %w", i.minJust, domain.ErrJustificationRequired)
	}
	if _, err := i.corpus(ctx, sourceCorpus); err != nil {
		return fmt.Errorf("source corpus %s: %w", sourceCorpus, err)
	}
	if _, err := i.corpus(ctx, targetCorpus); err != nil {
		return fmt.Errorf("target corpus %s: %w", targetCorpus, err)
	}

	ev := domain.AuditEvent{
		ID:           uuid.NewString(),
		Timestamp:    i.now(),
		Actor:        actor,
		ActorKind:    domain.ActorHuman,
		Resource:     reference,
		ResourceKind: "reference",
		Action:       "isolation_override",
		Rationale:    justification,
		Phase:        "isolation",
		Ruleset:      domain.RulesetVersion,
		Severity:     domain.SeverityHigh,
		Detail: map[string]string{
			"source_corpus": sourceCorpus,
			"target_corpus": targetCorpus,
			"category":      string(category),
		},
	}
	if err := i.audit.Append(ctx, ev); err != nil {
		return fmt.Errorf("audit isolation override: %w", err)
	}

	logger.Warn("Isolation override by %s (%s): %s -> %s", actor, category, sourceCorpus, targetCorpus)
	return nil
}

// Invalidate drops a corpus from the cache after a store write.
func (i *Isolation) Invalidate(corpusID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.cache, corpusID)
}

// corpus reads through the cache.
func (i *Isolation) corpus(ctx context.Context, id string) (*domain.Corpus, error) {
	i.mu.RLock()
	c, ok := i.cache[id]
	i.mu.RUnlock()
	if ok {
		return &c, nil
	}

	fresh, err := i.corpora.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	i.cache[id] = *fresh
	i.mu.Unlock()
	return fresh, nil
}
