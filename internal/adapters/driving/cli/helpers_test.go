package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/casefile-labs/verity/internal/adapters/driven/storage/memory"
	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driving"
)

// setupTestServices installs stub services and returns a restore func.
func setupTestServices() func() {
	oldPipeline := pipelineService
	oldRemoval := removalService
	oldReview := reviewService
	oldCorpora := corpusStore
	oldSettings := settingsStore

	pipelineService = &stubPipeline{}
	removalService = &stubRemoval{}
	reviewService = &stubReview{}
	corpusStore = memory.NewCorpusStore()
	settingsStore = &stubSettings{}

	return func() {
		pipelineService = oldPipeline
		removalService = oldRemoval
		reviewService = oldReview
		corpusStore = oldCorpora
		settingsStore = oldSettings
	}
}

type stubPipeline struct {
	ingested    []string
	processed   []string
	reprocessed []string
}

func (s *stubPipeline) Ingest(_ context.Context, corpusID, uri string, _ []byte) (*domain.Document, error) {
	s.ingested = append(s.ingested, uri)
	return &domain.Document{ID: "doc-1", CorpusID: corpusID, URI: uri, State: domain.DocIngested}, nil
}

func (s *stubPipeline) Process(_ context.Context, documentID string) error {
	s.processed = append(s.processed, documentID)
	return nil
}

func (s *stubPipeline) Reprocess(_ context.Context, documentID, _ string) error {
	s.reprocessed = append(s.reprocessed, documentID)
	return nil
}

func (s *stubPipeline) Cancel(string) {}

func (s *stubPipeline) Status(_ context.Context, documentID string) (*driving.DocumentStatus, error) {
	canonical := "img-canon"
	return &driving.DocumentStatus{
		Document: domain.Document{
			ID:         documentID,
			CorpusID:   "corpus-a",
			Title:      "filing.md",
			State:      domain.DocReady,
			Epoch:      1,
			IngestedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		Completion: domain.CompletionMetrics{
			DocumentID:    documentID,
			TotalImages:   2,
			SettledImages: 2,
			Percent:       100.0,
		},
		Images: []domain.Image{
			{ID: "img-1", State: domain.ImgCompleted, DiagramType: domain.DiagramMethod,
				Description: "clamp assembly", DescriptionConfidence: 0.91, HumanValidated: true},
			{ID: "img-2", State: domain.ImgCompleted, DiagramType: domain.DiagramSupporting,
				CanonicalID: &canonical},
		},
		ReasonChain: []domain.AuditEvent{
			{Timestamp: time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC), Action: "doc_transition",
				Actor: "pipeline", ActorKind: domain.ActorAgent, AfterState: "ready"},
		},
	}, nil
}

type stubRemoval struct {
	removed  []string
	restored []string
	swept    bool
}

func (s *stubRemoval) Remove(_ context.Context, documentID string, _ domain.DeletionStrategy, _, _ string) error {
	s.removed = append(s.removed, documentID)
	return nil
}

func (s *stubRemoval) Restore(_ context.Context, documentID, _ string) error {
	s.restored = append(s.restored, documentID)
	return nil
}

func (s *stubRemoval) Sweep(context.Context, time.Time) error {
	s.swept = true
	return nil
}

type stubReview struct {
	resolved []domain.Decision
}

func (s *stubReview) PendingTasks(context.Context, string) ([]domain.Task, error) {
	return []domain.Task{{
		ID:         "task-1",
		Kind:       domain.TaskInterpretation,
		CorpusID:   "corpus-a",
		DocumentID: "doc-1",
		ImageID:    "img-1",
		Evidence:   map[string]string{"confidence": "0.42"},
		CreatedAt:  time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC),
	}}, nil
}

func (s *stubReview) ResolveTask(_ context.Context, decision domain.Decision) error {
	if decision.Rationale == "" {
		return fmt.Errorf("decision on %s: %w", decision.TaskID, domain.ErrJustificationRequired)
	}
	s.resolved = append(s.resolved, decision)
	return nil
}

func (s *stubReview) OverrideDiagramType(_ context.Context, _ string, dt domain.DiagramType, _, rationale string) error {
	if !dt.Valid() {
		return fmt.Errorf("diagram type %q: %w", dt, domain.ErrInvalidInput)
	}
	if rationale == "" {
		return domain.ErrJustificationRequired
	}
	return nil
}

func (s *stubReview) ReinstateIgnored(_ context.Context, _, _, rationale string) error {
	if rationale == "" {
		return domain.ErrJustificationRequired
	}
	return nil
}

func (s *stubReview) ReasonChain(context.Context, string, int) ([]domain.AuditEvent, error) {
	return []domain.AuditEvent{
		{Timestamp: time.Date(2026, 3, 1, 9, 20, 0, 0, time.UTC), Action: "task_resolved",
			Actor: "rev-1", ActorKind: domain.ActorHuman, Rationale: "matches figure 3",
			Severity: domain.SeverityInfo, Ruleset: domain.RulesetVersion},
	}, nil
}

type stubSettings struct{}

func (s *stubSettings) Load(context.Context) (domain.Settings, error) {
	return domain.DefaultSettings(), nil
}

func (s *stubSettings) Save(context.Context, domain.Settings) error { return nil }
