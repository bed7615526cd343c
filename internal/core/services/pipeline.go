package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
	"github.com/casefile-labs/verity/internal/core/ports/driving"
	"github.com/casefile-labs/verity/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.Pipeline = (*Pipeline)(nil)

// ErrAttemptsExhausted marks a step whose transient-retry budget ran
// out. The entity is blocked, not failed: a human decides what next.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Stores groups the persistence ports the pipeline writes.
type Stores struct {
	Documents driven.DocumentStore
	Images    driven.ImageStore
	Vectors   driven.VectorStore
	Tasks     driven.TaskQueue
	Audit     driven.AuditLog
}

// Engines groups the external collaborators. OCR engines may be
// several; every engine's attempt is stored.
type Engines struct {
	Extractor driven.Extractor
	OCR       []driven.OCREngine
	Vision    driven.VisionEngine
	Synthesis driven.SynthesisService
	Embedding driven.EmbeddingService
}

// Pipeline drives documents and their images through the governed
// lifecycle: extraction, duplicate resolution, engine analysis, human
// escalation and completion evaluation. Suspension points are exactly
// slot acquisition and HITL decision waits.
type Pipeline struct {
	machine    *StateMachine
	completion *Completion
	scheduler  *Scheduler
	duplicates *Duplicates
	provenance *Provenance
	isolation  *Isolation

	stores  Stores
	engines Engines

	settings domain.Settings

	mu     sync.Mutex
	active map[string]context.CancelFunc

	now func() time.Time
}

// NewPipeline creates the orchestrator.
func NewPipeline(
	machine *StateMachine,
	completion *Completion,
	scheduler *Scheduler,
	duplicates *Duplicates,
	provenance *Provenance,
	isolation *Isolation,
	stores Stores,
	engines Engines,
	settings domain.Settings,
) *Pipeline {
	return &Pipeline{
		machine:    machine,
		completion: completion,
		scheduler:  scheduler,
		duplicates: duplicates,
		provenance: provenance,
		isolation:  isolation,
		stores:     stores,
		engines:    engines,
		settings:   settings,
		active:     make(map[string]context.CancelFunc),
		now:        time.Now,
	}
}

// Ingest registers a source file into a corpus.
func (p *Pipeline) Ingest(ctx context.Context, corpusID, uri string, content []byte) (*domain.Document, error) {
	// Existence check doubles as the corpus-assignment guard.
	if err := p.isolation.ValidateReference(ctx, corpusID, corpusID, "ingest:"+uri); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(content)
	doc := &domain.Document{
		ID:          uuid.NewString(),
		CorpusID:    corpusID,
		URI:         uri,
		Title:       filepath.Base(uri),
		State:       domain.DocIngested,
		ContentHash: hex.EncodeToString(sum[:]),
		Epoch:       1,
		IngestedAt:  p.now(),
	}
	if err := p.stores.Documents.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	if _, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
		Outputs:   []string{doc.ID},
		Kind:      domain.TransformIngestion,
		Agent:     "ingestor",
		AgentKind: domain.AgentSystem,
		Note:      uri,
	}); err != nil {
		return nil, err
	}

	logger.Info("Ingested %s into corpus %s as %s", uri, corpusID, doc.ID)
	return doc, nil
}

// Process drives a document from its current state as far as the
// pipeline can take it.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.active[documentID] = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.active, documentID)
		p.mu.Unlock()
	}()

	correlationID := uuid.NewString()
	logger.Section("Processing " + documentID)

	for {
		doc, err := p.stores.Documents.GetDocument(ctx, documentID)
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}

		switch doc.State {
		case domain.DocIngested:
			err = p.normalize(ctx, doc, correlationID)
		case domain.DocNormalized:
			err = p.extractText(ctx, doc, correlationID)
		case domain.DocTextExtracted:
			err = p.extractImages(ctx, doc, correlationID)
		case domain.DocImagesExtracted, domain.DocPartiallyProcessed:
			return p.processImages(ctx, doc, correlationID)
		case domain.DocReprocessing:
			_, err = p.machine.TransitionDocument(ctx, doc.ID, TriggerReprocessResume, TransitionOpts{CorrelationID: correlationID})
		default:
			// Ready, blocked, failed, removed: nothing to drive.
			return nil
		}

		if err != nil {
			return p.stepFailure(ctx, doc, correlationID, err)
		}
	}
}

// Cancel aborts in-flight processing for a document.
func (p *Pipeline) Cancel(documentID string) {
	p.mu.Lock()
	cancel, ok := p.active[documentID]
	p.mu.Unlock()
	if ok {
		cancel()
		logger.Info("Cancelled processing for %s", documentID)
	}
}

// isActive reports whether a processing run holds the document.
func (p *Pipeline) isActive(documentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[documentID]
	return ok
}

// Reprocess starts a new processing epoch for the document.
func (p *Pipeline) Reprocess(ctx context.Context, documentID, actor string) error {
	doc, err := p.stores.Documents.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if doc.State == domain.DocReprocessing {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrReprocessingConflict)
	}

	newEpoch := doc.Epoch + 1
	_, err = p.machine.TransitionDocument(ctx, documentID, TriggerReprocessRequested, TransitionOpts{
		Actor:     actor,
		ActorKind: domain.ActorHuman,
		Rationale: "reprocessing requested",
		MutateDocument: func(d *domain.Document) {
			d.Epoch = newEpoch
			d.ProcessingCompletedAt = nil
			d.Deletion = nil
			d.RemovedAt = nil
		},
		Effect: func(ctx context.Context) error {
			return p.preserveAndRemark(ctx, documentID, newEpoch)
		},
	})
	if err != nil {
		return err
	}

	logger.Info("Document %s entering reprocessing epoch %d", documentID, newEpoch)
	return nil
}

// preserveAndRemark snapshots every image's current interpretation as
// a prior version and cascades the images back to extracted. Approved
// results are never overwritten, only superseded.
func (p *Pipeline) preserveAndRemark(ctx context.Context, documentID string, newEpoch int) error {
	images, err := p.stores.Images.ListImages(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}

	for _, img := range images {
		if img.State == domain.ImgMarkedForDeletion {
			continue
		}
		if img.Description != "" {
			version := &domain.ImageVersion{
				ID:                    uuid.NewString(),
				ImageID:               img.ID,
				Epoch:                 img.Epoch,
				Description:           img.Description,
				DescriptionConfidence: img.DescriptionConfidence,
				HumanValidated:        img.HumanValidated,
				PreservedAt:           p.now(),
			}
			if err := p.stores.Images.SaveVersion(ctx, version); err != nil {
				return fmt.Errorf("preserve version: %w", err)
			}
			if _, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
				Inputs:    []string{img.ID},
				Outputs:   []string{version.ID},
				Kind:      domain.TransformVersionPreserve,
				Agent:     "pipeline",
				AgentKind: domain.AgentSystem,
			}); err != nil {
				return err
			}
		}

		_, err := p.machine.TransitionImage(ctx, img.ID, TriggerReextracted, TransitionOpts{
			Rationale: "cascade re-evaluation for new epoch",
			MutateImage: func(i *domain.Image) {
				i.Epoch = newEpoch
				i.CanonicalID = nil
				i.Description = ""
				i.DescriptionConfidence = 0
				i.HumanValidated = false
				i.OCRAttempts = 0
				i.VisionAttempts = 0
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Status reports a document's discoverable state with its reason chain.
func (p *Pipeline) Status(ctx context.Context, documentID string) (*driving.DocumentStatus, error) {
	doc, err := p.stores.Documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	images, err := p.stores.Images.ListImages(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	chain, err := p.stores.Audit.ListByResource(ctx, documentID, 10)
	if err != nil {
		return nil, fmt.Errorf("load reason chain: %w", err)
	}
	return &driving.DocumentStatus{
		Document:    *doc,
		Completion:  p.completion.Calculate(documentID, images),
		Images:      images,
		ReasonChain: chain,
	}, nil
}

// normalize standardises the source format.
func (p *Pipeline) normalize(ctx context.Context, doc *domain.Document, correlationID string) error {
	var hash string
	err := p.retry(ctx, "normalize", func() error {
		var err error
		hash, err = p.engines.Extractor.Normalize(ctx, *doc)
		return err
	})
	if err != nil {
		return err
	}

	_, err = p.machine.TransitionDocument(ctx, doc.ID, TriggerNormalized, TransitionOpts{
		CorrelationID: correlationID,
		MutateDocument: func(d *domain.Document) {
			d.ContentHash = hash
		},
		Effect: func(ctx context.Context) error {
			_, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
				Inputs:    []string{doc.ID},
				Outputs:   []string{artifactID(doc.ID, "normalized", doc.Epoch)},
				Kind:      domain.TransformNormalization,
				Agent:     "extractor",
				AgentKind: domain.AgentSystem,
			})
			return err
		},
	})
	return err
}

// extractText pulls the document's text body.
func (p *Pipeline) extractText(ctx context.Context, doc *domain.Document, correlationID string) error {
	var (
		text       string
		confidence float64
	)
	err := p.retry(ctx, "extract text", func() error {
		var err error
		text, confidence, err = p.engines.Extractor.ExtractText(ctx, *doc)
		return err
	})
	if err != nil {
		return err
	}

	_, err = p.machine.TransitionDocument(ctx, doc.ID, TriggerTextExtracted, TransitionOpts{
		CorrelationID: correlationID,
		MutateDocument: func(d *domain.Document) {
			d.Text = text
		},
		Effect: func(ctx context.Context) error {
			_, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
				Inputs:     []string{artifactID(doc.ID, "normalized", doc.Epoch)},
				Outputs:    []string{artifactID(doc.ID, "text", doc.Epoch)},
				Kind:       domain.TransformTextExtraction,
				Agent:      "extractor",
				AgentKind:  domain.AgentSystem,
				Confidence: &confidence,
			})
			return err
		},
	})
	return err
}

// extractImages isolates embedded visual assets. A replay after a
// committed extraction reuses the stored images instead of minting
// duplicates.
func (p *Pipeline) extractImages(ctx context.Context, doc *domain.Document, correlationID string) error {
	existing, err := p.stores.Images.ListImages(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}

	if !hasEpochImages(existing, doc.Epoch) {
		var extracted []domain.Image
		err := p.retry(ctx, "extract images", func() error {
			var err error
			extracted, err = p.engines.Extractor.ExtractImages(ctx, *doc)
			return err
		})
		if err != nil {
			return err
		}

		for i := range extracted {
			img := &extracted[i]
			if img.ID == "" {
				img.ID = uuid.NewString()
			}
			img.DocumentID = doc.ID
			img.CorpusID = doc.CorpusID
			img.State = domain.ImgExtracted
			img.Epoch = doc.Epoch
			img.CreatedAt = p.now()
			img.UpdatedAt = img.CreatedAt
			if err := p.stores.Images.SaveImage(ctx, img); err != nil {
				return fmt.Errorf("save image: %w", err)
			}
			if _, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
				Inputs:    []string{doc.ID},
				Outputs:   []string{img.ID},
				Kind:      domain.TransformImageExtraction,
				Agent:     "extractor",
				AgentKind: domain.AgentSystem,
			}); err != nil {
				return err
			}
		}
		logger.Info("Extracted %d images from %s", len(extracted), doc.ID)
	}

	_, err = p.machine.TransitionDocument(ctx, doc.ID, TriggerImagesExtracted, TransitionOpts{CorrelationID: correlationID})
	return err
}

// processImages runs the per-image flows concurrently, then evaluates
// document completion. Concurrency is bounded by scheduler slots, not
// by worker count.
func (p *Pipeline) processImages(ctx context.Context, doc *domain.Document, correlationID string) error {
	images, err := p.stores.Images.ListImages(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(images))
	for _, img := range images {
		if img.State != domain.ImgExtracted {
			continue
		}
		wg.Add(1)
		go func(img domain.Image) {
			defer wg.Done()
			if err := p.processOneImage(ctx, doc, img, correlationID); err != nil {
				errCh <- &imageError{imageID: img.ID, err: err}
			}
		}(img)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if handled := p.imageFailureHandled(ctx, doc, correlationID, err); !handled {
			return p.stepFailure(ctx, doc, correlationID, err)
		}
	}

	if ctx.Err() != nil {
		return p.noteCancellation(ctx, doc, correlationID)
	}
	return p.evaluate(ctx, doc, correlationID)
}

// processOneImage takes one image from extracted to a settled state.
func (p *Pipeline) processOneImage(ctx context.Context, doc *domain.Document, img domain.Image, correlationID string) error {
	if _, err := p.machine.TransitionImage(ctx, img.ID, TriggerProcessingStarted, TransitionOpts{CorrelationID: correlationID}); err != nil {
		return err
	}

	outcome, err := p.duplicates.Resolve(ctx, img)
	if err != nil {
		return err
	}

	switch outcome.Band {
	case domain.BandExact:
		return p.linkDuplicate(ctx, img, outcome.CanonicalID, "duplicate-resolver", domain.ActorAgent,
			fmt.Sprintf("similarity %.3f at or above exact threshold", outcome.Similarity), correlationID)

	case domain.BandNear:
		return p.escalateNearDuplicate(ctx, doc, img, outcome, correlationID)

	case domain.BandPossible:
		ev := domain.AuditEvent{
			ID:            uuid.NewString(),
			Timestamp:     p.now(),
			Actor:         "duplicate-resolver",
			ActorKind:     domain.ActorAgent,
			Resource:      img.ID,
			ResourceKind:  "image",
			Action:        "flagged_possible_duplicate",
			CorrelationID: correlationID,
			Phase:         "duplicate_resolution",
			Ruleset:       domain.RulesetVersion,
			Severity:      domain.SeverityInfo,
			Tag:           domain.TagPossibleDuplicate,
			Detail: map[string]string{
				"candidate":  outcome.CanonicalID,
				"similarity": fmt.Sprintf("%.3f", outcome.Similarity),
			},
		}
		if err := p.stores.Audit.Append(ctx, ev); err != nil {
			return fmt.Errorf("audit possible duplicate: %w", err)
		}
	}

	return p.fullProcess(ctx, doc, img, correlationID)
}

// linkDuplicate completes an image as a link to its canonical, with no
// engine work.
func (p *Pipeline) linkDuplicate(ctx context.Context, img domain.Image, canonicalID, actor string, actorKind domain.ActorKind, rationale, correlationID string) error {
	canonical, err := p.stores.Images.GetImage(ctx, canonicalID)
	if err != nil {
		return fmt.Errorf("get canonical: %w", err)
	}

	_, err = p.machine.TransitionImage(ctx, img.ID, TriggerImageCompleted, TransitionOpts{
		Actor:         actor,
		ActorKind:     actorKind,
		Rationale:     rationale,
		CorrelationID: correlationID,
		MutateImage: func(i *domain.Image) {
			i.CanonicalID = &canonicalID
			i.Description = canonical.Description
			i.DescriptionConfidence = canonical.DescriptionConfidence
			i.HumanValidated = actorKind == domain.ActorHuman
		},
		Effect: func(ctx context.Context) error {
			agentKind := domain.AgentSystem
			if actorKind == domain.ActorHuman {
				agentKind = domain.AgentHuman
			}
			_, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
				Inputs:    []string{canonicalID},
				Outputs:   []string{artifactID(img.ID, "link", img.Epoch)},
				Kind:      domain.TransformDuplicateLink,
				Agent:     actor,
				AgentKind: agentKind,
				Note:      "linked " + img.ID,
			})
			return err
		},
	})
	return err
}

// escalateNearDuplicate blocks the image on a side-by-side review task
// and applies the reviewer's verdict.
func (p *Pipeline) escalateNearDuplicate(ctx context.Context, doc *domain.Document, img domain.Image, outcome *domain.DuplicateOutcome, correlationID string) error {
	_, err := p.machine.TransitionImage(ctx, img.ID, TriggerInterpretationNeeded, TransitionOpts{
		Rationale:     fmt.Sprintf("near-duplicate of %s (similarity %.3f), reviewer decision required", outcome.CanonicalID, outcome.Similarity),
		CorrelationID: correlationID,
		Severity:      domain.SeverityWarning,
	})
	if err != nil {
		return err
	}

	task := domain.Task{
		ID:         uuid.NewString(),
		Kind:       domain.TaskNearDuplicate,
		CorpusID:   img.CorpusID,
		DocumentID: doc.ID,
		ImageID:    img.ID,
		Evidence: map[string]string{
			"image":      img.ID,
			"candidate":  outcome.CanonicalID,
			"similarity": fmt.Sprintf("%.3f", outcome.Similarity),
		},
		CreatedAt: p.now(),
	}
	if _, err := p.stores.Tasks.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create near-duplicate task: %w", err)
	}

	decision, err := p.stores.Tasks.AwaitDecision(ctx, task.ID)
	if err != nil {
		return err
	}

	switch decision.Choice {
	case domain.ChoiceLinkDuplicate:
		return p.linkDuplicate(ctx, img, outcome.CanonicalID, decision.Actor, domain.ActorHuman, decision.Rationale, correlationID)

	case domain.ChoiceProcessUnique:
		_, err := p.machine.TransitionImage(ctx, img.ID, TriggerProcessingStarted, TransitionOpts{
			Actor:         decision.Actor,
			ActorKind:     domain.ActorHuman,
			Rationale:     decision.Rationale,
			CorrelationID: correlationID,
		})
		if err != nil {
			return err
		}
		return p.fullProcess(ctx, doc, img, correlationID)

	case domain.ChoiceCancelled:
		return nil

	default:
		return fmt.Errorf("near-duplicate decision %q: %w", decision.Choice, domain.ErrInvalidInput)
	}
}

// fullProcess runs OCR, vision, synthesis and embedding for an image.
func (p *Pipeline) fullProcess(ctx context.Context, doc *domain.Document, img domain.Image, correlationID string) error {
	priority := p.priorityFor(doc, img)

	ocrResults, err := p.runOCR(ctx, img, priority)
	if err != nil {
		return err
	}
	best := bestOCR(ocrResults)

	var vision domain.VisionResult
	err = p.retry(ctx, "vision", func() error {
		return p.withSlot(ctx, domain.ResourceVision, priority, func() error {
			var err error
			vision, err = p.engines.Vision.Analyze(ctx, img)
			return err
		})
	})
	if err != nil {
		return err
	}
	visionConf := vision.Confidence
	if _, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
		Inputs:     []string{img.ID},
		Outputs:    []string{artifactID(img.ID, "vision", img.Epoch)},
		Kind:       domain.TransformVisionAnalysis,
		Agent:      "vision-engine",
		AgentKind:  domain.AgentModel,
		Confidence: &visionConf,
	}); err != nil {
		return err
	}

	attempts := func(i *domain.Image) {
		i.OCRAttempts += len(ocrResults)
		i.VisionAttempts++
	}

	// Quality fallback: uninterpretable content is ignored on the
	// record, never silently dropped and never sent to a human.
	if best.Confidence < p.settings.Quality.OCRFloor && vision.Confidence < p.settings.Quality.VisionFloor {
		_, err := p.machine.TransitionImage(ctx, img.ID, TriggerImageIgnored, TransitionOpts{
			Rationale: fmt.Sprintf("ocr confidence %.2f and vision confidence %.2f below floors %.2f/%.2f",
				best.Confidence, vision.Confidence, p.settings.Quality.OCRFloor, p.settings.Quality.VisionFloor),
			CorrelationID:             correlationID,
			Severity:                  domain.SeverityWarning,
			Tag:                       domain.TagAutoLowQuality,
			ReviewerOverrideAvailable: true,
			MutateImage:               attempts,
		})
		return err
	}

	var synthesis domain.SynthesisResult
	err = p.retry(ctx, "synthesis", func() error {
		var err error
		synthesis, err = p.engines.Synthesis.Synthesize(ctx, best.Text, vision, doc.Title)
		return err
	})
	if err != nil {
		return err
	}

	if synthesis.Confidence < p.settings.Quality.InterpretationFloor {
		return p.escalateInterpretation(ctx, doc, img, synthesis, attempts, correlationID)
	}

	return p.completeImage(ctx, img, synthesis, false, "pipeline", domain.ActorAgent, "", attempts, correlationID)
}

// runOCR invokes every configured OCR engine, storing each attempt.
func (p *Pipeline) runOCR(ctx context.Context, img domain.Image, priority domain.Priority) ([]domain.OCRResult, error) {
	var results []domain.OCRResult
	for _, engine := range p.engines.OCR {
		var result domain.OCRResult
		err := p.retry(ctx, "ocr "+engine.ID(), func() error {
			return p.withSlot(ctx, domain.ResourceOCR, priority, func() error {
				var err error
				result, err = engine.ExtractText(ctx, img)
				return err
			})
		})
		if err != nil {
			return nil, err
		}
		results = append(results, result)

		conf := result.Confidence
		if _, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
			Inputs:     []string{img.ID},
			Outputs:    []string{artifactID(img.ID, "ocr/"+engine.ID(), img.Epoch)},
			Kind:       domain.TransformOCR,
			Agent:      engine.ID(),
			AgentKind:  domain.AgentModel,
			Confidence: &conf,
		}); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// escalateInterpretation routes a low-confidence synthesis to a
// reviewer and applies the verdict.
func (p *Pipeline) escalateInterpretation(ctx context.Context, doc *domain.Document, img domain.Image, synthesis domain.SynthesisResult, attempts func(*domain.Image), correlationID string) error {
	_, err := p.machine.TransitionImage(ctx, img.ID, TriggerInterpretationNeeded, TransitionOpts{
		Rationale:     fmt.Sprintf("synthesis confidence %.2f below floor %.2f", synthesis.Confidence, p.settings.Quality.InterpretationFloor),
		CorrelationID: correlationID,
		Severity:      domain.SeverityWarning,
		MutateImage: func(i *domain.Image) {
			i.Description = synthesis.Description
			i.DescriptionConfidence = synthesis.Confidence
			attempts(i)
		},
	})
	if err != nil {
		return err
	}

	task := domain.Task{
		ID:         uuid.NewString(),
		Kind:       domain.TaskInterpretation,
		CorpusID:   img.CorpusID,
		DocumentID: doc.ID,
		ImageID:    img.ID,
		Evidence: map[string]string{
			"description": synthesis.Description,
			"confidence":  fmt.Sprintf("%.2f", synthesis.Confidence),
		},
		CreatedAt: p.now(),
	}
	if _, err := p.stores.Tasks.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create interpretation task: %w", err)
	}

	decision, err := p.stores.Tasks.AwaitDecision(ctx, task.ID)
	if err != nil {
		return err
	}

	switch decision.Choice {
	case domain.ChoiceApprove:
		approved := synthesis
		if decision.Description != "" {
			approved.Description = decision.Description
		}
		return p.completeImage(ctx, img, approved, true, decision.Actor, domain.ActorHuman, decision.Rationale, nil, correlationID)

	case domain.ChoiceIgnore:
		_, err := p.machine.TransitionImage(ctx, img.ID, TriggerImageIgnored, TransitionOpts{
			Actor:         decision.Actor,
			ActorKind:     domain.ActorHuman,
			Rationale:     decision.Rationale,
			CorrelationID: correlationID,
		})
		return err

	case domain.ChoiceCancelled:
		return nil

	default:
		return fmt.Errorf("interpretation decision %q: %w", decision.Choice, domain.ErrInvalidInput)
	}
}

// completeImage commits the settled interpretation and, after commit,
// records synthesis provenance, embeds the description and stores the
// vector. The vector ID is stable per image and epoch, so replays
// overwrite instead of duplicating.
func (p *Pipeline) completeImage(ctx context.Context, img domain.Image, synthesis domain.SynthesisResult, humanValidated bool, actor string, actorKind domain.ActorKind, rationale string, attempts func(*domain.Image), correlationID string) error {
	var embedding []float32
	err := p.retry(ctx, "embedding", func() error {
		return p.withSlot(ctx, domain.ResourceEmbedding, domain.PriorityStandard, func() error {
			var err error
			embedding, err = p.engines.Embedding.Embed(ctx, synthesis.Description)
			return err
		})
	})
	if err != nil {
		return err
	}

	_, err = p.machine.TransitionImage(ctx, img.ID, TriggerImageCompleted, TransitionOpts{
		Actor:         actor,
		ActorKind:     actorKind,
		Rationale:     rationale,
		CorrelationID: correlationID,
		MutateImage: func(i *domain.Image) {
			i.Description = synthesis.Description
			i.DescriptionConfidence = synthesis.Confidence
			i.HumanValidated = humanValidated
			if attempts != nil {
				attempts(i)
			}
		},
		Effect: func(ctx context.Context) error {
			descID := artifactID(img.ID, "description", img.Epoch)
			conf := synthesis.Confidence
			agentKind := domain.AgentModel
			kind := domain.TransformSynthesis
			if humanValidated {
				agentKind = domain.AgentHuman
				kind = domain.TransformHumanCorrection
			}
			if _, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
				Inputs:     []string{img.ID},
				Outputs:    []string{descID},
				Kind:       kind,
				Agent:      actor,
				AgentKind:  agentKind,
				Confidence: &conf,
			}); err != nil {
				return err
			}

			vectorID := fmt.Sprintf("%s:e%d", img.ID, img.Epoch)
			if err := p.stores.Vectors.Put(ctx, domain.VectorRecord{
				ID:         vectorID,
				DocumentID: img.DocumentID,
				ImageID:    img.ID,
				CorpusID:   img.CorpusID,
				Embedding:  embedding,
				CreatedAt:  p.now(),
			}); err != nil {
				return fmt.Errorf("store vector: %w", err)
			}
			_, err := p.provenance.Record(ctx, domain.ProvenanceRecord{
				Inputs:    []string{descID},
				Outputs:   []string{vectorID},
				Kind:      domain.TransformEmbedding,
				Agent:     "embedding-service",
				AgentKind: domain.AgentModel,
			})
			return err
		},
	})
	return err
}

// evaluate measures completion and moves the document accordingly.
func (p *Pipeline) evaluate(ctx context.Context, doc *domain.Document, correlationID string) error {
	images, err := p.stores.Images.ListImages(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	metrics := p.completion.Calculate(doc.ID, images)
	detail := map[string]string{
		"percent":          fmt.Sprintf("%.1f", metrics.Percent),
		"critical_settled": fmt.Sprintf("%d/%d", metrics.CriticalSettled, metrics.CriticalTotal),
	}

	switch p.completion.Recommend(metrics) {
	case domain.DocReady:
		_, err = p.machine.TransitionDocument(ctx, doc.ID, TriggerReadyThreshold, TransitionOpts{
			CorrelationID: correlationID,
			Detail:        detail,
		})
		return err

	case domain.DocPartiallyProcessed:
		_, err = p.machine.TransitionDocument(ctx, doc.ID, TriggerPartialThreshold, TransitionOpts{
			CorrelationID: correlationID,
			Detail:        detail,
		})
		return err

	case domain.DocBlocked:
		return p.blockDocument(ctx, doc, correlationID,
			fmt.Sprintf("critical images awaiting review: %v", metrics.Blocking), "", detail, nil)

	default:
		return p.checkTimeouts(ctx, doc, metrics, correlationID, detail)
	}
}

// checkTimeouts blocks a below-partial document once its class budget
// or the force-completion budget lapses.
func (p *Pipeline) checkTimeouts(ctx context.Context, doc *domain.Document, metrics domain.CompletionMetrics, correlationID string, detail map[string]string) error {
	if doc.ProcessingStartedAt == nil {
		return nil
	}
	elapsed := p.now().Sub(*doc.ProcessingStartedAt)

	if elapsed >= p.settings.Timeouts.ForceCompletion {
		return p.blockDocument(ctx, doc, correlationID,
			fmt.Sprintf("force-completion budget %s exceeded at %.1f%% completion", p.settings.Timeouts.ForceCompletion, metrics.Percent),
			domain.TagForceCompletion, detail, nil)
	}

	class := domain.TimeoutClassFor(metrics.TotalImages)
	if budget := p.settings.Timeouts.Budget(class); elapsed >= budget {
		return p.blockDocument(ctx, doc, correlationID,
			fmt.Sprintf("%s-class budget %s exceeded at %.1f%% completion", class, budget, metrics.Percent), "", detail, nil)
	}

	logger.Info("Document %s at %.1f%% completion, below partial threshold, within budget", doc.ID, metrics.Percent)
	return nil
}

// blockDocument escalates a document to blocked and opens the task a
// reviewer will act on.
func (p *Pipeline) blockDocument(ctx context.Context, doc *domain.Document, correlationID, rationale, tag string, detail map[string]string, mutate func(*domain.Document)) error {
	severity := domain.SeverityWarning
	if tag == domain.TagForceCompletion {
		severity = domain.SeverityHigh
	}
	result, err := p.machine.TransitionDocument(ctx, doc.ID, TriggerBlockedEscalation, TransitionOpts{
		Rationale:      rationale,
		CorrelationID:  correlationID,
		Severity:       severity,
		Tag:            tag,
		Detail:         detail,
		MutateDocument: mutate,
	})
	if err != nil || !result.Applied {
		return err
	}

	task := domain.Task{
		ID:         uuid.NewString(),
		Kind:       domain.TaskBlockedDocument,
		CorpusID:   doc.CorpusID,
		DocumentID: doc.ID,
		Evidence:   map[string]string{"reason": rationale},
		CreatedAt:  p.now(),
	}
	if _, err := p.stores.Tasks.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create blocked-document task: %w", err)
	}
	return nil
}

// stepFailure routes a stage error per the failure taxonomy: fatal
// errors fail the document, exhausted or cancelled work blocks it with
// full context.
func (p *Pipeline) stepFailure(ctx context.Context, doc *domain.Document, correlationID string, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return p.noteCancellation(ctx, doc, correlationID)
	}

	bump := func(d *domain.Document) { d.ErrorCount++ }
	if domain.Fatal(cause) {
		if _, err := p.machine.TransitionDocument(ctx, doc.ID, TriggerFatalError, TransitionOpts{
			Rationale:      cause.Error(),
			CorrelationID:  correlationID,
			Severity:       domain.SeverityCritical,
			MutateDocument: bump,
		}); err != nil {
			return err
		}
		return cause
	}

	if err := p.blockDocument(ctx, doc, correlationID, cause.Error(), "", nil, bump); err != nil {
		return err
	}
	return cause
}

// noteCancellation audits an externally cancelled run. Slots were
// already released by their deferred releases.
func (p *Pipeline) noteCancellation(ctx context.Context, doc *domain.Document, correlationID string) error {
	ev := domain.AuditEvent{
		ID:            uuid.NewString(),
		Timestamp:     p.now(),
		Actor:         "pipeline",
		ActorKind:     domain.ActorAgent,
		Resource:      doc.ID,
		ResourceKind:  "document",
		Action:        "processing_cancelled",
		Rationale:     "processing cancelled, document leaving active service",
		CorrelationID: correlationID,
		Phase:         "pipeline",
		Ruleset:       domain.RulesetVersion,
		Severity:      domain.SeverityWarning,
	}
	// Cancellation usually means ctx is already done; audit with a
	// fresh context so the record is never lost.
	if err := p.stores.Audit.Append(context.WithoutCancel(ctx), ev); err != nil {
		return fmt.Errorf("audit cancellation: %w", err)
	}
	return nil
}

// priorityFor picks the scheduling priority for an image's engine work.
func (p *Pipeline) priorityFor(doc *domain.Document, img domain.Image) domain.Priority {
	if img.DiagramType.Critical() {
		return domain.PriorityCritical
	}
	if doc.ProcessingStartedAt != nil {
		elapsed := p.now().Sub(*doc.ProcessingStartedAt)
		if elapsed >= p.settings.Timeouts.ForceCompletion*4/5 {
			return domain.PriorityCritical
		}
	}
	return domain.PriorityStandard
}

// withSlot runs fn while holding a slot of the given class.
func (p *Pipeline) withSlot(ctx context.Context, class domain.ResourceClass, priority domain.Priority, fn func() error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, p.settings.Scheduler.AcquireTimeout)
	defer cancel()
	slot, err := p.scheduler.Acquire(acquireCtx, class, priority)
	if err != nil {
		return err
	}
	defer p.scheduler.Release(slot)
	return fn()
}

// retry runs fn with backoff for transient failures, up to the
// configured attempt budget. Non-transient errors return immediately.
func (p *Pipeline) retry(ctx context.Context, step string, fn func() error) error {
	backoff := p.settings.Retry.Backoff
	var err error
	for attempt := 1; attempt <= p.settings.Retry.MaxAttempts; attempt++ {
		if err = fn(); err == nil || !domain.Transient(err) {
			return err
		}
		logger.Warn("Transient failure in %s (attempt %d/%d): %v", step, attempt, p.settings.Retry.MaxAttempts, err)
		if attempt == p.settings.Retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s: %w: %w", step, ErrAttemptsExhausted, err)
}

// imageFailureHandled resolves per-image failures that should not fail
// the whole document: exhausted retries block the image, on the record,
// with an interpretation task so a reviewer can settle it later.
func (p *Pipeline) imageFailureHandled(ctx context.Context, doc *domain.Document, correlationID string, cause error) bool {
	var imgErr *imageError
	if !errors.As(cause, &imgErr) || !errors.Is(cause, ErrAttemptsExhausted) {
		return false
	}
	_, err := p.machine.TransitionImage(ctx, imgErr.imageID, TriggerInterpretationNeeded, TransitionOpts{
		Rationale:     cause.Error(),
		CorrelationID: correlationID,
		Severity:      domain.SeverityWarning,
	})
	if err != nil {
		logger.Warn("Failed to block image after exhausted retries: %v", err)
		return false
	}

	task := domain.Task{
		ID:         uuid.NewString(),
		Kind:       domain.TaskInterpretation,
		CorpusID:   doc.CorpusID,
		DocumentID: doc.ID,
		ImageID:    imgErr.imageID,
		Evidence: map[string]string{
			"failure": imgErr.err.Error(),
		},
		CreatedAt: p.now(),
	}
	if _, err := p.stores.Tasks.CreateTask(ctx, task); err != nil {
		logger.Warn("Failed to open review task for %s: %v", imgErr.imageID, err)
	}
	return true
}

// imageError attributes a per-image processing failure to its image.
type imageError struct {
	imageID string
	err     error
}

func (e *imageError) Error() string { return fmt.Sprintf("image %s: %v", e.imageID, e.err) }

func (e *imageError) Unwrap() error { return e.err }

// artifactID derives a stable derived-artifact identifier.
func artifactID(base, kind string, epoch int) string {
	return fmt.Sprintf("%s/%s#e%d", base, kind, epoch)
}

// bestOCR picks the highest-confidence attempt.
func bestOCR(results []domain.OCRResult) domain.OCRResult {
	var best domain.OCRResult
	for _, r := range results {
		if r.Confidence >= best.Confidence {
			best = r
		}
	}
	return best
}

// hasEpochImages reports whether extraction already ran for the epoch.
func hasEpochImages(images []domain.Image, epoch int) bool {
	for _, img := range images {
		if img.Epoch == epoch {
			return true
		}
	}
	return false
}
