package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefile-labs/verity/internal/adapters/driven/storage/memory"
	"github.com/casefile-labs/verity/internal/core/domain"
)

type machineFixture struct {
	machine *StateMachine
	docs    *memory.DocumentStore
	imgs    *memory.ImageStore
	audit   *memory.AuditLog
}

func newMachineFixture(t *testing.T) *machineFixture {
	t.Helper()
	docs := memory.NewDocumentStore()
	imgs := memory.NewImageStore()
	audit := memory.NewAuditLog()
	return &machineFixture{
		machine: NewStateMachine(docs, imgs, audit),
		docs:    docs,
		imgs:    imgs,
		audit:   audit,
	}
}

func (f *machineFixture) seedDoc(t *testing.T, state domain.DocumentState) *domain.Document {
	t.Helper()
	doc := &domain.Document{ID: "doc-1", CorpusID: "corpus-a", State: state, Epoch: 1}
	require.NoError(t, f.docs.SaveDocument(context.Background(), doc))
	return doc
}

func (f *machineFixture) seedImg(t *testing.T, state domain.ImageState) *domain.Image {
	t.Helper()
	img := &domain.Image{ID: "img-1", DocumentID: "doc-1", CorpusID: "corpus-a", State: state, Epoch: 1}
	require.NoError(t, f.imgs.SaveImage(context.Background(), img))
	return img
}

func TestStateMachine_TransitionDocument_HappyPath(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocIngested)
	ctx := context.Background()

	result, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerNormalized, TransitionOpts{})

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, string(domain.DocIngested), result.From)
	assert.Equal(t, string(domain.DocNormalized), result.To)

	doc, err := f.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocNormalized, doc.State)
	assert.NotNil(t, doc.ProcessingStartedAt)

	events := f.audit.All()
	require.Len(t, events, 1)
	assert.Equal(t, string(TriggerNormalized), events[0].Action)
	assert.Equal(t, string(domain.DocIngested), events[0].BeforeState)
	assert.Equal(t, string(domain.DocNormalized), events[0].AfterState)
	assert.Equal(t, domain.RulesetVersion, events[0].Ruleset)
}

func TestStateMachine_TransitionDocument_InvalidTrigger(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocIngested)

	_, err := f.machine.TransitionDocument(context.Background(), "doc-1", TriggerReadyThreshold, TransitionOpts{})

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, f.audit.All(), "rejected transitions leave no state-change audit")
}

func TestStateMachine_TransitionDocument_ReplayIsNoOp(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocIngested)
	ctx := context.Background()

	_, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerNormalized, TransitionOpts{})
	require.NoError(t, err)

	// Same trigger again simulates a crash between commit and side
	// effects: no duplicate state change, no duplicate audit, no effect.
	effectRan := false
	result, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerNormalized, TransitionOpts{
		Effect: func(context.Context) error {
			effectRan = true
			return nil
		},
	})

	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.False(t, effectRan)
	assert.Len(t, f.audit.All(), 1)
}

func TestStateMachine_TransitionDocument_EffectRunsAfterCommit(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocIngested)
	ctx := context.Background()

	var stateInEffect domain.DocumentState
	_, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerNormalized, TransitionOpts{
		Effect: func(ctx context.Context) error {
			doc, err := f.docs.GetDocument(ctx, "doc-1")
			require.NoError(t, err)
			stateInEffect = doc.State
			return nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.DocNormalized, stateInEffect)
}

func TestStateMachine_TransitionDocument_MutateInsideCommit(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocNormalized)
	ctx := context.Background()

	_, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerTextExtracted, TransitionOpts{
		MutateDocument: func(d *domain.Document) { d.Text = "claims text" },
	})

	require.NoError(t, err)
	doc, err := f.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "claims text", doc.Text)
	assert.Equal(t, domain.DocTextExtracted, doc.State)
}

func TestStateMachine_TransitionDocument_BlockedFromAnyActiveState(t *testing.T) {
	for _, state := range []domain.DocumentState{
		domain.DocIngested, domain.DocNormalized, domain.DocTextExtracted,
		domain.DocImagesExtracted, domain.DocPartiallyProcessed, domain.DocReady,
	} {
		t.Run(string(state), func(t *testing.T) {
			f := newMachineFixture(t)
			f.seedDoc(t, state)

			result, err := f.machine.TransitionDocument(context.Background(), "doc-1", TriggerBlockedEscalation, TransitionOpts{
				Rationale: "budget exceeded",
			})

			require.NoError(t, err)
			assert.Equal(t, string(domain.DocBlocked), result.To)
		})
	}
}

func TestStateMachine_TransitionDocument_UnblockResumesWhereBlocked(t *testing.T) {
	for _, state := range []domain.DocumentState{
		domain.DocIngested, domain.DocNormalized, domain.DocTextExtracted,
		domain.DocImagesExtracted,
	} {
		t.Run(string(state), func(t *testing.T) {
			f := newMachineFixture(t)
			f.seedDoc(t, state)
			ctx := context.Background()

			_, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerBlockedEscalation, TransitionOpts{
				Rationale: "retries exhausted",
			})
			require.NoError(t, err)
			doc, err := f.docs.GetDocument(ctx, "doc-1")
			require.NoError(t, err)
			require.NotNil(t, doc.BlockedFrom)
			assert.Equal(t, state, *doc.BlockedFrom)

			result, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerUnblocked, TransitionOpts{
				Actor: "reviewer", ActorKind: domain.ActorHuman, Rationale: "source re-uploaded",
			})
			require.NoError(t, err)
			assert.Equal(t, string(state), result.To)

			doc, err = f.docs.GetDocument(ctx, "doc-1")
			require.NoError(t, err)
			assert.Equal(t, state, doc.State)
			assert.Nil(t, doc.BlockedFrom)
		})
	}
}

func TestStateMachine_TransitionDocument_UnblockWithoutRecordedOrigin(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocBlocked)

	result, err := f.machine.TransitionDocument(context.Background(), "doc-1", TriggerUnblocked, TransitionOpts{
		Actor: "reviewer", ActorKind: domain.ActorHuman, Rationale: "proceed with what settled",
	})

	require.NoError(t, err)
	assert.Equal(t, string(domain.DocImagesExtracted), result.To)
}

func TestStateMachine_TransitionDocument_ReprocessFromBlocked(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocBlocked)
	ctx := context.Background()

	result, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerReprocessRequested, TransitionOpts{
		Actor: "reviewer", ActorKind: domain.ActorHuman, Rationale: "start over in a new epoch",
	})

	require.NoError(t, err)
	assert.Equal(t, string(domain.DocReprocessing), result.To)

	doc, err := f.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, doc.BlockedFrom)
}

func TestStateMachine_TransitionDocument_TerminalStateRejectsEscalation(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocPermanentlyDeleted)

	_, err := f.machine.TransitionDocument(context.Background(), "doc-1", TriggerFatalError, TransitionOpts{})

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestStateMachine_TransitionDocument_RemovalFromBlocked(t *testing.T) {
	f := newMachineFixture(t)
	f.seedDoc(t, domain.DocBlocked)
	ctx := context.Background()

	result, err := f.machine.TransitionDocument(ctx, "doc-1", TriggerRemovalRequested, TransitionOpts{
		Actor:     "reviewer",
		ActorKind: domain.ActorHuman,
		Rationale: "matter closed",
	})

	require.NoError(t, err)
	assert.Equal(t, string(domain.DocRemoved), result.To)

	doc, err := f.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.NotNil(t, doc.RemovedAt)
}

func TestStateMachine_TransitionImage_HappyPath(t *testing.T) {
	f := newMachineFixture(t)
	f.seedImg(t, domain.ImgExtracted)
	ctx := context.Background()

	result, err := f.machine.TransitionImage(ctx, "img-1", TriggerProcessingStarted, TransitionOpts{})

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, string(domain.ImgProcessing), result.To)
}

func TestStateMachine_TransitionImage_IgnoredRequiresReinstateToResume(t *testing.T) {
	f := newMachineFixture(t)
	f.seedImg(t, domain.ImgIgnored)
	ctx := context.Background()

	_, err := f.machine.TransitionImage(ctx, "img-1", TriggerImageCompleted, TransitionOpts{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	result, err := f.machine.TransitionImage(ctx, "img-1", TriggerReinstated, TransitionOpts{
		Actor: "reviewer", ActorKind: domain.ActorHuman, Rationale: "content is legible",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ImgNeedsInterpretation), result.To)
}

func TestStateMachine_TransitionImage_CascadeDeletionFromAnywhere(t *testing.T) {
	for _, state := range []domain.ImageState{
		domain.ImgExtracted, domain.ImgProcessing, domain.ImgNeedsInterpretation,
		domain.ImgCompleted, domain.ImgIgnored, domain.ImgDraft,
	} {
		t.Run(string(state), func(t *testing.T) {
			f := newMachineFixture(t)
			f.seedImg(t, state)

			result, err := f.machine.TransitionImage(context.Background(), "img-1", TriggerCascadeDeletion, TransitionOpts{})

			require.NoError(t, err)
			assert.Equal(t, string(domain.ImgMarkedForDeletion), result.To)
		})
	}
}

func TestStateMachine_TransitionImage_ReplayIsNoOp(t *testing.T) {
	f := newMachineFixture(t)
	f.seedImg(t, domain.ImgCompleted)

	result, err := f.machine.TransitionImage(context.Background(), "img-1", TriggerImageCompleted, TransitionOpts{})

	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Empty(t, f.audit.All())
}

func TestStateMachine_TransitionImage_DraftRoundTrip(t *testing.T) {
	f := newMachineFixture(t)
	f.seedImg(t, domain.ImgCompleted)
	ctx := context.Background()

	result, err := f.machine.TransitionImage(ctx, "img-1", TriggerDraftOpened, TransitionOpts{
		Actor: "reviewer", ActorKind: domain.ActorHuman, Rationale: "rewording description",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ImgDraft), result.To)

	result, err = f.machine.TransitionImage(ctx, "img-1", TriggerDraftCompleted, TransitionOpts{
		Actor: "reviewer", ActorKind: domain.ActorHuman, Rationale: "description updated",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ImgCompleted), result.To)
}
