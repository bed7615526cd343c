package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefile-labs/verity/internal/core/domain"
)

func newReviewFixture(t *testing.T) (*pipelineFixture, *Review) {
	t.Helper()
	f := newPipelineFixture(t)
	review := NewReview(f.machine, f.pipeline, f.prov, f.docs, f.imgs, f.tasks, f.audit)
	return f, review
}

func TestReview_ResolveTask_RequiresRationale(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	_, err := f.tasks.CreateTask(ctx, domain.Task{ID: "task-1", Kind: domain.TaskInterpretation, DocumentID: "doc-1"})
	require.NoError(t, err)

	err = review.ResolveTask(ctx, domain.Decision{
		TaskID: "task-1", Choice: domain.ChoiceApprove, Actor: "reviewer",
	})

	assert.ErrorIs(t, err, domain.ErrJustificationRequired)
}

func TestReview_ResolveTask_UnknownTask(t *testing.T) {
	_, review := newReviewFixture(t)

	err := review.ResolveTask(context.Background(), domain.Decision{
		TaskID: "task-ghost", Choice: domain.ChoiceApprove, Actor: "reviewer", Rationale: "looks right",
	})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReview_ResolveTask_AuditsDecision(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	doc := f.ingest(t)
	require.NoError(t, f.docs.SaveDocument(ctx, &domain.Document{
		ID: doc.ID, CorpusID: "corpus-a", State: domain.DocBlocked, Epoch: 1,
	}))
	_, err := f.tasks.CreateTask(ctx, domain.Task{
		ID: "task-1", Kind: domain.TaskBlockedDocument, CorpusID: "corpus-a", DocumentID: doc.ID,
	})
	require.NoError(t, err)

	require.NoError(t, review.ResolveTask(ctx, domain.Decision{
		TaskID: "task-1", Choice: domain.ChoiceApprove, Actor: "reviewer",
		Rationale: "supporting figures are sufficient for partial service",
	}))

	chain, err := review.ReasonChain(ctx, doc.ID, 10)
	require.NoError(t, err)
	var sawResolution bool
	for _, ev := range chain {
		if ev.Action == "task_resolved" {
			sawResolution = true
			assert.Equal(t, "reviewer", ev.Actor)
			assert.Equal(t, string(domain.ChoiceApprove), ev.Detail["choice"])
		}
	}
	assert.True(t, sawResolution)

	// With no run awaiting, the approval unblocks the document here.
	got, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocImagesExtracted, got.State)
}

func TestReview_ResolveTask_OrphanInterpretationApprove(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-1", DocumentID: "doc-1", CorpusID: "corpus-a",
		State: domain.ImgNeedsInterpretation, DiagramType: domain.DiagramSupporting,
		Description: "unclear sketch", DescriptionConfidence: 0.4, Epoch: 1,
	}))
	_, err := f.tasks.CreateTask(ctx, domain.Task{
		ID: "task-1", Kind: domain.TaskInterpretation,
		CorpusID: "corpus-a", DocumentID: "doc-1", ImageID: "img-1",
	})
	require.NoError(t, err)

	require.NoError(t, review.ResolveTask(ctx, domain.Decision{
		TaskID: "task-1", Choice: domain.ChoiceApprove, Actor: "reviewer",
		Rationale: "sketch shows the clamp assembly", Description: "clamp assembly, exploded view",
	}))

	img, err := f.imgs.GetImage(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImgCompleted, img.State)
	assert.True(t, img.HumanValidated)
	assert.Equal(t, "clamp assembly, exploded view", img.Description)

	count, err := f.vectors.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "approved interpretation is embedded")
}

func TestReview_ResolveTask_OrphanNearDuplicateLink(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-canon", DocumentID: "doc-prior", CorpusID: "corpus-a",
		State: domain.ImgCompleted, Description: "canonical figure",
	}))
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-1", DocumentID: "doc-1", CorpusID: "corpus-a",
		State: domain.ImgNeedsInterpretation, Epoch: 1,
	}))
	_, err := f.tasks.CreateTask(ctx, domain.Task{
		ID: "task-1", Kind: domain.TaskNearDuplicate,
		CorpusID: "corpus-a", DocumentID: "doc-1", ImageID: "img-1",
		Evidence: map[string]string{"candidate": "img-canon", "similarity": "0.906"},
	})
	require.NoError(t, err)

	require.NoError(t, review.ResolveTask(ctx, domain.Decision{
		TaskID: "task-1", Choice: domain.ChoiceLinkDuplicate, Actor: "reviewer",
		Rationale: "same figure, different scan",
	}))

	img, err := f.imgs.GetImage(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImgCompleted, img.State)
	require.NotNil(t, img.CanonicalID)
	assert.Equal(t, "img-canon", *img.CanonicalID)
}

func TestReview_OverrideDiagramType(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-1", DocumentID: "doc-1", CorpusID: "corpus-a",
		State: domain.ImgCompleted, DiagramType: domain.DiagramSupporting,
	}))

	require.NoError(t, review.OverrideDiagramType(ctx, "img-1", domain.DiagramMethod, "reviewer", "figure 2 depicts the claimed method steps"))

	img, err := f.imgs.GetImage(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DiagramMethod, img.DiagramType)

	chain, err := review.ReasonChain(ctx, "img-1", 1)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "diagram_type_overridden", chain[0].Action)
	assert.Equal(t, string(domain.DiagramSupporting), chain[0].BeforeState)
	assert.Equal(t, string(domain.DiagramMethod), chain[0].AfterState)
}

func TestReview_OverrideDiagramType_RequiresRationale(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-1", State: domain.ImgCompleted, DiagramType: domain.DiagramSupporting,
	}))

	err := review.OverrideDiagramType(ctx, "img-1", domain.DiagramTitle, "reviewer", "")

	assert.ErrorIs(t, err, domain.ErrJustificationRequired)
}

func TestReview_OverrideDiagramType_InvalidType(t *testing.T) {
	_, review := newReviewFixture(t)

	err := review.OverrideDiagramType(context.Background(), "img-1", domain.DiagramType("sidebar"), "reviewer", "r")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReview_ReinstateIgnored(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-1", DocumentID: "doc-1", CorpusID: "corpus-a",
		State: domain.ImgIgnored, Description: "faint schematic", Epoch: 1,
	}))

	require.NoError(t, review.ReinstateIgnored(ctx, "img-1", "reviewer", "schematic is legible on the rescanned copy"))

	img, err := f.imgs.GetImage(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImgNeedsInterpretation, img.State)

	pending, err := review.PendingTasks(ctx, "corpus-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.TaskInterpretation, pending[0].Kind)
	assert.Equal(t, "img-1", pending[0].ImageID)
}

func TestReview_ReinstateIgnored_OnlyFromIgnored(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-1", State: domain.ImgCompleted,
	}))

	err := review.ReinstateIgnored(ctx, "img-1", "reviewer", "second look")

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestReview_PendingTasks_CorpusScoped(t *testing.T) {
	f, review := newReviewFixture(t)
	ctx := context.Background()
	_, err := f.tasks.CreateTask(ctx, domain.Task{ID: "task-a", Kind: domain.TaskInterpretation, CorpusID: "corpus-a", CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = f.tasks.CreateTask(ctx, domain.Task{ID: "task-b", Kind: domain.TaskInterpretation, CorpusID: "corpus-b", CreatedAt: time.Now()})
	require.NoError(t, err)

	scoped, err := review.PendingTasks(ctx, "corpus-a")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "task-a", scoped[0].ID)

	all, err := review.PendingTasks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
