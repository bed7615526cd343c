package services

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefile-labs/verity/internal/adapters/driven/storage/memory"
	"github.com/casefile-labs/verity/internal/core/domain"
)

type duplicatesFixture struct {
	resolver *Duplicates
	imgs     *memory.ImageStore
	ledger   *memory.ProvenanceLedger
	audit    *memory.AuditLog
}

func newDuplicatesFixture(t *testing.T) *duplicatesFixture {
	t.Helper()
	corpora := memory.NewCorpusStore()
	ctx := context.Background()
	require.NoError(t, corpora.Save(ctx, domain.Corpus{ID: "corpus-a"}))
	require.NoError(t, corpora.Save(ctx, domain.Corpus{ID: "corpus-b"}))

	imgs := memory.NewImageStore()
	ledger := memory.NewProvenanceLedger()
	audit := memory.NewAuditLog()
	iso := NewIsolation(corpora, audit, 40)
	prov := NewProvenance(ledger)
	cfg := domain.SimilaritySettings{ExactThreshold: 0.98, NearThreshold: 0.85, PossibleThreshold: 0.70}
	return &duplicatesFixture{
		resolver: NewDuplicates(imgs, iso, prov, cfg),
		imgs:     imgs,
		ledger:   ledger,
		audit:    audit,
	}
}

func (f *duplicatesFixture) seedCanonical(t *testing.T, id, corpus, fingerprint string) {
	t.Helper()
	require.NoError(t, f.imgs.SaveImage(context.Background(), &domain.Image{
		ID:          id,
		DocumentID:  "doc-prior",
		CorpusID:    corpus,
		State:       domain.ImgCompleted,
		Fingerprint: fingerprint,
		Description: "prior interpretation",
	}))
}

func candidate(corpus, fingerprint string) domain.Image {
	return domain.Image{
		ID:          "img-new",
		DocumentID:  "doc-new",
		CorpusID:    corpus,
		State:       domain.ImgProcessing,
		Fingerprint: fingerprint,
	}
}

func TestDuplicates_Resolve_ExactBand(t *testing.T) {
	f := newDuplicatesFixture(t)
	f.seedCanonical(t, "img-canon", "corpus-a", "ffffffffffffffff")

	outcome, err := f.resolver.Resolve(context.Background(), candidate("corpus-a", "ffffffffffffffff"))

	require.NoError(t, err)
	assert.Equal(t, domain.BandExact, outcome.Band)
	assert.Equal(t, "img-canon", outcome.CanonicalID)
	assert.Equal(t, 1.0, outcome.Similarity)
}

func TestDuplicates_Resolve_NearBand(t *testing.T) {
	f := newDuplicatesFixture(t)
	// 6 differing bits: similarity 1 - 6/64 = 0.90625.
	f.seedCanonical(t, "img-canon", "corpus-a", "ffffffffffffffff")

	outcome, err := f.resolver.Resolve(context.Background(), candidate("corpus-a", "ffffffffffffffc0"))

	require.NoError(t, err)
	assert.Equal(t, domain.BandNear, outcome.Band)
	assert.InDelta(t, 0.906, outcome.Similarity, 0.001)
}

func TestDuplicates_Resolve_PossibleBand(t *testing.T) {
	f := newDuplicatesFixture(t)
	// 16 differing bits: similarity 0.75.
	f.seedCanonical(t, "img-canon", "corpus-a", "ffffffffffffffff")

	outcome, err := f.resolver.Resolve(context.Background(), candidate("corpus-a", "ffffffffffff0000"))

	require.NoError(t, err)
	assert.Equal(t, domain.BandPossible, outcome.Band)
	assert.InDelta(t, 0.75, outcome.Similarity, 0.001)
}

func TestDuplicates_Resolve_UniqueBand(t *testing.T) {
	f := newDuplicatesFixture(t)
	// 32 differing bits: similarity 0.5.
	f.seedCanonical(t, "img-canon", "corpus-a", "ffffffffffffffff")

	outcome, err := f.resolver.Resolve(context.Background(), candidate("corpus-a", "00000000ffffffff"))

	require.NoError(t, err)
	assert.Equal(t, domain.BandUnique, outcome.Band)
}

func TestDuplicates_Resolve_EmptyCorpusIsUnique(t *testing.T) {
	f := newDuplicatesFixture(t)

	outcome, err := f.resolver.Resolve(context.Background(), candidate("corpus-a", "ffffffffffffffff"))

	require.NoError(t, err)
	assert.Equal(t, domain.BandUnique, outcome.Band)
	assert.Empty(t, outcome.CanonicalID)

	// Even a no-candidate outcome commits a comparison record.
	records, err := f.ledger.ListByOutput(context.Background(), "img-new")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.TransformDuplicateCompare, records[0].Kind)
	assert.Contains(t, records[0].Note, "no prior canonical")
}

func TestDuplicates_Resolve_CommitsComparisonProvenance(t *testing.T) {
	f := newDuplicatesFixture(t)
	f.seedCanonical(t, "img-canon", "corpus-a", "ffffffffffffffff")

	_, err := f.resolver.Resolve(context.Background(), candidate("corpus-a", "ffffffffffffffff"))
	require.NoError(t, err)

	records, err := f.ledger.ListByOutput(context.Background(), "img-new")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"img-canon"}, records[0].Inputs)
	require.NotNil(t, records[0].Confidence)
	assert.Equal(t, 1.0, *records[0].Confidence)
}

func TestDuplicates_Resolve_TieBreaksOnByteSize(t *testing.T) {
	f := newDuplicatesFixture(t)
	ctx := context.Background()
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-far", CorpusID: "corpus-a", State: domain.ImgCompleted,
		Fingerprint: "ffffffffffffffff", ByteSize: 9000,
	}))
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-near", CorpusID: "corpus-a", State: domain.ImgCompleted,
		Fingerprint: "ffffffffffffffff", ByteSize: 1100,
	}))

	img := candidate("corpus-a", "ffffffffffffffff")
	img.ByteSize = 1000

	outcome, err := f.resolver.Resolve(ctx, img)

	require.NoError(t, err)
	assert.Equal(t, "img-near", outcome.CanonicalID)
}

func TestDuplicates_Resolve_MalformedFingerprintSkipped(t *testing.T) {
	f := newDuplicatesFixture(t)
	f.seedCanonical(t, "img-bad", "corpus-a", "not-hex")
	f.seedCanonical(t, "img-good", "corpus-a", "ffffffffffffffff")

	outcome, err := f.resolver.Resolve(context.Background(), candidate("corpus-a", "ffffffffffffffff"))

	require.NoError(t, err)
	assert.Equal(t, "img-good", outcome.CanonicalID)
}

// An identical image in another corpus is never a candidate: the pool
// is corpus-scoped and the query image resolves unique.
func TestDuplicates_Resolve_ForeignCorpusImageNeverListed(t *testing.T) {
	f := newDuplicatesFixture(t)
	ctx := context.Background()
	require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
		ID: "img-foreign", CorpusID: "corpus-b", State: domain.ImgCompleted,
		Fingerprint: "ffffffffffffffff",
	}))

	outcome, err := f.resolver.Resolve(ctx, candidate("corpus-a", "ffffffffffffffff"))
	require.NoError(t, err)
	assert.Equal(t, domain.BandUnique, outcome.Band)
	assert.Empty(t, f.audit.All(), "no isolation violations for scoped pools")
}

// Randomized sweep: two corpora with interleaved canonicals; no
// resolution may ever name a foreign canonical or log a violation.
func TestDuplicates_Resolve_NeverComparesAcrossCorpora(t *testing.T) {
	f := newDuplicatesFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 40; i++ {
		corpus := "corpus-a"
		if i%2 == 1 {
			corpus = "corpus-b"
		}
		require.NoError(t, f.imgs.SaveImage(ctx, &domain.Image{
			ID:          fmt.Sprintf("canon-%s-%d", corpus, i),
			CorpusID:    corpus,
			State:       domain.ImgCompleted,
			Fingerprint: fmt.Sprintf("%016x", rng.Uint64()),
		}))
	}

	for i := 0; i < 40; i++ {
		corpus := "corpus-a"
		if rng.Intn(2) == 1 {
			corpus = "corpus-b"
		}
		img := candidate(corpus, fmt.Sprintf("%016x", rng.Uint64()))
		img.ID = fmt.Sprintf("query-%d", i)

		outcome, err := f.resolver.Resolve(ctx, img)
		require.NoError(t, err)
		if outcome.CanonicalID != "" {
			assert.Contains(t, outcome.CanonicalID, corpus, "canonical must come from the query's corpus")
		}
	}

	for _, ev := range f.audit.All() {
		assert.NotEqual(t, domain.TagIsolationViolation, ev.Tag)
	}
}
