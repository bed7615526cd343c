package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefile-labs/verity/internal/adapters/driven/storage/memory"
	"github.com/casefile-labs/verity/internal/core/domain"
)

func record(inputs []string, outputs ...string) domain.ProvenanceRecord {
	return domain.ProvenanceRecord{
		Inputs:    inputs,
		Outputs:   outputs,
		Kind:      domain.TransformSynthesis,
		Agent:     "test-agent",
		AgentKind: domain.AgentSystem,
	}
}

func TestProvenance_Record_AssignsIdentityAndTimestamp(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())

	rec, err := prov.Record(context.Background(), record(nil, "doc-1"))

	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.RecordedAt.IsZero())
}

func TestProvenance_Record_RequiresOutputs(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())

	_, err := prov.Record(context.Background(), record([]string{"doc-1"}))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProvenance_Record_RequiresKindAndAgent(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())

	rec := record(nil, "doc-1")
	rec.Agent = ""

	_, err := prov.Record(context.Background(), rec)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProvenance_Record_RejectsSelfCycle(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())

	_, err := prov.Record(context.Background(), record([]string{"a"}, "a"))

	assert.ErrorIs(t, err, domain.ErrProvenanceCycle)
}

func TestProvenance_Record_RejectsTransitiveCycle(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())
	ctx := context.Background()

	// a -> b -> c, then closing c -> a must fail.
	_, err := prov.Record(ctx, record([]string{"a"}, "b"))
	require.NoError(t, err)
	_, err = prov.Record(ctx, record([]string{"b"}, "c"))
	require.NoError(t, err)

	_, err = prov.Record(ctx, record([]string{"c"}, "a"))

	assert.ErrorIs(t, err, domain.ErrProvenanceCycle)
}

func TestProvenance_Record_AllowsDiamonds(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())
	ctx := context.Background()

	// a -> b, a -> c, {b,c} -> d is a DAG, not a cycle.
	_, err := prov.Record(ctx, record([]string{"a"}, "b"))
	require.NoError(t, err)
	_, err = prov.Record(ctx, record([]string{"a"}, "c"))
	require.NoError(t, err)
	_, err = prov.Record(ctx, record([]string{"b", "c"}, "d"))
	require.NoError(t, err)
}

func TestProvenance_History_PreservesAppendOrder(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())
	ctx := context.Background()

	_, err := prov.Record(ctx, record(nil, "img-1"))
	require.NoError(t, err)
	_, err = prov.Record(ctx, record([]string{"img-1"}, "img-1/ocr"))
	require.NoError(t, err)
	_, err = prov.Record(ctx, record([]string{"img-1"}, "img-1/vision"))
	require.NoError(t, err)

	history, err := prov.History(ctx, "img-1")

	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"img-1"}, history[0].Outputs)
	assert.Equal(t, []string{"img-1/ocr"}, history[1].Outputs)
	assert.Equal(t, []string{"img-1/vision"}, history[2].Outputs)
}

// TestProvenance_History_TotalOrderUnderConcurrentRecords commits
// records for one entity from many goroutines and asserts the ledger
// settles on a single commit order: nothing lost, nothing duplicated,
// and every query sees the same sequence.
func TestProvenance_History_TotalOrderUnderConcurrentRecords(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())
	ctx := context.Background()

	_, err := prov.Record(ctx, record(nil, "img-1"))
	require.NoError(t, err)

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := prov.Record(ctx, record([]string{"img-1"}, fmt.Sprintf("img-1/attempt-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := prov.History(ctx, "img-1")
	require.NoError(t, err)
	require.Len(t, history, writers+1)

	seen := make(map[string]bool, len(history))
	for _, rec := range history {
		assert.False(t, seen[rec.ID], "record %s appears twice", rec.ID)
		seen[rec.ID] = true
	}

	again, err := prov.History(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, history, again)
}

func TestProvenance_Ancestors_WalksTransitively(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())
	ctx := context.Background()

	_, err := prov.Record(ctx, record([]string{"a"}, "b"))
	require.NoError(t, err)
	_, err = prov.Record(ctx, record([]string{"b"}, "c"))
	require.NoError(t, err)

	ancestors, err := prov.Ancestors(ctx, "c")

	require.NoError(t, err)
	assert.True(t, ancestors["a"])
	assert.True(t, ancestors["b"])
	assert.False(t, ancestors["c"])
}

// TestProvenance_Record_StaysAcyclicUnderRandomAppends grows a random
// layered graph and asserts no accepted record ever closes a cycle.
func TestProvenance_Record_StaysAcyclicUnderRandomAppends(t *testing.T) {
	prov := NewProvenance(memory.NewProvenanceLedger())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	artifacts := []string{"root"}
	_, err := prov.Record(ctx, record(nil, "root"))
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		// New artifacts derive from up to three earlier ones; this can
		// never introduce a cycle, so every append must succeed.
		n := 1 + rng.Intn(3)
		inputs := make([]string, 0, n)
		for j := 0; j < n; j++ {
			inputs = append(inputs, artifacts[rng.Intn(len(artifacts))])
		}
		out := fmt.Sprintf("artifact-%d", i)
		_, err := prov.Record(ctx, record(inputs, out))
		require.NoError(t, err)
		artifacts = append(artifacts, out)

		// A back-edge from a random ancestor chain must be rejected.
		if i%10 == 0 {
			anc, err := prov.Ancestors(ctx, out)
			require.NoError(t, err)
			for id := range anc {
				_, err := prov.Record(ctx, record([]string{out}, id))
				assert.ErrorIs(t, err, domain.ErrProvenanceCycle)
				break
			}
		}
	}
}
