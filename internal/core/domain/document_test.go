package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentState_Active(t *testing.T) {
	active := []DocumentState{
		DocIngested, DocNormalized, DocTextExtracted, DocImagesExtracted,
		DocPartiallyProcessed, DocReady, DocReprocessing, DocBlocked,
	}
	for _, s := range active {
		assert.True(t, s.Active(), "state %s should be active", s)
	}

	inactive := []DocumentState{DocFailed, DocRemoved, DocPermanentlyDeleted}
	for _, s := range inactive {
		assert.False(t, s.Active(), "state %s should be inactive", s)
	}
}

func TestDocumentState_Terminal(t *testing.T) {
	assert.True(t, DocFailed.Terminal())
	assert.True(t, DocPermanentlyDeleted.Terminal())
	assert.False(t, DocBlocked.Terminal())
	assert.False(t, DocRemoved.Terminal())
}

func TestDeletionStrategy_Valid(t *testing.T) {
	assert.True(t, SoftKeep.Valid())
	assert.True(t, SoftRemove.Valid())
	assert.True(t, HardDelete.Valid())
	assert.False(t, DeletionStrategy("shred").Valid())
}

func TestTimeoutClassFor(t *testing.T) {
	assert.Equal(t, TimeoutSmall, TimeoutClassFor(0))
	assert.Equal(t, TimeoutSmall, TimeoutClassFor(4))
	assert.Equal(t, TimeoutStandard, TimeoutClassFor(5))
	assert.Equal(t, TimeoutStandard, TimeoutClassFor(14))
	assert.Equal(t, TimeoutComplex, TimeoutClassFor(15))
	assert.Equal(t, TimeoutComplex, TimeoutClassFor(40))
}
