package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casefile-labs/verity/internal/core/domain"
)

func testSchedulerSettings() domain.SchedulerSettings {
	return domain.SchedulerSettings{
		OCRSlots:       2,
		VisionSlots:    1,
		EmbeddingSlots: 2,
		AcquireTimeout: 50 * time.Millisecond,
		PromoteAfter:   10 * time.Millisecond,
	}
}

func TestScheduler_Acquire_WithinBounds(t *testing.T) {
	s := NewScheduler(testSchedulerSettings())
	ctx := context.Background()

	a, err := s.Acquire(ctx, domain.ResourceOCR, domain.PriorityStandard)
	require.NoError(t, err)
	b, err := s.Acquire(ctx, domain.ResourceOCR, domain.PriorityStandard)
	require.NoError(t, err)

	m := s.Metrics()
	assert.Equal(t, 2, m.InUse[domain.ResourceOCR])
	assert.Equal(t, 0, m.Free[domain.ResourceOCR])

	s.Release(a)
	s.Release(b)

	m = s.Metrics()
	assert.Equal(t, 0, m.InUse[domain.ResourceOCR])
	assert.Equal(t, 2, m.Free[domain.ResourceOCR])
}

func TestScheduler_Acquire_ClassesAreIndependent(t *testing.T) {
	s := NewScheduler(testSchedulerSettings())
	ctx := context.Background()

	// Exhaust vision; OCR must stay unaffected.
	v, err := s.Acquire(ctx, domain.ResourceVision, domain.PriorityStandard)
	require.NoError(t, err)
	defer s.Release(v)

	o, err := s.Acquire(ctx, domain.ResourceOCR, domain.PriorityStandard)
	require.NoError(t, err)
	s.Release(o)
}

func TestScheduler_Acquire_TimesOutWithTypedError(t *testing.T) {
	s := NewScheduler(testSchedulerSettings())
	ctx := context.Background()

	held, err := s.Acquire(ctx, domain.ResourceVision, domain.PriorityStandard)
	require.NoError(t, err)
	defer s.Release(held)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(timeoutCtx, domain.ResourceVision, domain.PriorityBatch)

	var timeout *domain.ResourceTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, domain.ResourceVision, timeout.Class)
	assert.Equal(t, domain.PriorityBatch, timeout.Priority)
	assert.True(t, domain.Transient(err), "resource timeouts are transient")

	// The abandoned waiter must not linger in the queue.
	assert.Equal(t, 0, s.Metrics().Waiting[domain.ResourceVision])
}

func TestScheduler_Release_PrefersHigherPriorityWaiter(t *testing.T) {
	s := NewScheduler(testSchedulerSettings())
	ctx := context.Background()

	held, err := s.Acquire(ctx, domain.ResourceVision, domain.PriorityStandard)
	require.NoError(t, err)

	got := make(chan domain.Priority, 2)
	acquire := func(p domain.Priority) {
		slot, err := s.Acquire(ctx, domain.ResourceVision, p)
		if err != nil {
			return
		}
		got <- p
		s.Release(slot)
	}

	go acquire(domain.PriorityBatch)
	// Let the batch waiter enqueue first, then add a critical one.
	require.Eventually(t, func() bool {
		return s.Metrics().Waiting[domain.ResourceVision] == 1
	}, time.Second, time.Millisecond)
	go acquire(domain.PriorityCritical)
	require.Eventually(t, func() bool {
		return s.Metrics().Waiting[domain.ResourceVision] == 2
	}, time.Second, time.Millisecond)

	s.Release(held)

	first := <-got
	second := <-got
	assert.Equal(t, domain.PriorityCritical, first)
	assert.Equal(t, domain.PriorityBatch, second)
}

func TestScheduler_PromoteStarved_BoostsLongWaiters(t *testing.T) {
	s := NewScheduler(testSchedulerSettings())
	ctx := context.Background()

	held, err := s.Acquire(ctx, domain.ResourceVision, domain.PriorityStandard)
	require.NoError(t, err)
	defer s.Release(held)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_, _ = s.Acquire(waitCtx, domain.ResourceVision, domain.PriorityBatch)
	}()
	require.Eventually(t, func() bool {
		return s.Metrics().Waiting[domain.ResourceVision] == 1
	}, time.Second, time.Millisecond)

	// Past the promotion bound the batch request moves up one level.
	time.Sleep(15 * time.Millisecond)
	promoted := s.PromoteStarved()
	assert.Equal(t, 1, promoted)
	assert.Equal(t, 1, s.Metrics().Promotions)

	// A second sweep straight away finds nothing past the bound.
	assert.Equal(t, 0, s.PromoteStarved())
}

func TestScheduler_PromoteStarved_NeverPassesCritical(t *testing.T) {
	s := NewScheduler(testSchedulerSettings())
	ctx := context.Background()

	held, err := s.Acquire(ctx, domain.ResourceVision, domain.PriorityStandard)
	require.NoError(t, err)
	defer s.Release(held)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_, _ = s.Acquire(waitCtx, domain.ResourceVision, domain.PriorityCritical)
	}()
	require.Eventually(t, func() bool {
		return s.Metrics().Waiting[domain.ResourceVision] == 1
	}, time.Second, time.Millisecond)

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, 0, s.PromoteStarved())
}

func TestPriority_Promote(t *testing.T) {
	assert.Equal(t, domain.PriorityStandard, domain.PriorityBatch.Promote())
	assert.Equal(t, domain.PriorityCritical, domain.PriorityStandard.Promote())
	assert.Equal(t, domain.PriorityCritical, domain.PriorityCritical.Promote())
}
