package services

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/logger"
)

// Scheduler bounds concurrent engine work per resource class and orders
// waiting requests by priority without starvation. Acquisition blocks
// only the calling step; priority affects queue position, never an
// already-running operation.
type Scheduler struct {
	cfg domain.SchedulerSettings

	mu         sync.Mutex
	free       map[domain.ResourceClass]int
	inUse      map[domain.ResourceClass]int
	queues     map[domain.ResourceClass]*waitQueue
	promotions int

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// waiter is one queued acquisition request. The slot is handed over on
// grant; a closed grant without a slot means the waiter gave up first.
type waiter struct {
	priority domain.Priority
	enqueued time.Time
	grant    chan domain.Slot
	index    int
}

// NewScheduler creates a scheduler with the configured slot counts.
func NewScheduler(cfg domain.SchedulerSettings) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		free:   make(map[domain.ResourceClass]int),
		inUse:  make(map[domain.ResourceClass]int),
		queues: make(map[domain.ResourceClass]*waitQueue),
		now:    time.Now,
	}
	for _, class := range []domain.ResourceClass{domain.ResourceOCR, domain.ResourceVision, domain.ResourceEmbedding} {
		s.free[class] = cfg.Slots(class)
		s.queues[class] = &waitQueue{}
	}
	return s
}

// Start runs the anti-starvation sweep until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.PromoteStarved()
			}
		}
	}()
}

// Stop halts the anti-starvation sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Acquire obtains a slot for the resource class, blocking until one
// frees or ctx expires. On expiry it returns a ResourceTimeoutError,
// which the state machine treats as transient.
func (s *Scheduler) Acquire(ctx context.Context, class domain.ResourceClass, priority domain.Priority) (*domain.Slot, error) {
	s.mu.Lock()
	if s.free[class] > 0 {
		s.free[class]--
		s.inUse[class]++
		slot := s.newSlot(class, priority)
		s.mu.Unlock()
		return &slot, nil
	}

	w := &waiter{
		priority: priority,
		enqueued: s.now(),
		grant:    make(chan domain.Slot, 1),
	}
	heap.Push(s.queues[class], w)
	s.mu.Unlock()

	select {
	case slot := <-w.grant:
		return &slot, nil
	case <-ctx.Done():
		s.mu.Lock()
		// A grant may have raced the timeout; if so, take it rather
		// than leaking the slot.
		select {
		case slot := <-w.grant:
			s.mu.Unlock()
			return &slot, nil
		default:
		}
		s.queues[class].remove(w)
		waited := s.now().Sub(w.enqueued)
		s.mu.Unlock()
		return nil, &domain.ResourceTimeoutError{Class: class, Priority: priority, Waited: waited}
	}
}

// Release returns a slot to its class, handing it directly to the
// highest-priority waiter if one is queued.
func (s *Scheduler) Release(slot *domain.Slot) {
	if slot == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inUse[slot.Class]--
	q := s.queues[slot.Class]
	if q.Len() > 0 {
		w := heap.Pop(q).(*waiter)
		granted := s.newSlot(slot.Class, w.priority)
		s.inUse[slot.Class]++
		w.grant <- granted
		return
	}
	s.free[slot.Class]++
}

// PromoteStarved boosts any request waiting beyond the configured bound
// by one priority level and returns how many were promoted.
func (s *Scheduler) PromoteStarved() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.cfg.PromoteAfter)
	promoted := 0
	for class, q := range s.queues {
		for _, w := range q.items {
			if w.priority < domain.PriorityCritical && w.enqueued.Before(cutoff) {
				w.priority = w.priority.Promote()
				// Promotion resets the starvation clock at the new level.
				w.enqueued = s.now()
				promoted++
				logger.Debug("Promoted starved %s request to %s", class, w.priority)
			}
		}
		heap.Init(q)
	}
	s.promotions += promoted
	return promoted
}

// Metrics returns a snapshot of scheduler occupancy.
func (s *Scheduler) Metrics() domain.SchedulerMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := domain.SchedulerMetrics{
		InUse:      make(map[domain.ResourceClass]int),
		Free:       make(map[domain.ResourceClass]int),
		Waiting:    make(map[domain.ResourceClass]int),
		Promotions: s.promotions,
	}
	for class := range s.queues {
		m.InUse[class] = s.inUse[class]
		m.Free[class] = s.free[class]
		m.Waiting[class] = s.queues[class].Len()
	}
	return m
}

func (s *Scheduler) newSlot(class domain.ResourceClass, priority domain.Priority) domain.Slot {
	return domain.Slot{
		ID:         uuid.NewString(),
		Class:      class,
		Priority:   priority,
		AcquiredAt: s.now(),
	}
}

// waitQueue is a max-heap on (priority, FIFO within priority).
type waitQueue struct {
	items []*waiter
}

func (q *waitQueue) Len() int { return len(q.items) }

func (q *waitQueue) Less(i, j int) bool {
	if q.items[i].priority != q.items[j].priority {
		return q.items[i].priority > q.items[j].priority
	}
	return q.items[i].enqueued.Before(q.items[j].enqueued)
}

func (q *waitQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *waitQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(q.items)
	q.items = append(q.items, w)
}

func (q *waitQueue) Pop() any {
	old := q.items
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return w
}

// remove drops a waiter that gave up before being granted.
func (q *waitQueue) remove(w *waiter) {
	for i, item := range q.items {
		if item == w {
			heap.Remove(q, i)
			return
		}
	}
}
