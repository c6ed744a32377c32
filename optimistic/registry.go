package optimistic

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry serializes mutations per logical slot (typically one entity id).
// Two overlapping mutations on the same slot run strictly in arrival order;
// mutations on different slots do not block each other. This is what closes
// the snapshot-interleaving race: a mutation can only snapshot state that
// every earlier mutation on the slot has finished committing or reverting.
type Registry struct {
	slots *xsync.MapOf[string, *slotQueue]
}

type slotQueue struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// NewRegistry creates an empty slot registry.
func NewRegistry() *Registry {
	return &Registry{slots: xsync.NewMapOf[string, *slotQueue]()}
}

// Do runs fn once every earlier Do call for the same slot has returned.
// fn's error is returned unchanged.
func (r *Registry) Do(ctx context.Context, slot string, fn func(ctx context.Context) error) error {
	q, _ := r.slots.LoadOrCompute(slot, func() *slotQueue {
		return &slotQueue{}
	})

	q.acquire()
	defer q.release()

	return fn(ctx)
}

func (q *slotQueue) acquire() {
	q.mu.Lock()
	ticket := make(chan struct{})
	q.waiters = append(q.waiters, ticket)
	if len(q.waiters) == 1 {
		close(ticket)
	}
	q.mu.Unlock()
	<-ticket
}

func (q *slotQueue) release() {
	q.mu.Lock()
	q.waiters = q.waiters[1:]
	if len(q.waiters) > 0 {
		close(q.waiters[0])
	}
	q.mu.Unlock()
}
