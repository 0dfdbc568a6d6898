package trust

import "sync"

// Sequencer hands out per-principal admission tickets so trust updates
// apply in the order their requests entered the pipeline (FIFO per
// principal). Requests for different principals never wait on each
// other.
type Sequencer struct {
	mu     sync.Mutex
	queues map[string]*queue
}

type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64          // next ticket number to hand out
	serving uint64          // lowest ticket number not yet released
	done    map[uint64]bool // released tickets that are ahead of serving
}

// Ticket is one admitted request's position in its principal's queue.
type Ticket struct {
	q *queue
	n uint64
}

// NewSequencer creates an empty Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{queues: make(map[string]*queue)}
}

// Admit reserves the next position for a principal. Call at pipeline
// admission, before any concurrent work starts.
func (s *Sequencer) Admit(principalID string) *Ticket {
	s.mu.Lock()
	q, ok := s.queues[principalID]
	if !ok {
		q = &queue{done: make(map[uint64]bool)}
		q.cond = sync.NewCond(&q.mu)
		s.queues[principalID] = q
	}
	s.mu.Unlock()

	q.mu.Lock()
	n := q.next
	q.next++
	q.mu.Unlock()
	return &Ticket{q: q, n: n}
}

// Wait blocks until every earlier ticket for the same principal has
// been released.
func (t *Ticket) Wait() {
	t.q.mu.Lock()
	for t.q.serving != t.n {
		t.q.cond.Wait()
	}
	t.q.mu.Unlock()
}

// Done releases the ticket. Safe to call without Wait (a request
// cancelled before its trust update still releases its slot). Must be
// called exactly once per ticket.
func (t *Ticket) Done() {
	t.q.mu.Lock()
	t.q.done[t.n] = true
	for t.q.done[t.q.serving] {
		delete(t.q.done, t.q.serving)
		t.q.serving++
	}
	t.q.cond.Broadcast()
	t.q.mu.Unlock()
}
