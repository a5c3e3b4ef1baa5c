package admission

import (
	"sync"

	"github.com/vtran/meetcore/internal/domain"
)

// PendingGuests is the host-side queue of guests waiting for a decision.
// Removal is optimistic: admit/reject drop the entry immediately while the
// authoritative admission still happens on the guest's side, so either order
// of local removal and server confirmation is safe.
type PendingGuests struct {
	mu     sync.Mutex
	order  []domain.ConnectionID
	byConn map[domain.ConnectionID]domain.PendingGuest
}

func NewPendingGuests() *PendingGuests {
	return &PendingGuests{byConn: make(map[domain.ConnectionID]domain.PendingGuest)}
}

// Add appends a guest; a duplicate connectionId is ignored.
func (q *PendingGuests) Add(g domain.PendingGuest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byConn[g.ConnectionID]; ok {
		return false
	}
	q.byConn[g.ConnectionID] = g
	q.order = append(q.order, g.ConnectionID)
	return true
}

// Remove drops the entry; no-op when absent.
func (q *PendingGuests) Remove(connID domain.ConnectionID) (domain.PendingGuest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	g, ok := q.byConn[connID]
	if !ok {
		return domain.PendingGuest{}, false
	}
	delete(q.byConn, connID)
	for i, id := range q.order {
		if id == connID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return g, true
}

// List returns the queue in arrival order.
func (q *PendingGuests) List() []domain.PendingGuest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.PendingGuest, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.byConn[id])
	}
	return out
}

func (q *PendingGuests) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byConn)
}

// Clear drops everything, used when the room is left.
func (q *PendingGuests) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order = nil
	q.byConn = make(map[domain.ConnectionID]domain.PendingGuest)
}
