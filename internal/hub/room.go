package hub

import (
	"sync"

	"github.com/vtran/meetcore/internal/domain"
)

// Sender is the delivery half of one live signal connection. TrySend never
// blocks; Kick force-closes the socket.
type Sender interface {
	TrySend(data []byte) error
	Kick()
}

// Member is one admitted participant. Detached marks a member whose socket
// dropped but whose grace window has not expired; they still count toward
// the roster, since their media paths may be fully alive.
type Member struct {
	UserID       domain.UserID
	ConnectionID domain.ConnectionID
	Username     string
	MicEnabled   bool
	CamEnabled   bool
	Screen       bool
	Detached     bool

	sender Sender
}

// Sender exposes the bound socket; nil while detached.
func (m *Member) Sender() Sender { return m.sender }

func (m *Member) Participant() domain.Participant {
	return domain.Participant{
		UserID:        m.UserID,
		ConnectionID:  m.ConnectionID,
		Username:      m.Username,
		MicEnabled:    m.MicEnabled,
		CamEnabled:    m.CamEnabled,
		ScreenSharing: m.Screen,
	}
}

// Room guards one meeting's membership under a single lock. Delivery happens
// outside the lock on sender snapshots.
type Room struct {
	mu     sync.RWMutex
	info   domain.Room
	hostID domain.UserID

	members map[domain.ConnectionID]*Member
	waiting map[domain.ConnectionID]*Member
	order   []domain.ConnectionID
}

func newRoom(info domain.Room, hostID domain.UserID) *Room {
	return &Room{
		info:    info,
		hostID:  hostID,
		members: make(map[domain.ConnectionID]*Member),
		waiting: make(map[domain.ConnectionID]*Member),
	}
}

func (r *Room) Info() domain.Room       { return r.info }
func (r *Room) HostID() domain.UserID   { return r.hostID }
func (r *Room) IsHost(id domain.UserID) bool { return id == r.hostID }

// Join decides the entry path: the host and, in open rooms, everyone is
// admitted immediately; other guests are parked in the waiting queue.
func (r *Room) Join(m *Member, sender Sender) (admitted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.sender = sender
	if r.IsHost(m.UserID) || !r.info.WaitingRoom {
		r.members[m.ConnectionID] = m
		return true
	}
	if _, ok := r.waiting[m.ConnectionID]; !ok {
		r.waiting[m.ConnectionID] = m
		r.order = append(r.order, m.ConnectionID)
	}
	return false
}

// Reattach rebinds a member's socket after a reconnect within the grace
// window. Matching is by user id: the connection id was preserved.
func (r *Room) Reattach(userID domain.UserID, sender Sender) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.UserID == userID {
			m.sender = sender
			m.Detached = false
			return m, true
		}
	}
	return nil, false
}

// Admit moves a waiting guest into the member set.
func (r *Room) Admit(connID domain.ConnectionID) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.waiting[connID]
	if !ok {
		return nil, false
	}
	r.dropWaitingLocked(connID)
	r.members[connID] = m
	return m, true
}

// RemoveWaiting drops a guest from the queue on reject or disconnect.
func (r *Room) RemoveWaiting(connID domain.ConnectionID) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.waiting[connID]
	if !ok {
		return nil, false
	}
	r.dropWaitingLocked(connID)
	return m, true
}

func (r *Room) dropWaitingLocked(connID domain.ConnectionID) {
	delete(r.waiting, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Remove deletes an admitted member.
func (r *Room) Remove(connID domain.ConnectionID) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[connID]
	if !ok {
		return nil, false
	}
	delete(r.members, connID)
	return m, true
}

// Detach marks the socket gone without removing membership.
func (r *Room) Detach(connID domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[connID]
	if !ok {
		return false
	}
	m.Detached = true
	m.sender = nil
	return true
}

// RemoveIfDetached expires the grace window: the member is removed only if
// no reattach happened in the meantime.
func (r *Room) RemoveIfDetached(connID domain.ConnectionID) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[connID]
	if !ok || !m.Detached {
		return nil, false
	}
	delete(r.members, connID)
	return m, true
}

// Lookup finds an admitted member by connection id.
func (r *Room) Lookup(connID domain.ConnectionID) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[connID]
	return m, ok
}

// SetMedia patches one media flag and returns the member for broadcast.
func (r *Room) SetMedia(connID domain.ConnectionID, apply func(*Member)) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[connID]
	if !ok {
		return nil, false
	}
	apply(m)
	return m, true
}

// Participants snapshots the admitted roster, detached members included.
func (r *Room) Participants() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Participant())
	}
	return out
}

// ParticipantsExcept is the snapshot handed to a joiner: everyone but them.
func (r *Room) ParticipantsExcept(connID domain.ConnectionID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.members))
	for id, m := range r.members {
		if id == connID {
			continue
		}
		out = append(out, m.Participant())
	}
	return out
}

// Senders snapshots live sockets for broadcast, keyed by connection id,
// skipping except and anyone detached.
func (r *Room) Senders(except domain.ConnectionID) map[domain.ConnectionID]Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.ConnectionID]Sender, len(r.members))
	for id, m := range r.members {
		if id == except || m.sender == nil {
			continue
		}
		out[id] = m.sender
	}
	return out
}

// HostSender returns the host's live socket and connection id, if attached.
func (r *Room) HostSender() (domain.ConnectionID, Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, m := range r.members {
		if m.UserID == r.hostID && m.sender != nil {
			return id, m.sender, true
		}
	}
	return "", nil, false
}

// SenderTo returns one member's live socket.
func (r *Room) SenderTo(connID domain.ConnectionID) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[connID]
	if !ok || m.sender == nil {
		return nil, false
	}
	return m.sender, true
}

// WaitingList returns the queue in arrival order.
func (r *Room) WaitingList() []domain.PendingGuest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PendingGuest, 0, len(r.order))
	for _, id := range r.order {
		if m, ok := r.waiting[id]; ok {
			out = append(out, domain.PendingGuest{
				ConnectionID: m.ConnectionID,
				UserID:       m.UserID,
				Username:     m.Username,
			})
		}
	}
	return out
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
