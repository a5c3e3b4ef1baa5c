// Package roster is the local mirror of who is in the room, kept consistent
// via incremental deltas and full snapshots.
package roster

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/domain"
)

// Diff reports what a snapshot reconciliation changed. Everyone in Joined
// needs a peer connection set up; everyone in Left needs theirs torn down.
type Diff struct {
	Joined []domain.Participant
	Left   []domain.Participant
}

// MediaUpdate is a partial update; nil fields stay unchanged.
type MediaUpdate struct {
	Mic    *bool
	Cam    *bool
	Screen *bool
}

// Roster owns the participant set. The local user is never stored.
type Roster struct {
	mu      sync.RWMutex
	localID domain.UserID
	byUser  map[domain.UserID]*domain.Participant
}

func New(localID domain.UserID) *Roster {
	return &Roster{
		localID: localID,
		byUser:  make(map[domain.UserID]*domain.Participant),
	}
}

// ApplySnapshot replaces all entries with the authoritative list and returns
// the diff against the previous state. Applying the same snapshot twice is
// idempotent. Essential after reconnects, where deltas may have been missed.
func (r *Roster) ApplySnapshot(list []domain.Participant) Diff {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[domain.UserID]bool, len(list))
	var diff Diff

	for _, p := range list {
		if p.UserID == r.localID {
			continue
		}
		seen[p.UserID] = true
		if existing, ok := r.byUser[p.UserID]; ok {
			if existing.ConnectionID == p.ConnectionID {
				*existing = p
				continue
			}
			// Same user on a new transport session. The peer connection is
			// keyed by connectionId, so the old link is dead and a fresh one
			// is needed.
			diff.Left = append(diff.Left, *existing)
		}
		cp := p
		r.byUser[p.UserID] = &cp
		diff.Joined = append(diff.Joined, p)
	}

	for id, p := range r.byUser {
		if !seen[id] {
			diff.Left = append(diff.Left, *p)
			delete(r.byUser, id)
		}
	}

	log.Debug().Str("module", "roster").
		Int("size", len(r.byUser)).
		Int("joined", len(diff.Joined)).
		Int("left", len(diff.Left)).
		Msg("snapshot applied")
	return diff
}

// ApplyJoin inserts or updates in place. Returns true when the participant
// was previously unknown.
func (r *Roster) ApplyJoin(p domain.Participant) bool {
	if p.UserID == r.localID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byUser[p.UserID]; ok {
		existing.ConnectionID = p.ConnectionID
		existing.Username = p.Username
		existing.MicEnabled = p.MicEnabled
		existing.CamEnabled = p.CamEnabled
		return false
	}
	cp := p
	r.byUser[p.UserID] = &cp
	return true
}

// ApplyLeave removes the entry; no-op when absent.
func (r *Roster) ApplyLeave(userID domain.UserID) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUser[userID]
	if !ok {
		return domain.Participant{}, false
	}
	delete(r.byUser, userID)
	return *p, true
}

// ApplyMediaUpdate patches flags; unspecified fields are unchanged.
func (r *Roster) ApplyMediaUpdate(userID domain.UserID, upd MediaUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUser[userID]
	if !ok {
		return false
	}
	if upd.Mic != nil {
		p.MicEnabled = *upd.Mic
	}
	if upd.Cam != nil {
		p.CamEnabled = *upd.Cam
	}
	if upd.Screen != nil {
		p.ScreenSharing = *upd.Screen
	}
	return true
}

// Get returns a copy of one participant.
func (r *Roster) Get(userID domain.UserID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byUser[userID]; ok {
		return *p, true
	}
	return domain.Participant{}, false
}

// ByConnection looks a participant up by their transport session.
func (r *Roster) ByConnection(connID domain.ConnectionID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byUser {
		if p.ConnectionID == connID {
			return *p, true
		}
	}
	return domain.Participant{}, false
}

// Snapshot returns a stable copy for readers; never the live map.
func (r *Roster) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.byUser))
	for _, p := range r.byUser {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
