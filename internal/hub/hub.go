// Package hub is the server-side room state: rooms, admitted members, the
// waiting queue, and the stable token-to-connection mapping. It holds no
// sockets of its own; the signal adapter drives it and does the delivery.
package hub

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/domain"
)

type Hub struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*Room
	byKey  map[domain.RoomKey]*Room
	conns  map[string]domain.ConnectionID
	tokens map[domain.ConnectionID]string
	shares string
}

// NewHub builds an empty registry; shareBase prefixes the share links handed
// out on room creation.
func NewHub(shareBase string) *Hub {
	return &Hub{
		rooms:  make(map[domain.RoomID]*Room),
		byKey:  make(map[domain.RoomKey]*Room),
		conns:  make(map[string]domain.ConnectionID),
		tokens: make(map[domain.ConnectionID]string),
		shares: strings.TrimRight(shareBase, "/"),
	}
}

// ConnectionFor assigns a connection id to a client token, stable across
// reconnects of the same token. Resync relies on this: a member who drops
// and redials within the grace window keeps their id, so the peers' links
// keyed by it stay valid.
func (h *Hub) ConnectionFor(token string) domain.ConnectionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.conns[token]; ok {
		return id
	}
	id := domain.ConnectionID(uuid.NewString())
	h.conns[token] = id
	h.tokens[id] = token
	return id
}

// Release drops the token mapping once the connection is gone for good, so
// the registry does not grow with every client that ever dialed. The same
// token dialing again mints a fresh id.
func (h *Hub) Release(connID domain.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	token, ok := h.tokens[connID]
	if !ok {
		return
	}
	delete(h.tokens, connID)
	delete(h.conns, token)
}

func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CreateRoom registers a room owned by hostID and mints its shareable key.
func (h *Hub) CreateRoom(name string, waitingRoom bool, hostID domain.UserID) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := domain.RoomID(uuid.NewString())
	key := h.mintKey()
	room := newRoom(domain.Room{
		ID:          id,
		Key:         key,
		Name:        name,
		ShareURL:    h.shares + "/join/" + string(key),
		WaitingRoom: waitingRoom,
	}, hostID)

	h.rooms[id] = room
	h.byKey[key] = room
	log.Info().Str("module", "hub").
		Str("room", string(id)).Str("key", string(key)).
		Bool("waiting_room", waitingRoom).Msg("room created")
	return room
}

// mintKey derives a short shareable key; caller holds the lock.
func (h *Hub) mintKey() domain.RoomKey {
	for {
		raw := strings.ReplaceAll(uuid.NewString(), "-", "")
		key := domain.RoomKey(strings.ToUpper(raw[:9]))
		if _, taken := h.byKey[key]; !taken {
			return key
		}
	}
}

func (h *Hub) GetRoom(id domain.RoomID) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[id]
	return room, ok
}

func (h *Hub) GetRoomByKey(key domain.RoomKey) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.byKey[key]
	return room, ok
}

// RemoveRoom drops the room after the meeting ended.
func (h *Hub) RemoveRoom(id domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[id]
	if !ok {
		return
	}
	delete(h.rooms, id)
	delete(h.byKey, room.info.Key)
	log.Info().Str("module", "hub").Str("room", string(id)).Msg("room removed")
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
