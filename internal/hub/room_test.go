package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtran/meetcore/internal/domain"
)

type stubSender struct {
	mu     sync.Mutex
	frames [][]byte
	kicked bool
}

func (s *stubSender) TrySend(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *stubSender) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kicked = true
}

func member(user, conn string) *Member {
	return &Member{
		UserID:       domain.UserID(user),
		ConnectionID: domain.ConnectionID(conn),
		Username:     user,
	}
}

func TestConnectionForIsStable(t *testing.T) {
	h := NewHub("http://localhost:8080")

	first := h.ConnectionFor("token-a")
	second := h.ConnectionFor("token-a")
	other := h.ConnectionFor("token-b")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
}

func TestCreateRoomMintsKeyAndShareURL(t *testing.T) {
	h := NewHub("http://meet.example/")

	room := h.CreateRoom("standup", false, "host")
	info := room.Info()

	assert.NotEmpty(t, info.ID)
	assert.Len(t, string(info.Key), 9)
	assert.Equal(t, "http://meet.example/join/"+string(info.Key), info.ShareURL)

	byID, ok := h.GetRoom(info.ID)
	require.True(t, ok)
	byKey, ok := h.GetRoomByKey(info.Key)
	require.True(t, ok)
	assert.Same(t, byID, byKey)
}

func TestRemoveRoomDropsBothIndexes(t *testing.T) {
	h := NewHub("http://localhost")
	info := h.CreateRoom("standup", false, "host").Info()

	h.RemoveRoom(info.ID)

	_, ok := h.GetRoom(info.ID)
	assert.False(t, ok)
	_, ok = h.GetRoomByKey(info.Key)
	assert.False(t, ok)
	assert.Zero(t, h.RoomCount())
}

func TestOpenRoomAdmitsEveryone(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("open", false, "host")

	assert.True(t, room.Join(member("host", "c0"), &stubSender{}))
	assert.True(t, room.Join(member("guest", "c1"), &stubSender{}))
	assert.Equal(t, 2, room.MemberCount())
	assert.Empty(t, room.WaitingList())
}

func TestWaitingRoomParksGuests(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("gated", true, "host")

	assert.True(t, room.Join(member("host", "c0"), &stubSender{}))
	assert.False(t, room.Join(member("guest", "c1"), &stubSender{}))

	assert.Equal(t, 1, room.MemberCount())
	queue := room.WaitingList()
	require.Len(t, queue, 1)
	assert.Equal(t, domain.ConnectionID("c1"), queue[0].ConnectionID)
}

func TestWaitingQueueArrivalOrderAndDedup(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("gated", true, "host")

	room.Join(member("a", "c1"), &stubSender{})
	room.Join(member("b", "c2"), &stubSender{})
	room.Join(member("a", "c1"), &stubSender{})

	queue := room.WaitingList()
	require.Len(t, queue, 2)
	assert.Equal(t, domain.ConnectionID("c1"), queue[0].ConnectionID)
	assert.Equal(t, domain.ConnectionID("c2"), queue[1].ConnectionID)
}

func TestAdmitMovesGuestIn(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("gated", true, "host")
	room.Join(member("host", "c0"), &stubSender{})
	room.Join(member("guest", "c1"), &stubSender{})

	m, ok := room.Admit("c1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("guest"), m.UserID)
	assert.Equal(t, 2, room.MemberCount())
	assert.Empty(t, room.WaitingList())

	// Admitting twice or after disconnect is a no-op.
	_, ok = room.Admit("c1")
	assert.False(t, ok)
}

func TestRemoveWaiting(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("gated", true, "host")
	room.Join(member("guest", "c1"), &stubSender{})

	m, ok := room.RemoveWaiting("c1")
	require.True(t, ok)
	assert.NotNil(t, m.Sender())
	assert.Empty(t, room.WaitingList())
	assert.Zero(t, room.MemberCount())
}

func TestDetachKeepsMembership(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("open", false, "host")
	room.Join(member("guest", "c1"), &stubSender{})

	require.True(t, room.Detach("c1"))

	// Still on the roster, just without a live socket.
	assert.Len(t, room.Participants(), 1)
	assert.Empty(t, room.Senders(""))
	_, ok := room.SenderTo("c1")
	assert.False(t, ok)
}

func TestReattachWithinGrace(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("open", false, "host")
	room.Join(member("guest", "c1"), &stubSender{})
	room.Detach("c1")

	fresh := &stubSender{}
	m, ok := room.Reattach("guest", fresh)
	require.True(t, ok)
	assert.False(t, m.Detached)
	assert.Equal(t, domain.ConnectionID("c1"), m.ConnectionID)

	// A reattach cancels the pending expiry.
	_, expired := room.RemoveIfDetached("c1")
	assert.False(t, expired)
	assert.Len(t, room.Senders(""), 1)
}

func TestRemoveIfDetachedExpires(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("open", false, "host")
	room.Join(member("guest", "c1"), &stubSender{})
	room.Detach("c1")

	m, ok := room.RemoveIfDetached("c1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("guest"), m.UserID)
	assert.Zero(t, room.MemberCount())
}

func TestRemoveIfDetachedIgnoresAttached(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("open", false, "host")
	room.Join(member("guest", "c1"), &stubSender{})

	_, ok := room.RemoveIfDetached("c1")
	assert.False(t, ok)
	assert.Equal(t, 1, room.MemberCount())
}

func TestParticipantsExceptSkipsCaller(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("open", false, "host")
	room.Join(member("host", "c0"), &stubSender{})
	room.Join(member("guest", "c1"), &stubSender{})

	list := room.ParticipantsExcept("c1")
	require.Len(t, list, 1)
	assert.Equal(t, domain.ConnectionID("c0"), list[0].ConnectionID)
}

func TestSetMediaPatchesFlags(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("open", false, "host")
	room.Join(member("guest", "c1"), &stubSender{})

	m, ok := room.SetMedia("c1", func(m *Member) { m.Screen = true })
	require.True(t, ok)
	assert.True(t, m.Screen)
	assert.True(t, room.Participants()[0].ScreenSharing)

	_, ok = room.SetMedia("c404", func(m *Member) {})
	assert.False(t, ok)
}

func TestReleaseEvictsTokenMapping(t *testing.T) {
	h := NewHub("http://localhost")
	first := h.ConnectionFor("tok")
	require.Equal(t, first, h.ConnectionFor("tok"))
	require.Equal(t, 1, h.ConnCount())

	h.Release(first)

	assert.Zero(t, h.ConnCount())
	// A released token dialing again starts a fresh session.
	assert.NotEqual(t, first, h.ConnectionFor("tok"))
}

func TestReleaseUnknownConnection(t *testing.T) {
	h := NewHub("http://localhost")
	h.ConnectionFor("tok")

	h.Release("no-such-conn")

	assert.Equal(t, 1, h.ConnCount())
}

func TestHostSender(t *testing.T) {
	h := NewHub("http://localhost")
	room := h.CreateRoom("gated", true, "host")

	_, _, ok := room.HostSender()
	assert.False(t, ok)

	hostConn := &stubSender{}
	room.Join(member("host", "c0"), hostConn)

	id, s, ok := room.HostSender()
	require.True(t, ok)
	assert.Equal(t, domain.ConnectionID("c0"), id)
	assert.Same(t, hostConn, s)
}
