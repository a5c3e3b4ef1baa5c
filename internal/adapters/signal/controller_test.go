package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtran/meetcore/internal/domain"
	"github.com/vtran/meetcore/internal/hub"
)

// fullSender refuses every frame, simulating a consumer whose queue never
// drains.
type fullSender struct {
	kicked bool
}

func (s *fullSender) TrySend([]byte) error { return ErrBackpressure }
func (s *fullSender) Kick()                { s.kicked = true }

type recordingPolicy struct {
	roomID domain.RoomID
	connID domain.ConnectionID
	action hub.BackpressureAction
}

func (p *recordingPolicy) OnBackpressure(roomID domain.RoomID, connID domain.ConnectionID) hub.BackpressureAction {
	p.roomID = roomID
	p.connID = connID
	return p.action
}

func TestBackpressurePolicySeesSlowConnection(t *testing.T) {
	h := hub.NewHub("http://localhost")
	room := h.CreateRoom("demo", false, "host")
	policy := &recordingPolicy{action: hub.DropFrame}
	ctl := NewMeetingController(h, policy)

	slow := &fullSender{}
	ctl.sendJSON(room, "conn-slow", slow, struct {
		Type string `json:"type"`
	}{"chat_message"})

	assert.Equal(t, room.Info().ID, policy.roomID)
	assert.Equal(t, domain.ConnectionID("conn-slow"), policy.connID)
	assert.False(t, slow.kicked)
}

func TestDisconnectWithoutRoomReleasesConnection(t *testing.T) {
	h := hub.NewHub("http://localhost")
	ctl := NewMeetingController(h, hub.LenientPolicy{})
	connID := h.ConnectionFor("tok")

	ctl.handleDisconnect(&client{connID: connID})

	assert.Zero(t, h.ConnCount())
}

func TestGraceExpiryReleasesConnection(t *testing.T) {
	h := hub.NewHub("http://localhost")
	ctl := NewMeetingController(h, hub.LenientPolicy{})
	ctl.Grace = 50 * time.Millisecond

	connID := h.ConnectionFor("tok")
	room := h.CreateRoom("demo", false, "host")
	room.Join(&hub.Member{UserID: "guest", ConnectionID: connID, Username: "Guest"}, &fullSender{})

	ctl.handleDisconnect(&client{connID: connID, userID: "guest", room: room, admitted: true})

	// Still reattachable inside the window.
	require.Equal(t, 1, h.ConnCount())
	require.Eventually(t, func() bool { return h.ConnCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, room.MemberCount())
}

func TestBackpressureKickCutsSlowConsumer(t *testing.T) {
	h := hub.NewHub("http://localhost")
	room := h.CreateRoom("demo", false, "host")
	ctl := NewMeetingController(h, hub.StrictPolicy{})

	slow := &fullSender{}
	ctl.sendJSON(room, "conn-slow", slow, struct {
		Type string `json:"type"`
	}{"chat_message"})

	require.True(t, slow.kicked)
}
