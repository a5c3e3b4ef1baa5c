package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtran/meetcore/internal/adapters/roomapi"
	"github.com/vtran/meetcore/internal/adapters/transport"
	"github.com/vtran/meetcore/internal/config"
	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
	"github.com/vtran/meetcore/internal/hub"
)

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	cfg := &config.Config{Mode: "release", Secret: "test-secret", PublicURL: "http://meet.test"}
	h := hub.NewHub(cfg.PublicURL)
	srv := httptest.NewServer(SetupRouter(cfg, h))
	t.Cleanup(srv.Close)
	return srv, h
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var env map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestCreateAndJoinRoomREST(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := postJSON(t, srv.URL+"/api/rooms", map[string]any{
		"name":         "standup",
		"waiting_room": false,
		"user_id":      "host",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var room domain.Room
	require.NoError(t, json.Unmarshal(env["data"], &room))
	assert.NotEmpty(t, room.ID)
	assert.Len(t, string(room.Key), 9)
	assert.True(t, strings.HasPrefix(room.ShareURL, "http://meet.test/join/"))

	resp, env = postJSON(t, srv.URL+"/api/rooms/"+string(room.ID)+"/join", map[string]any{
		"user_id":  "host",
		"username": "Host",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var joined struct {
		Room domain.Room `json:"room"`
		Role domain.Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal(env["data"], &joined))
	assert.Equal(t, domain.RoleHost, joined.Role)

	resp, env = postJSON(t, srv.URL+"/api/rooms/key/"+string(room.Key)+"/join", map[string]any{
		"user_id":  "guest",
		"username": "Guest",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env["data"], &joined))
	assert.Equal(t, domain.RoleGuest, joined.Role)
	assert.Equal(t, room.ID, joined.Room.ID)
}

func TestJoinUnknownRoomREST(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/rooms/nope/join", map[string]any{
		"user_id": "x", "username": "X",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRoomRequiresUserID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/rooms", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJoinValidatesUsername(t *testing.T) {
	srv, h := newTestServer(t)
	room := h.CreateRoom("r", false, "host").Info()

	resp, _ := postJSON(t, srv.URL+"/api/rooms/"+string(room.ID)+"/join", map[string]any{
		"user_id": "guest", "username": "",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ── end-to-end over websocket ──

func webrtcOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
}

func webrtcAnswer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
}

func iceCandidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

type meetClient struct {
	transport *transport.Client
	api       *roomapi.Client
	userID    domain.UserID
}

func newMeetClient(t *testing.T, srv *httptest.Server, user, name string) *meetClient {
	t.Helper()
	token := "token-" + user
	c := &meetClient{
		transport: transport.NewClient(transport.Options{
			URL:          "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/meeting",
			Token:        token,
			ReconnectMin: 20 * time.Millisecond,
			ReconnectMax: 100 * time.Millisecond,
		}),
		api:    roomapi.NewClient(srv.URL+"/api", token, domain.UserID(user), name),
		userID: domain.UserID(user),
	}
	require.NoError(t, c.transport.Connect(context.Background()))
	t.Cleanup(c.transport.Close)
	require.Eventually(t, func() bool {
		return c.transport.ConnectionID() != ""
	}, 2*time.Second, 5*time.Millisecond)
	return c
}

func (c *meetClient) joinRoom(t *testing.T, roomID domain.RoomID, name string) {
	t.Helper()
	require.NoError(t, c.transport.Send(core.JoinRoomCmd{
		Type:     core.CmdJoinRoom,
		RoomID:   roomID,
		UserID:   c.userID,
		Username: name,
	}))
}

// expect waits for one event of the wanted type, failing on anything that
// cannot precede it in the protocol.
func expect(t *testing.T, c *meetClient, wanted string) core.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-c.transport.Events():
			if evt.Type == wanted {
				return evt
			}
		case <-deadline:
			t.Fatalf("event %q never arrived for %s", wanted, c.userID)
		}
	}
}

func TestMeetingDirectJoinAndOfferRouting(t *testing.T) {
	srv, _ := newTestServer(t)

	host := newMeetClient(t, srv, "host", "Host")
	room, err := host.api.CreateRoom(context.Background(), "standup", false)
	require.NoError(t, err)
	host.joinRoom(t, room.ID, "Host")
	expect(t, host, core.EvtExistingParticipants)

	guest := newMeetClient(t, srv, "guest", "Guest")
	res, err := guest.api.JoinRoomByKey(context.Background(), room.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGuest, res.Role)
	guest.joinRoom(t, room.ID, "Guest")

	// The guest's snapshot names the host; the host gets the join delta.
	var snap core.ExistingParticipantsData
	require.NoError(t, json.Unmarshal(expect(t, guest, core.EvtExistingParticipants).Data, &snap))
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, domain.UserID("host"), snap.Participants[0].UserID)
	hostConn := snap.Participants[0].ConnectionID

	var joined core.UserJoinData
	require.NoError(t, json.Unmarshal(expect(t, host, core.EvtUserJoined).Data, &joined))
	assert.Equal(t, domain.UserID("guest"), joined.UserID)
	assert.Equal(t, guest.transport.ConnectionID(), joined.ConnectionID)

	// The joiner offers; the hub stamps the sender identity on the way.
	require.NoError(t, guest.transport.Send(core.OfferCmd{
		Type: core.CmdSendOffer,
		To:   hostConn,
		Offer: webrtcOffer(),
	}))
	var offer core.OfferData
	require.NoError(t, json.Unmarshal(expect(t, host, core.EvtReceiveOffer).Data, &offer))
	assert.Equal(t, guest.transport.ConnectionID(), offer.FromConnectionID)
	assert.Equal(t, domain.UserID("guest"), offer.FromUserID)
	assert.Equal(t, "Guest", offer.FromUsername)

	require.NoError(t, host.transport.Send(core.AnswerCmd{
		Type:   core.CmdSendAnswer,
		To:     offer.FromConnectionID,
		Answer: webrtcAnswer(),
	}))
	var answer core.AnswerData
	require.NoError(t, json.Unmarshal(expect(t, guest, core.EvtReceiveAnswer).Data, &answer))
	assert.Equal(t, hostConn, answer.FromConnectionID)

	require.NoError(t, guest.transport.Send(core.IceCandidateCmd{
		Type:      core.CmdSendIceCandidate,
		To:        hostConn,
		Candidate: iceCandidate("cand-1"),
	}))
	var cand core.IceCandidateData
	require.NoError(t, json.Unmarshal(expect(t, host, core.EvtReceiveIceCandidate).Data, &cand))
	assert.Equal(t, "cand-1", cand.Candidate.Candidate)
}

func TestMeetingWaitingRoomAdmit(t *testing.T) {
	srv, _ := newTestServer(t)

	host := newMeetClient(t, srv, "host", "Host")
	room, err := host.api.CreateRoom(context.Background(), "gated", true)
	require.NoError(t, err)
	host.joinRoom(t, room.ID, "Host")
	expect(t, host, core.EvtExistingParticipants)

	guest := newMeetClient(t, srv, "guest", "Guest")
	guest.joinRoom(t, room.ID, "Guest")

	expect(t, guest, core.EvtYouAreWaiting)
	var req domain.PendingGuest
	require.NoError(t, json.Unmarshal(expect(t, host, core.EvtGuestRequested).Data, &req))
	assert.Equal(t, domain.UserID("guest"), req.UserID)

	require.NoError(t, host.transport.Send(core.AdmissionCmd{
		Type:         core.CmdAdmitUser,
		ConnectionID: req.ConnectionID,
	}))

	var snap core.ExistingParticipantsData
	require.NoError(t, json.Unmarshal(expect(t, guest, core.EvtExistingParticipants).Data, &snap))
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, domain.UserID("host"), snap.Participants[0].UserID)
	expect(t, host, core.EvtUserJoined)
}

func TestMeetingWaitingRoomReject(t *testing.T) {
	srv, _ := newTestServer(t)

	host := newMeetClient(t, srv, "host", "Host")
	room, err := host.api.CreateRoom(context.Background(), "gated", true)
	require.NoError(t, err)
	host.joinRoom(t, room.ID, "Host")
	expect(t, host, core.EvtExistingParticipants)

	guest := newMeetClient(t, srv, "guest", "Guest")
	guest.joinRoom(t, room.ID, "Guest")
	expect(t, guest, core.EvtYouAreWaiting)

	var req domain.PendingGuest
	require.NoError(t, json.Unmarshal(expect(t, host, core.EvtGuestRequested).Data, &req))

	require.NoError(t, host.transport.Send(core.AdmissionCmd{
		Type:         core.CmdRejectUser,
		ConnectionID: req.ConnectionID,
	}))
	expect(t, guest, core.EvtYouAreRejected)
}

func TestMeetingHostLeaveEndsMeeting(t *testing.T) {
	srv, h := newTestServer(t)

	host := newMeetClient(t, srv, "host", "Host")
	room, err := host.api.CreateRoom(context.Background(), "standup", false)
	require.NoError(t, err)
	host.joinRoom(t, room.ID, "Host")
	expect(t, host, core.EvtExistingParticipants)

	guest := newMeetClient(t, srv, "guest", "Guest")
	guest.joinRoom(t, room.ID, "Guest")
	expect(t, guest, core.EvtExistingParticipants)
	expect(t, host, core.EvtUserJoined)

	require.NoError(t, host.transport.Send(core.LeaveRoomCmd{Type: core.CmdLeaveRoom, RoomID: room.ID}))

	var ended core.MeetingEndedData
	require.NoError(t, json.Unmarshal(expect(t, guest, core.EvtMeetingEnded).Data, &ended))
	assert.Equal(t, "host left", ended.Reason)
	require.Eventually(t, func() bool { return h.RoomCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestMeetingToggleAndChatFanout(t *testing.T) {
	srv, _ := newTestServer(t)

	host := newMeetClient(t, srv, "host", "Host")
	room, err := host.api.CreateRoom(context.Background(), "standup", false)
	require.NoError(t, err)
	host.joinRoom(t, room.ID, "Host")
	expect(t, host, core.EvtExistingParticipants)

	guest := newMeetClient(t, srv, "guest", "Guest")
	guest.joinRoom(t, room.ID, "Guest")
	expect(t, guest, core.EvtExistingParticipants)
	expect(t, host, core.EvtUserJoined)

	require.NoError(t, guest.transport.Send(core.ToggleCmd{Type: core.CmdToggleScreenShare, Enabled: true}))
	var toggle core.MediaToggleData
	require.NoError(t, json.Unmarshal(expect(t, host, core.EvtScreenShareToggled).Data, &toggle))
	assert.Equal(t, domain.UserID("guest"), toggle.UserID)
	assert.True(t, toggle.Enabled)

	// The snapshot reflects the flag for late resyncers.
	list, err := host.api.GetParticipants(context.Background(), room.ID)
	require.NoError(t, err)
	for _, p := range list {
		if p.UserID == "guest" {
			assert.True(t, p.ScreenSharing)
		}
	}

	require.NoError(t, host.transport.Send(core.ChatCmd{Type: core.CmdSendChat, Text: "hello"}))
	var chat core.ChatMessageData
	require.NoError(t, json.Unmarshal(expect(t, guest, core.EvtChatMessage).Data, &chat))
	assert.Equal(t, "hello", chat.Text)
	require.NoError(t, json.Unmarshal(expect(t, host, core.EvtChatMessage).Data, &chat))
	assert.Equal(t, domain.UserID("host"), chat.UserID)
}

func TestMeetingParticipantsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)

	host := newMeetClient(t, srv, "host", "Host")
	room, err := host.api.CreateRoom(context.Background(), "standup", false)
	require.NoError(t, err)
	host.joinRoom(t, room.ID, "Host")
	expect(t, host, core.EvtExistingParticipants)

	list, err := host.api.GetParticipants(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.UserID("host"), list[0].UserID)
}
