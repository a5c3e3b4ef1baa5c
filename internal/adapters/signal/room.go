package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
	"github.com/vtran/meetcore/internal/hub"
)

// handleJoin admits, parks or reattaches the caller. The joiner always gets
// existing_participants as their admission signal; waiting guests get
// you_are_waiting and the host gets guest_requested.
func (ctl *MeetingController) handleJoin(cl *client, data []byte) {
	var p core.JoinRoomCmd
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(cl, "bad_payload")
		return
	}
	if err := domain.ValidUsername(p.Username); err != nil {
		ctl.sendError(cl, err.Error())
		return
	}

	room, ok := ctl.Hub.GetRoom(p.RoomID)
	if !ok {
		ctl.sendError(cl, "room not found")
		return
	}
	cl.userID = p.UserID
	cl.username = p.Username
	cl.room = room

	// Same user back within the grace window: rebind the socket and resend
	// the authoritative roster. Nobody else is notified; from their point of
	// view this member never left.
	if _, ok := room.Reattach(p.UserID, cl.conn); ok {
		cl.admitted = true
		ctl.sendRoster(room, cl)
		log.Info().Str("module", "signal").
			Str("room", string(room.Info().ID)).
			Str("user", string(p.UserID)).Msg("member reattached")
		return
	}

	member := &hub.Member{
		UserID:       p.UserID,
		ConnectionID: cl.connID,
		Username:     p.Username,
		MicEnabled:   p.MicEnabled,
		CamEnabled:   p.CamEnabled,
	}

	if room.Join(member, cl.conn) {
		cl.admitted = true
		ctl.sendRoster(room, cl)
		ctl.broadcast(room, cl.connID, userJoinedFrame(member))
		log.Info().Str("module", "signal").
			Str("room", string(room.Info().ID)).
			Str("user", string(p.UserID)).Msg("member joined")
		return
	}

	cl.waiting = true
	ctl.sendJSON(room, cl.connID, cl.conn, struct {
		Type string `json:"type"`
	}{core.EvtYouAreWaiting})
	if hostID, host, ok := room.HostSender(); ok {
		ctl.sendJSON(room, hostID, host, struct {
			Type         string              `json:"type"`
			ConnectionID domain.ConnectionID `json:"connectionId"`
			UserID       domain.UserID       `json:"userId"`
			Username     string              `json:"username"`
		}{core.EvtGuestRequested, cl.connID, p.UserID, p.Username})
	}
	log.Info().Str("module", "signal").
		Str("room", string(room.Info().ID)).
		Str("user", string(p.UserID)).Msg("guest waiting")
}

func (ctl *MeetingController) sendRoster(room *hub.Room, cl *client) {
	ctl.sendJSON(room, cl.connID, cl.conn, struct {
		Type         string               `json:"type"`
		Participants []domain.Participant `json:"participants"`
	}{core.EvtExistingParticipants, room.ParticipantsExcept(cl.connID)})
}

func userJoinedFrame(m *hub.Member) any {
	return struct {
		Type         string              `json:"type"`
		UserID       domain.UserID       `json:"userId"`
		ConnectionID domain.ConnectionID `json:"connectionId"`
		Username     string              `json:"username"`
		MicEnabled   bool                `json:"micEnabled"`
		CamEnabled   bool                `json:"camEnabled"`
	}{core.EvtUserJoined, m.UserID, m.ConnectionID, m.Username, m.MicEnabled, m.CamEnabled}
}

func userLeftFrame(m *hub.Member) any {
	return struct {
		Type         string              `json:"type"`
		UserID       domain.UserID       `json:"userId"`
		ConnectionID domain.ConnectionID `json:"connectionId"`
	}{core.EvtUserLeft, m.UserID, m.ConnectionID}
}

// handleLeave runs the voluntary exit. A leaving host ends the meeting for
// everyone.
func (ctl *MeetingController) handleLeave(cl *client) {
	room := cl.room
	if room == nil {
		return
	}
	cl.admitted = false
	cl.waiting = false
	cl.room = nil

	if room.IsHost(cl.userID) {
		ctl.endMeeting(room, cl.connID, "host left")
		return
	}
	if m, ok := room.Remove(cl.connID); ok {
		ctl.broadcast(room, cl.connID, userLeftFrame(m))
		log.Info().Str("module", "signal").
			Str("room", string(room.Info().ID)).
			Str("user", string(m.UserID)).Msg("member left")
	}
	if _, ok := room.RemoveWaiting(cl.connID); ok {
		ctl.notifyHostGuestGone(room, cl.connID)
	}
}

func (ctl *MeetingController) endMeeting(room *hub.Room, except domain.ConnectionID, reason string) {
	ctl.broadcast(room, except, struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{core.EvtMeetingEnded, reason})
	ctl.Hub.RemoveRoom(room.Info().ID)
	log.Info().Str("module", "signal").
		Str("room", string(room.Info().ID)).Str("reason", reason).Msg("meeting ended")
}

// handleAdmit moves a waiting guest in. Only the host may decide.
func (ctl *MeetingController) handleAdmit(cl *client, data []byte) {
	room := cl.room
	if room == nil || !room.IsHost(cl.userID) {
		ctl.sendError(cl, "not the host")
		return
	}
	var p core.AdmissionCmd
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl, "bad_payload")
		return
	}
	m, ok := room.Admit(p.ConnectionID)
	if !ok {
		// Guest already gone; admitting twice or after disconnect is a no-op.
		return
	}
	if guest, ok := room.SenderTo(m.ConnectionID); ok {
		ctl.sendJSON(room, m.ConnectionID, guest, struct {
			Type         string               `json:"type"`
			Participants []domain.Participant `json:"participants"`
		}{core.EvtExistingParticipants, room.ParticipantsExcept(m.ConnectionID)})
	}
	ctl.broadcast(room, m.ConnectionID, userJoinedFrame(m))
	log.Info().Str("module", "signal").
		Str("room", string(room.Info().ID)).
		Str("user", string(m.UserID)).Msg("guest admitted")
}

func (ctl *MeetingController) handleReject(cl *client, data []byte) {
	room := cl.room
	if room == nil || !room.IsHost(cl.userID) {
		ctl.sendError(cl, "not the host")
		return
	}
	var p core.AdmissionCmd
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl, "bad_payload")
		return
	}
	m, ok := room.RemoveWaiting(p.ConnectionID)
	if !ok {
		return
	}
	// The guest is not a member, so route by the socket captured at join time.
	if s := m.Sender(); s != nil {
		ctl.sendJSON(room, m.ConnectionID, s, struct {
			Type string `json:"type"`
		}{core.EvtYouAreRejected})
	}
	log.Info().Str("module", "signal").
		Str("room", string(room.Info().ID)).
		Str("user", string(m.UserID)).Msg("guest rejected")
}

// handleDisconnect runs when the socket dies without a leave command. An
// admitted member gets a grace window before user_left goes out; a waiting
// guest is pruned immediately so the host's queue stays clean. The token
// mapping is released as soon as no reattach can use it.
func (ctl *MeetingController) handleDisconnect(cl *client) {
	room := cl.room
	if room == nil {
		ctl.Hub.Release(cl.connID)
		return
	}

	if cl.waiting {
		if _, ok := room.RemoveWaiting(cl.connID); ok {
			ctl.notifyHostGuestGone(room, cl.connID)
		}
		ctl.Hub.Release(cl.connID)
		return
	}
	if !cl.admitted {
		ctl.Hub.Release(cl.connID)
		return
	}
	if !room.Detach(cl.connID) {
		ctl.Hub.Release(cl.connID)
		return
	}

	connID := cl.connID
	userID := cl.userID
	time.AfterFunc(ctl.Grace, func() {
		m, ok := room.RemoveIfDetached(connID)
		if !ok {
			return
		}
		ctl.Hub.Release(connID)
		ctl.broadcast(room, connID, userLeftFrame(m))
		log.Info().Str("module", "signal").
			Str("room", string(room.Info().ID)).
			Str("user", string(userID)).Msg("member expired")
		if room.IsHost(userID) {
			ctl.endMeeting(room, connID, "host disconnected")
		}
	})
}

// notifyHostGuestGone reuses user_left so the host's pending queue prunes by
// connection id.
func (ctl *MeetingController) notifyHostGuestGone(room *hub.Room, connID domain.ConnectionID) {
	if hostID, host, ok := room.HostSender(); ok {
		ctl.sendJSON(room, hostID, host, struct {
			Type         string              `json:"type"`
			UserID       domain.UserID       `json:"userId"`
			ConnectionID domain.ConnectionID `json:"connectionId"`
		}{core.EvtUserLeft, "", connID})
	}
}
