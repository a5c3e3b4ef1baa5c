package signal

import (
	"encoding/json"
	"time"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
	"github.com/vtran/meetcore/internal/hub"
)

// handleToggle patches the member's roster entry and fans the lightweight
// notification out to everyone else. No signaling follows; tracks stay put.
func (ctl *MeetingController) handleToggle(cl *client, data []byte, evt string, apply func(*hub.Member, bool)) {
	room := cl.room
	if room == nil || !cl.admitted {
		return
	}
	var p core.ToggleCmd
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl, "bad_payload")
		return
	}
	m, ok := room.SetMedia(cl.connID, func(m *hub.Member) { apply(m, p.Enabled) })
	if !ok {
		return
	}
	ctl.broadcast(room, cl.connID, struct {
		Type         string              `json:"type"`
		UserID       domain.UserID       `json:"userId"`
		ConnectionID domain.ConnectionID `json:"connectionId"`
		Enabled      bool                `json:"enabled"`
	}{evt, m.UserID, m.ConnectionID, p.Enabled})
}

// handleChat relays the line to the whole room, sender included so every
// client renders from the same stream. Nothing is stored.
func (ctl *MeetingController) handleChat(cl *client, data []byte) {
	room := cl.room
	if room == nil || !cl.admitted {
		return
	}
	var p core.ChatCmd
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl, "bad_payload")
		return
	}
	if p.Text == "" {
		return
	}
	ctl.broadcast(room, "", struct {
		Type     string        `json:"type"`
		UserID   domain.UserID `json:"userId"`
		Username string        `json:"username"`
		Text     string        `json:"text"`
		SentAt   time.Time     `json:"sentAt"`
	}{core.EvtChatMessage, cl.userID, cl.username, p.Text, time.Now().UTC()})
}
