package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

// The hub never inspects SDP or ICE payloads; it stamps the sender identity
// and forwards to the addressed connection. Frames to unknown targets are
// dropped, not errored: the target may have just left.

func (ctl *MeetingController) handleOffer(cl *client, data []byte) {
	var p core.OfferCmd
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl, "bad_payload")
		return
	}
	ctl.route(cl, p.To, struct {
		Type             string                    `json:"type"`
		FromConnectionID domain.ConnectionID       `json:"fromConnectionId"`
		FromUserID       domain.UserID             `json:"fromUserId"`
		FromUsername     string                    `json:"fromUsername"`
		Offer            webrtc.SessionDescription `json:"offer"`
	}{core.EvtReceiveOffer, cl.connID, cl.userID, cl.username, p.Offer})
}

func (ctl *MeetingController) handleAnswer(cl *client, data []byte) {
	var p core.AnswerCmd
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl, "bad_payload")
		return
	}
	ctl.route(cl, p.To, struct {
		Type             string                    `json:"type"`
		FromConnectionID domain.ConnectionID       `json:"fromConnectionId"`
		FromUserID       domain.UserID             `json:"fromUserId"`
		Answer           webrtc.SessionDescription `json:"answer"`
	}{core.EvtReceiveAnswer, cl.connID, cl.userID, p.Answer})
}

func (ctl *MeetingController) handleCandidate(cl *client, data []byte) {
	var p core.IceCandidateCmd
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl, "bad_payload")
		return
	}
	ctl.route(cl, p.To, struct {
		Type             string                  `json:"type"`
		FromConnectionID domain.ConnectionID     `json:"fromConnectionId"`
		Candidate        webrtc.ICECandidateInit `json:"candidate"`
	}{core.EvtReceiveIceCandidate, cl.connID, p.Candidate})
}

func (ctl *MeetingController) route(cl *client, to domain.ConnectionID, v any) {
	room := cl.room
	if room == nil || !cl.admitted {
		return
	}
	target, ok := room.SenderTo(to)
	if !ok {
		log.Debug().Str("module", "signal").
			Str("to", string(to)).Msg("route target gone")
		return
	}
	ctl.sendJSON(room, to, target, v)
}
