package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/vtran/meetcore/internal/domain"
)

// Wire format: every frame is a flat JSON object carrying a "type" field.
// The SDP and ICE payloads are opaque to everything except the peer engine;
// the hub forwards them without looking inside.

// Commands (client → hub).
const (
	CmdJoinRoom          = "join_room"
	CmdLeaveRoom         = "leave_room"
	CmdSendOffer         = "send_offer"
	CmdSendAnswer        = "send_answer"
	CmdSendIceCandidate  = "send_ice_candidate"
	CmdToggleCamera      = "toggle_camera"
	CmdToggleMicrophone  = "toggle_microphone"
	CmdToggleScreenShare = "toggle_screen_share"
	CmdAdmitUser         = "admit_user"
	CmdRejectUser        = "reject_user"
	CmdSendChat          = "send_chat"
)

// Events (hub → client).
const (
	// EvtConnected is the per-epoch welcome carrying the assigned connectionId.
	// Consumed by the transport, never forwarded to the session.
	EvtConnected = "connected"

	EvtExistingParticipants = "existing_participants"
	EvtUserJoined           = "user_joined"
	EvtUserLeft             = "user_left"
	EvtReceiveOffer         = "receive_offer"
	EvtReceiveAnswer        = "receive_answer"
	EvtReceiveIceCandidate  = "receive_ice_candidate"
	EvtCameraToggled        = "camera_toggled"
	EvtMicrophoneToggled    = "microphone_toggled"
	EvtScreenShareToggled   = "screen_share_toggled"
	EvtYouAreWaiting        = "you_are_waiting"
	EvtGuestRequested       = "guest_requested"
	EvtYouAreRejected       = "you_are_rejected"
	EvtMeetingEnded         = "meeting_ended"
	EvtChatMessage          = "chat_message"
	EvtError                = "error"
)

// Event is one inbound frame, payload still raw. The transport delivers these
// in arrival order per connection epoch.
type Event struct {
	Type string
	Data json.RawMessage
}

// DecodeEvent peeks the envelope type and keeps the rest opaque.
func DecodeEvent(data []byte) (Event, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("frame without type")
	}
	return Event{Type: env.Type, Data: json.RawMessage(data)}, nil
}

// ── command payloads ──

type JoinRoomCmd struct {
	Type       string        `json:"type"`
	RoomID     domain.RoomID `json:"roomId"`
	UserID     domain.UserID `json:"userId"`
	Username   string        `json:"username"`
	MicEnabled bool          `json:"micEnabled"`
	CamEnabled bool          `json:"camEnabled"`
}

type LeaveRoomCmd struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type OfferCmd struct {
	Type  string                    `json:"type"`
	To    domain.ConnectionID       `json:"toConnectionId"`
	Offer webrtc.SessionDescription `json:"offer"`
}

type AnswerCmd struct {
	Type   string                    `json:"type"`
	To     domain.ConnectionID       `json:"toConnectionId"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type IceCandidateCmd struct {
	Type      string                  `json:"type"`
	To        domain.ConnectionID     `json:"toConnectionId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type ToggleCmd struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type AdmissionCmd struct {
	Type         string              `json:"type"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type ChatCmd struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ── event payloads ──

type ExistingParticipantsData struct {
	Participants []domain.Participant `json:"participants"`
}

type UserJoinData struct {
	UserID       domain.UserID       `json:"userId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Username     string              `json:"username"`
	MicEnabled   bool                `json:"micEnabled"`
	CamEnabled   bool                `json:"camEnabled"`
}

type UserLeftData struct {
	UserID       domain.UserID       `json:"userId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type OfferData struct {
	FromConnectionID domain.ConnectionID       `json:"fromConnectionId"`
	FromUserID       domain.UserID             `json:"fromUserId"`
	FromUsername     string                    `json:"fromUsername"`
	Offer            webrtc.SessionDescription `json:"offer"`
}

type AnswerData struct {
	FromConnectionID domain.ConnectionID       `json:"fromConnectionId"`
	FromUserID       domain.UserID             `json:"fromUserId"`
	Answer           webrtc.SessionDescription `json:"answer"`
}

type IceCandidateData struct {
	FromConnectionID domain.ConnectionID     `json:"fromConnectionId"`
	Candidate        webrtc.ICECandidateInit `json:"candidate"`
}

type MediaToggleData struct {
	UserID       domain.UserID       `json:"userId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Enabled      bool                `json:"enabled"`
}

type MeetingEndedData struct {
	Reason string `json:"reason"`
}

type ChatMessageData struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Text     string        `json:"text"`
	SentAt   time.Time     `json:"sentAt"`
}

type ErrorData struct {
	Error string `json:"error"`
}
