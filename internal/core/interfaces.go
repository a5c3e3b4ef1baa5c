package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/vtran/meetcore/internal/domain"
)

// SignalTransport is the bidirectional message channel to the meeting
// coordination service. Owned by the adapter; delivery is ordered within one
// connection epoch with no cross-epoch guarantee; the session re-issues
// state after a reconnect.
type SignalTransport interface {
	// Connect dials and starts the pumps. Returns ErrAuth on bad credentials.
	Connect(ctx context.Context) error
	// Send marshals v and queues it, fire-and-forget, ordered per epoch.
	Send(v any) error
	// Events delivers inbound frames in arrival order.
	Events() <-chan Event
	// Reconnects signals each new connection epoch after an unexpected drop.
	Reconnects() <-chan int
	// ConnectionID of the current epoch, empty while disconnected.
	ConnectionID() domain.ConnectionID
	// Close disconnects intentionally and suppresses auto-reconnect.
	Close()
}

// JoinRoomResult is the typed payload of the room-state service join calls.
type JoinRoomResult struct {
	Room domain.Room `json:"room"`
	Role domain.Role `json:"role"`
}

// RoomAPI is the consumed REST surface of the excluded room-state layer.
type RoomAPI interface {
	CreateRoom(ctx context.Context, name string, waitingRoom bool) (domain.Room, error)
	JoinRoomByID(ctx context.Context, id domain.RoomID) (JoinRoomResult, error)
	JoinRoomByKey(ctx context.Context, key domain.RoomKey) (JoinRoomResult, error)
	LeaveRoom(ctx context.Context, id domain.RoomID) error
	// GetParticipants is the authoritative snapshot used for post-reconnect resync.
	GetParticipants(ctx context.Context, id domain.RoomID) ([]domain.Participant, error)
}

// PeerConnection is one logical media connection to one remote participant.
// Descriptions and candidates pass through as opaque engine values.
type PeerConnection interface {
	// AddTrack attaches a local track. Must happen before offer creation.
	AddTrack(track webrtc.TrackLocal) error
	// CreateOffer generates and stores the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOfferCreateAnswer sets the remote offer and answers it.
	ApplyOfferCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer completes the exchange on the offering side.
	ApplyAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	// ReplaceVideoTrack swaps the outgoing video source without renegotiation.
	ReplaceVideoTrack(track webrtc.TrackLocal) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnStateChange(fn func(webrtc.PeerConnectionState))
	Close() error
}

// PeerFactory builds engine connections; swapped for a fake in tests.
type PeerFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

// LocalMedia hands out the currently-available local tracks and their mute
// flags. Capture and compositing live outside the core.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	MicEnabled() bool
	CamEnabled() bool
	ScreenSharing() bool
	SetMicEnabled(enabled bool)
	SetCamEnabled(enabled bool)
	// AcquireCamera makes a video track available after an audio-only start.
	// Idempotent: returns the existing track if one was already acquired.
	AcquireCamera() (webrtc.TrackLocal, error)
	// StartScreenShare returns the composited track to install on every link.
	StartScreenShare() (webrtc.TrackLocal, error)
	// StopScreenShare reverts; returns the plain camera track, nil if none.
	StopScreenShare() (webrtc.TrackLocal, error)
}
