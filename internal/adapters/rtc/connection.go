package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/core"
)

// Factory builds pion-backed peer connections from the configured ICE servers.
type Factory struct {
	cfg webrtc.Configuration
}

var _ core.PeerFactory = (*Factory)(nil)

func NewFactory(iceServers []string) *Factory {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return &Factory{cfg: webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}}
}

func (f *Factory) NewPeerConnection() (core.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc}
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})
	return c, nil
}

// Connection wraps one webrtc.PeerConnection. The SDP exchange runs trickle
// ICE: descriptions go out immediately, candidates follow via OnICECandidate.
type Connection struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	senders []*webrtc.RTPSender
}

var _ core.PeerConnection = (*Connection)(nil)

func (c *Connection) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders = append(c.senders, sender)
	c.mu.Unlock()
	return nil
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) ApplyOfferCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

// ReplaceVideoTrack swaps the outgoing video source on the existing sender.
// No SDP or ICE state is touched.
func (c *Connection) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	senders := append([]*webrtc.RTPSender(nil), c.senders...)
	c.mu.Unlock()

	for _, s := range senders {
		t := s.Track()
		if t != nil && t.Kind() == webrtc.RTPCodecTypeVideo {
			return s.ReplaceTrack(track)
		}
	}
	// No video sender yet (audio-only start): attach as a new track instead.
	return c.AddTrack(track)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	return c.pc.Close()
}
