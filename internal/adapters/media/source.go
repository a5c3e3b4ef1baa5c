// Package media hands out the local outgoing tracks and their mute flags.
// Capture devices and screen compositing are outside the core; this source
// only owns track identity, so toggles never disturb negotiated state.
package media

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/core"
)

type Source struct {
	mu       sync.Mutex
	streamID string

	audio  *webrtc.TrackLocalStaticSample
	camera *webrtc.TrackLocalStaticSample
	screen *webrtc.TrackLocalStaticSample

	micEnabled bool
	camEnabled bool
	sharing    bool
}

var _ core.LocalMedia = (*Source)(nil)

// NewSource creates tracks for the devices granted at start. Either flag may
// be false for an audio-only or listen-only start.
func NewSource(withAudio, withVideo bool) (*Source, error) {
	s := &Source{
		streamID:   uuid.NewString(),
		micEnabled: withAudio,
		camEnabled: withVideo,
	}
	if withAudio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", s.streamID,
		)
		if err != nil {
			return nil, err
		}
		s.audio = track
	}
	if withVideo {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"camera", s.streamID,
		)
		if err != nil {
			return nil, err
		}
		s.camera = track
	}
	return s, nil
}

// Tracks returns everything currently available, the outgoing video being the
// screen composite while sharing.
func (s *Source) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webrtc.TrackLocal, 0, 2)
	if s.audio != nil {
		out = append(out, s.audio)
	}
	if s.sharing && s.screen != nil {
		out = append(out, s.screen)
	} else if s.camera != nil {
		out = append(out, s.camera)
	}
	return out
}

func (s *Source) MicEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micEnabled
}

func (s *Source) CamEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camEnabled
}

func (s *Source) ScreenSharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharing
}

func (s *Source) SetMicEnabled(enabled bool) {
	s.mu.Lock()
	s.micEnabled = enabled
	s.mu.Unlock()
	log.Debug().Str("module", "media").Bool("enabled", enabled).Msg("mic flag")
}

func (s *Source) SetCamEnabled(enabled bool) {
	s.mu.Lock()
	s.camEnabled = enabled
	s.mu.Unlock()
	log.Debug().Str("module", "media").Bool("enabled", enabled).Msg("cam flag")
}

// AcquireCamera creates the video track on first grant. Idempotent.
func (s *Source) AcquireCamera() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.camera != nil {
		return s.camera, nil
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"camera", s.streamID,
	)
	if err != nil {
		return nil, err
	}
	s.camera = track
	s.camEnabled = true
	log.Info().Str("module", "media").Msg("camera acquired")
	return track, nil
}

// StartScreenShare returns the composited screen track to install on every
// open link. Idempotent while already sharing.
func (s *Source) StartScreenShare() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sharing && s.screen != nil {
		return s.screen, nil
	}
	if s.screen == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"screen", s.streamID,
		)
		if err != nil {
			return nil, err
		}
		s.screen = track
	}
	s.sharing = true
	log.Info().Str("module", "media").Msg("screen share started")
	return s.screen, nil
}

// StopScreenShare reverts to the plain camera track; nil if none acquired.
func (s *Source) StopScreenShare() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sharing {
		if s.camera != nil {
			return s.camera, nil
		}
		return nil, nil
	}
	s.sharing = false
	log.Info().Str("module", "media").Msg("screen share stopped")
	if s.camera != nil {
		return s.camera, nil
	}
	return nil, nil
}
