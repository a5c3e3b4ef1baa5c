package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/app/roster"
	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

// handleEvent dispatches one hub frame. Loop-only.
func (s *Session) handleEvent(evt core.Event) {
	switch evt.Type {
	case core.EvtExistingParticipants:
		var d core.ExistingParticipantsData
		if !s.decode(evt, &d) {
			return
		}
		s.handleSnapshot(d.Participants)

	case core.EvtUserJoined:
		var d core.UserJoinData
		if !s.decode(evt, &d) {
			return
		}
		s.handleUserJoined(d)

	case core.EvtUserLeft:
		var d core.UserLeftData
		if !s.decode(evt, &d) {
			return
		}
		s.handleUserLeft(d)

	case core.EvtReceiveOffer:
		var d core.OfferData
		if !s.decode(evt, &d) {
			return
		}
		if s.State() == core.StateAdmitted {
			s.peers.HandleOffer(d)
		}

	case core.EvtReceiveAnswer:
		var d core.AnswerData
		if !s.decode(evt, &d) {
			return
		}
		if s.State() == core.StateAdmitted {
			s.peers.HandleAnswer(d)
		}

	case core.EvtReceiveIceCandidate:
		var d core.IceCandidateData
		if !s.decode(evt, &d) {
			return
		}
		if s.State() == core.StateAdmitted {
			s.peers.HandleCandidate(d)
		}

	case core.EvtMicrophoneToggled:
		s.handleMediaToggle(evt, func(on bool) roster.MediaUpdate { return roster.MediaUpdate{Mic: &on} })

	case core.EvtCameraToggled:
		s.handleMediaToggle(evt, func(on bool) roster.MediaUpdate { return roster.MediaUpdate{Cam: &on} })

	case core.EvtScreenShareToggled:
		s.handleMediaToggle(evt, func(on bool) roster.MediaUpdate { return roster.MediaUpdate{Screen: &on} })

	case core.EvtYouAreWaiting:
		if s.attempt != nil {
			s.attempt.ResolveWaiting()
		}

	case core.EvtYouAreRejected:
		if s.attempt != nil {
			s.attempt.ResolveRejected()
			return
		}
		// Decision arrived after the waiting phase was reported to the caller.
		if s.State() == core.StateAwaitingAdmission {
			s.setState(core.StateIdle)
			s.notify(core.Notification{Kind: core.NotifyYouAreRejected})
		}

	case core.EvtGuestRequested:
		var d domain.PendingGuest
		if !s.decode(evt, &d) {
			return
		}
		if s.pending.Add(d) {
			s.notify(core.Notification{Kind: core.NotifyGuestRequested, Guest: &d})
		}

	case core.EvtMeetingEnded:
		var d core.MeetingEndedData
		s.decode(evt, &d)
		s.handleMeetingEnded(d.Reason)

	case core.EvtChatMessage:
		var d core.ChatMessageData
		if !s.decode(evt, &d) {
			return
		}
		s.notify(core.Notification{Kind: core.NotifyChat, Chat: &d})

	case core.EvtError:
		var d core.ErrorData
		s.decode(evt, &d)
		s.notify(core.Notification{Kind: core.NotifyError, Err: &core.SignalingError{Op: "hub", Err: hubError(d.Error)}})

	default:
		log.Debug().Str("module", "session").Str("type", evt.Type).Msg("unhandled event")
	}
}

func (s *Session) decode(evt core.Event, v any) bool {
	if err := json.Unmarshal(evt.Data, v); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("type", evt.Type).Msg("bad payload")
		return false
	}
	return true
}

// handleSnapshot covers both the admission outcome and later authoritative
// refreshes. During a pending join it resolves the attempt; once admitted it
// reconciles, connecting to newly discovered peers as the non-offering side.
func (s *Session) handleSnapshot(list []domain.Participant) {
	if s.attempt != nil {
		s.attempt.ResolveAdmitted(list)
		return
	}
	switch s.State() {
	case core.StateAwaitingAdmission:
		// Host admitted us after the caller already got the waiting result.
		s.applyAdmission(list)
	case core.StateAdmitted:
		s.reconcile(list)
	}
}

func (s *Session) reconcile(list []domain.Participant) {
	diff := s.roster.ApplySnapshot(list)
	for _, p := range diff.Left {
		s.peers.Remove(p.ConnectionID)
	}
	for _, p := range diff.Joined {
		s.peers.EnsureLink(p.ConnectionID, p.UserID, p.Username, false)
	}
	if len(diff.Joined) > 0 || len(diff.Left) > 0 {
		s.notify(core.Notification{Kind: core.NotifyRosterChanged, Roster: s.roster.Snapshot()})
	}
}

// handleUserJoined applies the delta and waits for the joiner's offer; the
// joining side always initiates.
func (s *Session) handleUserJoined(d core.UserJoinData) {
	if s.State() != core.StateAdmitted {
		return
	}
	p := domain.Participant{
		UserID:       d.UserID,
		ConnectionID: d.ConnectionID,
		Username:     d.Username,
		MicEnabled:   d.MicEnabled,
		CamEnabled:   d.CamEnabled,
	}
	isNew := s.roster.ApplyJoin(p)
	s.peers.EnsureLink(p.ConnectionID, p.UserID, p.Username, false)
	if isNew {
		s.notify(core.Notification{Kind: core.NotifyUserJoined, Participant: &p})
	}
	s.notify(core.Notification{Kind: core.NotifyRosterChanged, Roster: s.roster.Snapshot()})
}

func (s *Session) handleUserLeft(d core.UserLeftData) {
	s.peers.Remove(d.ConnectionID)
	s.pending.Remove(d.ConnectionID)
	p, ok := s.roster.ApplyLeave(d.UserID)
	if !ok {
		return
	}
	s.notify(core.Notification{Kind: core.NotifyUserLeft, Participant: &p})
	s.notify(core.Notification{Kind: core.NotifyRosterChanged, Roster: s.roster.Snapshot()})
}

func (s *Session) handleMediaToggle(evt core.Event, upd func(bool) roster.MediaUpdate) {
	var d core.MediaToggleData
	if !s.decode(evt, &d) {
		return
	}
	if s.roster.ApplyMediaUpdate(d.UserID, upd(d.Enabled)) {
		s.notify(core.Notification{Kind: core.NotifyRosterChanged, Roster: s.roster.Snapshot()})
	}
}

// handleMeetingEnded tears everything down; the room is gone, so there is no
// leave protocol to run.
func (s *Session) handleMeetingEnded(reason string) {
	s.peers.RemoveAll()
	s.roster = roster.New(s.userID)
	s.pending.Clear()
	s.room = domain.Room{}
	s.setState(core.StateIdle)
	s.notify(core.Notification{Kind: core.NotifyMeetingEnded, Reason: reason})
}

// handleReconnect runs roster resync after the transport re-established
// itself: re-fetch the authoritative snapshot over REST, reconcile, and
// rejoin the room's signaling group. Media paths of still-present peers are
// untouched; links that failed during the outage surface through the engine
// state callback and are removed, not retried.
func (s *Session) handleReconnect(epoch int) {
	if s.State() != core.StateAdmitted || s.room.ID == "" {
		return
	}
	roomID := s.room.ID
	log.Info().Str("module", "session").Int("epoch", epoch).Msg("resync started")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snapshot, err := s.api.GetParticipants(ctx, roomID)
		if err != nil {
			log.Error().Err(err).Str("module", "session").Msg("resync snapshot")
			s.post(func() {
				s.notify(core.Notification{Kind: core.NotifyError, Err: &core.SignalingError{Op: "resync", Err: err}})
			})
			return
		}
		s.post(func() {
			if s.State() != core.StateAdmitted || s.room.ID != roomID {
				return
			}
			s.reconcile(snapshot)
			err := s.transport.Send(core.JoinRoomCmd{
				Type:       core.CmdJoinRoom,
				RoomID:     roomID,
				UserID:     s.userID,
				Username:   s.username,
				MicEnabled: s.media.MicEnabled(),
				CamEnabled: s.media.CamEnabled(),
			})
			if err != nil {
				log.Error().Err(err).Str("module", "session").Msg("resync rejoin")
			}
		})
	}()
}

type hubError string

func (e hubError) Error() string { return string(e) }
