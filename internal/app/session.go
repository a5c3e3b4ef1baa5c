// Package app hosts the session coordinator: one Session per room membership
// attempt, owning its Room, roster and peer links. No module-level state.
package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/app/admission"
	"github.com/vtran/meetcore/internal/app/peers"
	"github.com/vtran/meetcore/internal/app/roster"
	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

var (
	ErrSessionActive = errors.New("session already in a room")
	ErrNoRoom        = errors.New("no active room")
)

type Options struct {
	AdmissionTimeout time.Duration
}

// JoinResult is what the UI gets back from a join operation. Waiting means
// the host has not decided yet; the admitted roster arrives later via the
// notification channel.
type JoinResult struct {
	Room    domain.Room
	Role    domain.Role
	Waiting bool
	Roster  []domain.Participant
}

// Session ties transport, admission, roster and peer orchestration together.
// All roster and link mutations run on its single event loop, so readers
// never observe half-applied state. A Session covers one membership attempt
// cycle: construct, join (retries allowed after timeout), leave, discard.
type Session struct {
	userID   domain.UserID
	username string
	opts     Options

	transport core.SignalTransport
	api       core.RoomAPI
	media     core.LocalMedia

	peers   *peers.Orchestrator
	roster  *roster.Roster
	pending *admission.PendingGuests

	// Loop-owned.
	room      domain.Room
	role      domain.Role
	attempt   *admission.Attempt
	eventsCh  <-chan core.Event
	reconnCh  <-chan int
	connected bool

	state atomic.Int32

	ops   chan func()
	notes chan core.Notification
	done  chan struct{}
}

func NewSession(
	userID domain.UserID,
	username string,
	transport core.SignalTransport,
	api core.RoomAPI,
	factory core.PeerFactory,
	media core.LocalMedia,
	opts Options,
) *Session {
	if opts.AdmissionTimeout <= 0 {
		opts.AdmissionTimeout = 5 * time.Second
	}
	s := &Session{
		userID:    userID,
		username:  username,
		opts:      opts,
		transport: transport,
		api:       api,
		media:     media,
		roster:    roster.New(userID),
		pending:   admission.NewPendingGuests(),
		ops:       make(chan func(), 128),
		notes:     make(chan core.Notification, 64),
		done:      make(chan struct{}),
	}
	s.peers = peers.NewOrchestrator(
		factory,
		media,
		transport.Send,
		s.onSignalingError,
		s.onLinkClosed,
	)
	go s.run()
	return s
}

// run is the serialized event loop. Nothing outside it mutates the roster or
// the link set.
func (s *Session) run() {
	for {
		select {
		case op := <-s.ops:
			op()
		case evt, ok := <-s.eventsCh:
			if !ok {
				s.eventsCh = nil
				continue
			}
			s.handleEvent(evt)
		case epoch := <-s.reconnCh:
			s.handleReconnect(epoch)
		case <-s.done:
			return
		}
	}
}

// post queues work onto the loop without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.done:
	}
}

// call runs fn on the loop and waits. Never call from the loop itself.
func (s *Session) call(fn func()) {
	ack := make(chan struct{})
	s.post(func() {
		fn()
		close(ack)
	})
	select {
	case <-ack:
	case <-s.done:
	}
}

func (s *Session) State() core.SessionState {
	return core.SessionState(s.state.Load())
}

func (s *Session) setState(st core.SessionState) {
	old := core.SessionState(s.state.Swap(int32(st)))
	if old != st {
		log.Info().Str("module", "session").
			Str("from", old.String()).Str("to", st.String()).Msg("state")
	}
}

// casState transitions only from the expected state, so concurrent callers
// racing for the same transition get exactly one winner.
func (s *Session) casState(from, to core.SessionState) bool {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	log.Info().Str("module", "session").
		Str("from", from.String()).Str("to", to.String()).Msg("state")
	return true
}

// Notifications is the asynchronous channel to the UI layer.
func (s *Session) Notifications() <-chan core.Notification { return s.notes }

// Roster returns a transactional copy for UI readers.
func (s *Session) Roster() []domain.Participant {
	var snap []domain.Participant
	s.call(func() { snap = s.roster.Snapshot() })
	return snap
}

// PendingGuests lists guests awaiting the host's decision.
func (s *Session) PendingGuests() []domain.PendingGuest { return s.pending.List() }

func (s *Session) Room() domain.Room {
	var room domain.Room
	s.call(func() { room = s.room })
	return room
}

func (s *Session) notify(n core.Notification) {
	select {
	case s.notes <- n:
	default:
		log.Warn().Str("module", "session").Str("kind", string(n.Kind)).Msg("notification dropped")
	}
}

// ── join operations ──

// JoinByID joins an existing room by its id.
func (s *Session) JoinByID(ctx context.Context, roomID domain.RoomID) (JoinResult, error) {
	return s.join(ctx, func(ctx context.Context) (core.JoinRoomResult, error) {
		return s.api.JoinRoomByID(ctx, roomID)
	})
}

// JoinByKey joins an existing room by its shareable key.
func (s *Session) JoinByKey(ctx context.Context, key domain.RoomKey) (JoinResult, error) {
	return s.join(ctx, func(ctx context.Context) (core.JoinRoomResult, error) {
		return s.api.JoinRoomByKey(ctx, key)
	})
}

// JoinAsHost creates a room and enters it. The host bypasses admission
// gating, the hub admits the creator immediately, so the outcome race here
// only waits for the initial (empty) roster snapshot.
func (s *Session) JoinAsHost(ctx context.Context, name string, waitingRoom bool) (JoinResult, error) {
	return s.join(ctx, func(ctx context.Context) (core.JoinRoomResult, error) {
		room, err := s.api.CreateRoom(ctx, name, waitingRoom)
		if err != nil {
			return core.JoinRoomResult{}, err
		}
		return core.JoinRoomResult{Room: room, Role: domain.RoleHost}, nil
	})
}

func (s *Session) join(ctx context.Context, resolve func(context.Context) (core.JoinRoomResult, error)) (JoinResult, error) {
	if !s.casState(core.StateIdle, core.StateConnecting) {
		return JoinResult{}, ErrSessionActive
	}

	res, err := resolve(ctx)
	if err != nil {
		s.setState(core.StateIdle)
		return JoinResult{}, err
	}

	if err := s.ensureTransport(ctx); err != nil {
		s.setState(core.StateIdle)
		return JoinResult{}, err
	}

	attempt := admission.NewAttempt()
	s.call(func() {
		s.room = res.Room
		s.role = res.Role
		s.attempt = attempt
		s.setState(core.StateAwaitingAdmission)
	})

	// Deregister the one-shot listeners on every exit path: success,
	// rejection, timeout, cancellation.
	deregister := func() {
		s.call(func() {
			if s.attempt == attempt {
				s.attempt = nil
			}
		})
	}

	err = s.transport.Send(core.JoinRoomCmd{
		Type:       core.CmdJoinRoom,
		RoomID:     res.Room.ID,
		UserID:     s.userID,
		Username:   s.username,
		MicEnabled: s.media.MicEnabled(),
		CamEnabled: s.media.CamEnabled(),
	})
	if err != nil {
		deregister()
		s.setState(core.StateIdle)
		return JoinResult{}, err
	}

	decision, err := attempt.Await(ctx, s.opts.AdmissionTimeout)
	deregister()
	if err != nil {
		// No connection state is assumed; the caller decides on retry.
		s.call(func() {
			s.peers.RemoveAll()
			s.setState(core.StateIdle)
		})
		return JoinResult{}, err
	}

	switch decision.Outcome {
	case admission.OutcomeAdmitted:
		var snap []domain.Participant
		s.call(func() {
			s.applyAdmission(decision.Snapshot)
			snap = s.roster.Snapshot()
		})
		return JoinResult{Room: res.Room, Role: res.Role, Roster: snap}, nil
	case admission.OutcomeWaiting:
		// Still AwaitingAdmission; the host's decision arrives as an event.
		s.notify(core.Notification{Kind: core.NotifyYouAreWaiting})
		return JoinResult{Room: res.Room, Role: res.Role, Waiting: true}, nil
	default:
		s.setState(core.StateIdle)
		return JoinResult{}, core.ErrRejected
	}
}

func (s *Session) ensureTransport(ctx context.Context) error {
	var already bool
	s.call(func() { already = s.connected })
	if already {
		return nil
	}
	if err := s.transport.Connect(ctx); err != nil {
		return err
	}
	s.call(func() {
		s.connected = true
		s.eventsCh = s.transport.Events()
		s.reconnCh = s.transport.Reconnects()
	})
	return nil
}

// applyAdmission populates the roster from the snapshot and, as the joiner,
// initiates one offer per existing participant. Loop-only.
func (s *Session) applyAdmission(snapshot []domain.Participant) {
	s.setState(core.StateAdmitted)
	s.roster.ApplySnapshot(snapshot)
	for _, p := range s.roster.Snapshot() {
		s.peers.EnsureLink(p.ConnectionID, p.UserID, p.Username, true)
	}
	s.notify(core.Notification{Kind: core.NotifyRosterChanged, Roster: s.roster.Snapshot()})
}

// ── leave / admission commands ──

// Leave exits the room and finalizes the session. The transport close is
// intentional, so no reconnect or resync follows.
func (s *Session) Leave(ctx context.Context) error {
	st := s.State()
	if st != core.StateAdmitted && st != core.StateAwaitingAdmission {
		return ErrNoRoom
	}
	s.setState(core.StateLeaving)

	var roomID domain.RoomID
	s.call(func() { roomID = s.room.ID })
	if err := s.transport.Send(core.LeaveRoomCmd{Type: core.CmdLeaveRoom, RoomID: roomID}); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("leave command")
	}
	if err := s.api.LeaveRoom(ctx, roomID); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("leave room api")
	}

	s.call(func() {
		s.peers.RemoveAll()
		s.roster = roster.New(s.userID)
		s.pending.Clear()
		s.room = domain.Room{}
		s.setState(core.StateIdle)
	})
	s.transport.Close()
	return nil
}

// Close stops the loop and the transport without the leave protocol; for
// process shutdown.
func (s *Session) Close() {
	s.transport.Close()
	close(s.done)
}

// AdmitGuest removes the guest locally right away and sends the admit
// command; the authoritative admission happens on the guest's side.
func (s *Session) AdmitGuest(connID domain.ConnectionID) error {
	if s.currentRole() != domain.RoleHost {
		return ErrNoRoom
	}
	s.pending.Remove(connID)
	return s.transport.Send(core.AdmissionCmd{Type: core.CmdAdmitUser, ConnectionID: connID})
}

// RejectGuest mirrors AdmitGuest with the opposite decision.
func (s *Session) RejectGuest(connID domain.ConnectionID) error {
	if s.currentRole() != domain.RoleHost {
		return ErrNoRoom
	}
	s.pending.Remove(connID)
	return s.transport.Send(core.AdmissionCmd{Type: core.CmdRejectUser, ConnectionID: connID})
}

func (s *Session) currentRole() domain.Role {
	var role domain.Role
	s.call(func() { role = s.role })
	return role
}

// ── media operations ──

// ToggleMicrophone flips the flag on the existing track and broadcasts a
// lightweight notification. No renegotiation, no link churn.
func (s *Session) ToggleMicrophone(enabled bool) error {
	if s.State() != core.StateAdmitted {
		return core.ErrNotConnected
	}
	s.media.SetMicEnabled(enabled)
	return s.transport.Send(core.ToggleCmd{Type: core.CmdToggleMicrophone, Enabled: enabled})
}

// ToggleCamera flips the camera flag; a first-time enable acquires the
// device and installs the track on every open link via track replacement.
func (s *Session) ToggleCamera(enabled bool) error {
	if s.State() != core.StateAdmitted {
		return core.ErrNotConnected
	}
	s.media.SetCamEnabled(enabled)
	if enabled {
		track, err := s.media.AcquireCamera()
		if err != nil {
			return err
		}
		if !s.media.ScreenSharing() {
			s.call(func() { s.peers.ReplaceVideoTrack(track) })
		}
	}
	return s.transport.Send(core.ToggleCmd{Type: core.CmdToggleCamera, Enabled: enabled})
}

// ToggleScreenShare swaps the outgoing video between the composited screen
// track and the plain camera on every open link, without renegotiation.
func (s *Session) ToggleScreenShare(enabled bool) error {
	if s.State() != core.StateAdmitted {
		return core.ErrNotConnected
	}
	if enabled {
		track, err := s.media.StartScreenShare()
		if err != nil {
			return err
		}
		s.call(func() { s.peers.ReplaceVideoTrack(track) })
	} else {
		track, err := s.media.StopScreenShare()
		if err != nil {
			return err
		}
		if track != nil {
			s.call(func() { s.peers.ReplaceVideoTrack(track) })
		}
	}
	return s.transport.Send(core.ToggleCmd{Type: core.CmdToggleScreenShare, Enabled: enabled})
}

// SendChat relays a chat line through the hub; no persistence.
func (s *Session) SendChat(text string) error {
	if s.State() != core.StateAdmitted {
		return core.ErrNotConnected
	}
	return s.transport.Send(core.ChatCmd{Type: core.CmdSendChat, Text: text})
}

// ── orchestrator callbacks (arrive off-loop) ──

func (s *Session) onSignalingError(serr *core.SignalingError) {
	s.post(func() {
		s.peers.Remove(serr.ConnectionID)
		s.notify(core.Notification{Kind: core.NotifyError, Err: serr})
	})
}

func (s *Session) onLinkClosed(connID domain.ConnectionID) {
	s.post(func() {
		s.peers.Remove(connID)
	})
}
