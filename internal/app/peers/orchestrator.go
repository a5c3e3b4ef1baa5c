// Package peers creates, maintains and tears down exactly one peer
// connection per remote participant, and runs the offer/answer/ICE exchange.
//
// All exported methods must be called from the session's event loop; engine
// work then runs on per-link workers so one slow negotiation never blocks
// another pair.
package peers

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

type Orchestrator struct {
	factory core.PeerFactory
	media   core.LocalMedia
	send    func(v any) error

	// onError surfaces a per-peer signaling failure to the coordinator; it
	// must not call back into the orchestrator synchronously.
	onError func(*core.SignalingError)
	// onClosed reports a terminal engine state for the given connection.
	onClosed func(domain.ConnectionID)

	links   map[domain.ConnectionID]*Link
	pending map[domain.ConnectionID][]webrtc.ICECandidateInit
}

func NewOrchestrator(
	factory core.PeerFactory,
	media core.LocalMedia,
	send func(v any) error,
	onError func(*core.SignalingError),
	onClosed func(domain.ConnectionID),
) *Orchestrator {
	return &Orchestrator{
		factory:  factory,
		media:    media,
		send:     send,
		onError:  onError,
		onClosed: onClosed,
		links:    make(map[domain.ConnectionID]*Link),
		pending:  make(map[domain.ConnectionID][]webrtc.ICECandidateInit),
	}
}

// EnsureLink creates at most one link for the given remote. A second call for
// the same connectionId is a no-op. Local tracks are attached before any
// offer is created; candidates buffered for this connectionId are handed to
// the link in arrival order.
func (o *Orchestrator) EnsureLink(connID domain.ConnectionID, userID domain.UserID, username string, shouldOffer bool) {
	if _, ok := o.links[connID]; ok {
		return
	}

	pc, err := o.factory.NewPeerConnection()
	if err != nil {
		o.fail(connID, "create", err)
		return
	}

	for _, track := range o.media.Tracks() {
		if err := pc.AddTrack(track); err != nil {
			log.Warn().Err(err).Str("module", "peers").
				Str("conn", string(connID)).Msg("attach local track")
		}
	}

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := o.send(core.IceCandidateCmd{Type: core.CmdSendIceCandidate, To: connID, Candidate: c}); err != nil {
			o.onError(&core.SignalingError{ConnectionID: connID, Op: "send_ice_candidate", Err: err})
		}
	})
	pc.OnStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			o.onClosed(connID)
		}
	})

	l := newLink(connID, userID, username, shouldOffer, pc)
	o.links[connID] = l
	log.Info().Str("module", "peers").
		Str("conn", string(connID)).
		Str("user", string(userID)).
		Bool("should_offer", shouldOffer).
		Msg("link created")

	if buffered := o.pending[connID]; len(buffered) > 0 {
		delete(o.pending, connID)
		l.do(func() {
			for _, c := range buffered {
				l.bufferCandidate(c)
			}
		})
	}

	if shouldOffer {
		l.do(func() {
			offer, err := l.pc.CreateOffer()
			if err != nil {
				o.fail(connID, "create_offer", err)
				return
			}
			if err := o.send(core.OfferCmd{Type: core.CmdSendOffer, To: connID, Offer: offer}); err != nil {
				o.fail(connID, "send_offer", err)
			}
		})
	}
}

// HandleOffer runs the answering side: create the link on demand, set the
// remote description, answer, emit it back.
func (o *Orchestrator) HandleOffer(d core.OfferData) {
	o.EnsureLink(d.FromConnectionID, d.FromUserID, d.FromUsername, false)
	l, ok := o.links[d.FromConnectionID]
	if !ok {
		return
	}
	l.do(func() {
		answer, err := l.pc.ApplyOfferCreateAnswer(d.Offer)
		if err != nil {
			o.fail(l.ConnectionID, "apply_offer", err)
			return
		}
		l.remoteSet = true
		l.flushCandidates()
		if err := o.send(core.AnswerCmd{Type: core.CmdSendAnswer, To: l.ConnectionID, Answer: answer}); err != nil {
			o.fail(l.ConnectionID, "send_answer", err)
		}
	})
}

// HandleAnswer completes the exchange on the offering side.
func (o *Orchestrator) HandleAnswer(d core.AnswerData) {
	l, ok := o.links[d.FromConnectionID]
	if !ok {
		log.Warn().Str("module", "peers").
			Str("conn", string(d.FromConnectionID)).Msg("answer for unknown link")
		return
	}
	l.do(func() {
		if err := l.pc.ApplyAnswer(d.Answer); err != nil {
			o.fail(l.ConnectionID, "apply_answer", err)
			return
		}
		l.remoteSet = true
		l.flushCandidates()
	})
}

// HandleCandidate applies a candidate, buffering it while the link or its
// remote description does not exist yet. Order is preserved either way.
func (o *Orchestrator) HandleCandidate(d core.IceCandidateData) {
	l, ok := o.links[d.FromConnectionID]
	if !ok {
		o.pending[d.FromConnectionID] = append(o.pending[d.FromConnectionID], d.Candidate)
		return
	}
	l.do(func() {
		if !l.remoteSet {
			l.bufferCandidate(d.Candidate)
			return
		}
		if err := l.pc.AddICECandidate(d.Candidate); err != nil {
			log.Warn().Err(err).Str("module", "peers").
				Str("conn", string(l.ConnectionID)).Msg("add candidate")
		}
	})
}

// Remove closes and forgets the link; buffered but unflushed candidates for
// that connectionId are discarded. Terminal failures are not retried here;
// only the signaling layer resyncs.
func (o *Orchestrator) Remove(connID domain.ConnectionID) {
	delete(o.pending, connID)
	l, ok := o.links[connID]
	if !ok {
		return
	}
	delete(o.links, connID)
	l.do(func() {
		if err := l.pc.Close(); err != nil {
			log.Warn().Err(err).Str("module", "peers").
				Str("conn", string(connID)).Msg("close link")
		}
	})
	close(l.tasks)
	log.Info().Str("module", "peers").Str("conn", string(connID)).Msg("link removed")
}

// RemoveAll tears down every link, used on leave and meeting end.
func (o *Orchestrator) RemoveAll() {
	for connID := range o.links {
		o.Remove(connID)
	}
}

// ReplaceVideoTrack installs the new outgoing video source on every open
// link without renegotiation (screen-share swap, late camera grant).
func (o *Orchestrator) ReplaceVideoTrack(track webrtc.TrackLocal) {
	for _, l := range o.links {
		l := l
		l.do(func() {
			if err := l.pc.ReplaceVideoTrack(track); err != nil {
				log.Warn().Err(err).Str("module", "peers").
					Str("conn", string(l.ConnectionID)).Msg("replace video track")
			}
		})
	}
}

func (o *Orchestrator) Has(connID domain.ConnectionID) bool {
	_, ok := o.links[connID]
	return ok
}

func (o *Orchestrator) Len() int { return len(o.links) }

// Lookup exposes link metadata for the coordinator and tests.
func (o *Orchestrator) Lookup(connID domain.ConnectionID) (*Link, bool) {
	l, ok := o.links[connID]
	return l, ok
}

// fail surfaces a signaling failure; the coordinator decides on teardown.
func (o *Orchestrator) fail(connID domain.ConnectionID, op string, err error) {
	log.Error().Err(err).Str("module", "peers").
		Str("conn", string(connID)).Str("op", op).Msg("signaling failure")
	o.onError(&core.SignalingError{ConnectionID: connID, Op: op, Err: err})
}
