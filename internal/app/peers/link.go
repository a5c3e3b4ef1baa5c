package peers

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

// Link is one logical peer connection to one remote participant, keyed by
// their connectionId. Each link runs its own task worker, so operations
// against one pair are sequential while different pairs proceed concurrently.
type Link struct {
	ConnectionID domain.ConnectionID
	UserID       domain.UserID
	Username     string
	// ShouldOffer marks the side that creates the initial offer. The newly
	// joining participant offers; existing participants wait for it.
	ShouldOffer bool

	pc    core.PeerConnection
	tasks chan func()

	// Only touched from the worker goroutine.
	remoteSet  bool
	pendingICE []webrtc.ICECandidateInit
}

func newLink(connID domain.ConnectionID, userID domain.UserID, username string, shouldOffer bool, pc core.PeerConnection) *Link {
	l := &Link{
		ConnectionID: connID,
		UserID:       userID,
		Username:     username,
		ShouldOffer:  shouldOffer,
		pc:           pc,
		tasks:        make(chan func(), 32),
	}
	go l.worker()
	return l
}

func (l *Link) worker() {
	for task := range l.tasks {
		task()
	}
}

// do enqueues a task. Enqueue order is apply order; the orchestrator only
// enqueues from its owner goroutine, so arrival order is preserved.
func (l *Link) do(task func()) {
	l.tasks <- task
}

// bufferCandidate holds a candidate until a remote description exists.
func (l *Link) bufferCandidate(c webrtc.ICECandidateInit) {
	l.pendingICE = append(l.pendingICE, c)
}

// flushCandidates applies buffered candidates in original arrival order,
// exactly once. Worker-only.
func (l *Link) flushCandidates() {
	for _, c := range l.pendingICE {
		if err := l.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "peers").
				Str("conn", string(l.ConnectionID)).Msg("flush candidate")
		}
	}
	l.pendingICE = nil
}
