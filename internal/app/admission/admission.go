// Package admission decides how one join attempt resolves: admitted straight
// in, parked in the waiting room, or rejected by the host.
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/vtran/meetcore/internal/core"
	"github.com/vtran/meetcore/internal/domain"
)

type Outcome int

const (
	OutcomeAdmitted Outcome = iota
	OutcomeWaiting
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeWaiting:
		return "waiting"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Decision carries the winning outcome; Snapshot is set only for Admitted.
type Decision struct {
	Outcome  Outcome
	Snapshot []domain.Participant
}

// Attempt is the one-shot race for a single join. The three Resolve methods
// are safe to call from the event loop in any order; only the first wins.
// The caller must Close the attempt on every exit path so no listener state
// survives into the next attempt.
type Attempt struct {
	once    sync.Once
	decided chan Decision
}

func NewAttempt() *Attempt {
	return &Attempt{decided: make(chan Decision, 1)}
}

func (a *Attempt) ResolveAdmitted(snapshot []domain.Participant) {
	a.once.Do(func() {
		a.decided <- Decision{Outcome: OutcomeAdmitted, Snapshot: snapshot}
	})
}

func (a *Attempt) ResolveWaiting() {
	a.once.Do(func() { a.decided <- Decision{Outcome: OutcomeWaiting} })
}

func (a *Attempt) ResolveRejected() {
	a.once.Do(func() { a.decided <- Decision{Outcome: OutcomeRejected} })
}

// Await races the decision against the admission timeout and the caller's
// context. Exactly one of decision / ErrTimeout / ctx error is returned.
func (a *Attempt) Await(ctx context.Context, timeout time.Duration) (Decision, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-a.decided:
		return d, nil
	case <-timer.C:
		return Decision{}, core.ErrTimeout
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}
