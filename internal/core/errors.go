package core

import (
	"errors"
	"fmt"

	"github.com/vtran/meetcore/internal/domain"
)

var (
	// ErrAuth: bad or expired credentials. Fatal to the join, no retry.
	ErrAuth = errors.New("authentication failed")
	// ErrTimeout: no admission decision arrived in time. Caller may retry.
	ErrTimeout = errors.New("admission timed out")
	// ErrRejected: the host denied the join. Terminal for this attempt.
	ErrRejected = errors.New("rejected by host")
	// ErrNotConnected: a command was issued outside an admitted session.
	ErrNotConnected = errors.New("not connected")
	// ErrMeetingEnded: the host ended the meeting.
	ErrMeetingEnded = errors.New("meeting ended")
)

// SignalingError wraps a failed offer/answer/ICE send for one peer. It does
// not abort the session; the affected link is torn down.
type SignalingError struct {
	ConnectionID domain.ConnectionID
	Op           string
	Err          error
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling %s to %s: %v", e.Op, e.ConnectionID, e.Err)
}

func (e *SignalingError) Unwrap() error { return e.Err }
