package hub

import "github.com/vtran/meetcore/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send queue is full. SDP and
// ICE frames are not replayable, so the default is to cut the slow consumer
// rather than let them drift out of sync.
type Policy interface {
	OnBackpressure(roomID domain.RoomID, connID domain.ConnectionID) BackpressureAction
}

type StrictPolicy struct{}

func (StrictPolicy) OnBackpressure(domain.RoomID, domain.ConnectionID) BackpressureAction {
	return KickMember
}

// LenientPolicy drops the frame instead; useful under test.
type LenientPolicy struct{}

func (LenientPolicy) OnBackpressure(domain.RoomID, domain.ConnectionID) BackpressureAction {
	return DropFrame
}
