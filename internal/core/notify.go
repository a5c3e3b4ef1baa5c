package core

import "github.com/vtran/meetcore/internal/domain"

// NotificationKind names the events surfaced to the excluded UI layer.
type NotificationKind string

const (
	NotifyRosterChanged  NotificationKind = "roster_changed"
	NotifyUserJoined     NotificationKind = "user_joined"
	NotifyUserLeft       NotificationKind = "user_left"
	NotifyYouAreWaiting  NotificationKind = "you_are_waiting"
	NotifyGuestRequested NotificationKind = "guest_requested"
	NotifyYouAreRejected NotificationKind = "you_are_rejected"
	NotifyMeetingEnded   NotificationKind = "meeting_ended"
	NotifyChat           NotificationKind = "chat"
	NotifyError          NotificationKind = "error"
)

// Notification is delivered on the session's notification channel. Post-join
// asynchronous errors arrive here; they never panic across the event loop.
type Notification struct {
	Kind        NotificationKind
	Roster      []domain.Participant
	Participant *domain.Participant
	Guest       *domain.PendingGuest
	Chat        *ChatMessageData
	Reason      string
	Err         error
}
