package domain

import "errors"

const MaxUsernameLen = 36

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

type (
	// UserID is the stable identity key, unique within a room.
	UserID string
	// ConnectionID addresses one transport session. It may change across
	// reconnects of the same user and is the key for peer connections.
	ConnectionID string
)

// Participant is one remote member of the roster. The local user is never
// stored here; local media flags live on the session.
type Participant struct {
	UserID        UserID       `json:"userId"`
	ConnectionID  ConnectionID `json:"connectionId"`
	Username      string       `json:"username"`
	MicEnabled    bool         `json:"micEnabled"`
	CamEnabled    bool         `json:"camEnabled"`
	ScreenSharing bool         `json:"isScreenSharing"`
}

// PendingGuest exists only while the local user is host and a guest is
// mid-admission; removed on admit, reject or guest disconnect.
type PendingGuest struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       UserID       `json:"userId"`
	Username     string       `json:"username"`
}

// ValidUsername keeps name checks out of adapters.
func ValidUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
