// Package domain contains entities without logic, just meta-data.
package domain

type (
	RoomID  string
	RoomKey string
)

// Role of the local user within one room membership attempt.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Room is immutable once joined; a leave/rejoin replaces it wholesale.
type Room struct {
	ID          RoomID  `json:"id"`
	Key         RoomKey `json:"key"`
	Name        string  `json:"name"`
	ShareURL    string  `json:"share_url"`
	WaitingRoom bool    `json:"waiting_room"`
}
