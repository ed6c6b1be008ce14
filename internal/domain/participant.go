package domain

import "time"

// Participant is a live occupant of a room as seen by the presence registry.
type Participant struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}
