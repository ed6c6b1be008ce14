package hub

import (
	"time"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

// Типы исходящих событий
const (
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeMessage    = "message"
	TypeSystem     = "system" // адресное уведомление одному клиенту
)

// Event is the JSON frame delivered to clients over the socket. Field names
// follow the web client's socket wire format.
type Event struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UserCount int       `json:"user_count"`
}

func UserJoined(userID, username string, at time.Time, count int) Event {
	return Event{
		Type:      TypeUserJoined,
		UserID:    userID,
		Username:  username,
		Timestamp: at,
		UserCount: count,
	}
}

func UserLeft(userID, username string, at time.Time, count int) Event {
	return Event{
		Type:      TypeUserLeft,
		UserID:    userID,
		Username:  username,
		Timestamp: at,
		UserCount: count,
	}
}

func ChatEvent(m domain.ChatMessage, count int) Event {
	return Event{
		Type:      TypeMessage,
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		Message:   m.Text,
		Timestamp: m.CreatedAt,
		UserCount: count,
	}
}

func SystemNotice(text string, at time.Time, count int) Event {
	return Event{
		Type:      TypeSystem,
		Message:   text,
		Timestamp: at,
		UserCount: count,
	}
}
