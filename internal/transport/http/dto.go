package http

import (
	"time"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
	"github.com/cwrk-planet/lofi-relay/internal/hub"
	"github.com/cwrk-planet/lofi-relay/internal/service"
)

type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Niche       string `json:"niche" validate:"max=50"`
}

type RoomItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Niche       string    `json:"niche"`
	CreatedAt   time.Time `json:"created_at"`
	UserCount   int       `json:"user_count"`
}

type RoomsListResponse struct {
	Items      []RoomItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type ChatMessageItem struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	MessageType string    `json:"message_type"`
}

type ChatHistoryResponse struct {
	Items      []ChatMessageItem `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type ParticipantsResponse struct {
	RoomID    string               `json:"room_id"`
	UserCount int                  `json:"user_count"`
	Items     []domain.Participant `json:"items"`
}

type StatsResponse struct {
	Connections int                  `json:"connections"`
	Deliveries  hub.Stats            `json:"deliveries"`
	ActiveRooms []service.ActiveRoom `json:"active_rooms"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func toRoomItem(v service.RoomView, _ int) RoomItem {
	return RoomItem{
		ID:          v.ID,
		Name:        v.Name,
		Description: v.Description,
		Niche:       v.Niche,
		CreatedAt:   v.CreatedAt,
		UserCount:   v.UserCount,
	}
}

func toChatMessageItem(m domain.ChatMessage, _ int) ChatMessageItem {
	return ChatMessageItem{
		ID:          m.ID,
		RoomID:      m.RoomID,
		UserID:      m.UserID,
		Username:    m.Username,
		Message:     m.Text,
		Timestamp:   m.CreatedAt.Truncate(time.Millisecond),
		MessageType: string(m.Kind),
	}
}
