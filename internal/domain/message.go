package domain

import "time"

type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	return k == KindChat || k == KindSystem
}

// ChatMessage is immutable once created; it is persisted once and never updated.
type ChatMessage struct {
	ID        string      `db:"id" json:"id"`
	UserID    string      `db:"user_id" json:"user_id"`
	Username  string      `db:"username" json:"username"`
	RoomID    string      `db:"room_id" json:"room_id"`
	Text      string      `db:"text" json:"message"`
	CreatedAt time.Time   `db:"created_at" json:"timestamp"`
	Kind      MessageKind `db:"kind" json:"message_type"`
}
