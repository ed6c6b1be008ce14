package service

import (
	"context"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

// RoomRepository is implemented by postgres.RoomRepository and badgerdb.RoomRepository.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id string) (*domain.Room, error)
	GetByName(ctx context.Context, name string) (*domain.Room, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
	Delete(ctx context.Context, id string) error
}

type ChatRepository interface {
	Save(ctx context.Context, m domain.ChatMessage) error
	History(ctx context.Context, roomID, before string, limit int) ([]domain.ChatMessage, string, error)
}
