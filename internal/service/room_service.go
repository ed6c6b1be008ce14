package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
	"github.com/cwrk-planet/lofi-relay/internal/hub"
)

// RoomView is a directory entry decorated with its live occupant count.
type RoomView struct {
	domain.Room
	UserCount int `json:"user_count"`
}

type CreateRoomInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Niche       string `json:"niche" validate:"max=50"`
}

// DefaultRooms are seeded by InitDefaultRooms.
var DefaultRooms = []CreateRoomInput{
	{Name: "🎵 General Lofi", Description: "General chat while listening to chill beats", Niche: "general"},
	{Name: "💻 Study & Work", Description: "Focus together while studying or working", Niche: "productivity"},
	{Name: "🎨 Creative Minds", Description: "For artists, writers, and creative souls", Niche: "creative"},
	{Name: "🌙 Late Night Vibes", Description: "Night owls and insomniacs welcome", Niche: "nightowls"},
}

type RoomService struct {
	roomRepo RoomRepository
	reg      *hub.Registry

	now func() time.Time
}

func NewRoomService(roomRepo RoomRepository, reg *hub.Registry) *RoomService {
	return &RoomService{
		roomRepo: roomRepo,
		reg:      reg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRoom создаёт комнату в каталоге. Комнаты чата от каталога не зависят.
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (*RoomView, error) {
	room := &domain.Room{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Niche:       in.Niche,
		CreatedAt:   s.now(),
	}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("roomRepo.Create: %w", err)
	}
	return s.view(*room), nil
}

// GetRoom возвращает комнату по ID.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*RoomView, error) {
	room, err := s.roomRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return s.view(*room), nil
}

// ListRooms возвращает список комнат с курсорной пагинацией.
func (s *RoomService) ListRooms(ctx context.Context, limit int, cursor string) ([]RoomView, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	rooms, nextCursor, err := s.roomRepo.List(ctx, limit, cursor)
	if err != nil {
		return nil, "", err
	}
	views := lo.Map(rooms, func(r domain.Room, _ int) RoomView {
		return *s.view(r)
	})
	return views, nextCursor, nil
}

func (s *RoomService) DeleteRoom(ctx context.Context, id string) error {
	return s.roomRepo.Delete(ctx, id)
}

// InitDefaultRooms seeds DefaultRooms, skipping names that already exist.
// It returns only the rooms created by this call.
func (s *RoomService) InitDefaultRooms(ctx context.Context) ([]RoomView, error) {
	var created []RoomView
	for _, in := range DefaultRooms {
		_, err := s.roomRepo.GetByName(ctx, in.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrRoomNotFound) {
			return created, fmt.Errorf("lookup %q: %w", in.Name, err)
		}
		v, err := s.CreateRoom(ctx, in)
		if err != nil {
			return created, err
		}
		created = append(created, *v)
	}
	slog.InfoContext(ctx, "default rooms initialized", "created", len(created))
	return created, nil
}

func (s *RoomService) view(r domain.Room) *RoomView {
	return &RoomView{Room: r, UserCount: s.reg.OccupantCount(r.ID)}
}
