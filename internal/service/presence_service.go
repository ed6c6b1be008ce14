package service

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
	"github.com/cwrk-planet/lofi-relay/internal/hub"
)

// ActiveRoom is a room with at least one live occupant.
type ActiveRoom struct {
	RoomID    string `json:"room_id"`
	UserCount int    `json:"user_count"`
}

// PresenceService answers read-only presence questions from the registry.
type PresenceService struct {
	reg *hub.Registry
}

func NewPresenceService(reg *hub.Registry) *PresenceService {
	return &PresenceService{reg: reg}
}

func (s *PresenceService) OccupantCount(roomID string) int {
	return s.reg.OccupantCount(roomID)
}

// ListParticipants returns the room's occupants in join order.
func (s *PresenceService) ListParticipants(roomID string) []domain.Participant {
	return lo.Map(s.reg.HandlesIn(roomID), func(o hub.Occupant, _ int) domain.Participant {
		return domain.Participant{
			RoomID:   roomID,
			UserID:   o.ID,
			Username: o.Conn.Username(),
			JoinedAt: o.JoinedAt,
		}
	})
}

// ActiveRooms lists occupied rooms, busiest first.
func (s *PresenceService) ActiveRooms() []ActiveRoom {
	rooms := lo.MapToSlice(s.reg.Rooms(), func(id string, n int) ActiveRoom {
		return ActiveRoom{RoomID: id, UserCount: n}
	})
	slices.SortFunc(rooms, func(a, b ActiveRoom) int {
		if a.UserCount != b.UserCount {
			return b.UserCount - a.UserCount
		}
		return strings.Compare(a.RoomID, b.RoomID)
	})
	return rooms
}

// Connections is the number of live sessions across all rooms.
func (s *PresenceService) Connections() int {
	return s.reg.Len()
}
