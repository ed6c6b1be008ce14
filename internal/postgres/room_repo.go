package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	_, err := r.db.Exec(ctx, queryInsertRoom,
		room.ID, room.Name, room.Description, room.Niche, room.CreatedAt)
	return err
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	// ids are uuids; anything else can not exist
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrRoomNotFound
	}
	return r.getOne(ctx, queryGetRoom, id)
}

func (r *RoomRepository) GetByName(ctx context.Context, name string) (*domain.Room, error) {
	return r.getOne(ctx, queryGetRoomByName, name)
}

// List returns rooms oldest-first with cursor pagination on (created_at, id).
func (r *RoomRepository) List(ctx context.Context, limit int, cursorStr string) ([]domain.Room, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}
	createdAt, id := cursorArgs(cur)

	rows, err := r.db.Query(ctx, queryListRooms, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		var rm domain.Room
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Description, &rm.Niche, &rm.CreatedAt); err != nil {
			return nil, "", err
		}
		rooms = append(rooms, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(rooms) == limit {
		last := rooms[len(rooms)-1]
		next, _ = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rooms, next, nil
}

func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrRoomNotFound
	}
	tag, err := r.db.Exec(ctx, queryDeleteRoom, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepository) getOne(ctx context.Context, query string, arg any) (*domain.Room, error) {
	var rm domain.Room
	err := r.db.QueryRow(ctx, query, arg).
		Scan(&rm.ID, &rm.Name, &rm.Description, &rm.Niche, &rm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}
