package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

type ChatRepository struct {
	db *pgxpool.Pool
}

func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Save(ctx context.Context, m domain.ChatMessage) error {
	_, err := r.db.Exec(ctx, queryInsertMessage,
		m.ID, m.RoomID, m.UserID, m.Username, m.Text, string(m.Kind), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// History возвращает последние limit сообщений комнаты старше курсора before,
// в хронологическом порядке. next указывает на ещё более старую страницу.
func (r *ChatRepository) History(ctx context.Context, roomID, before string, limit int) ([]domain.ChatMessage, string, error) {
	cur, err := DecodeCursor(before)
	if err != nil {
		return nil, "", err
	}
	createdAt, id := cursorArgs(cur)

	rows, err := r.db.Query(ctx, queryHistory, roomID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var (
			m    domain.ChatMessage
			kind string
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Text, &kind, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		m.Kind = domain.MessageKind(kind)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		oldest := out[len(out)-1]
		next, _ = EncodeCursor(Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID})
	}
	slices.Reverse(out)
	return out, next, nil
}
