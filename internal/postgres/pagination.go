package postgres

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

// Cursor points at the last row of the previous page: (created_at, id).
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func EncodeCursor(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor returns nil for an empty string (first page).
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", domain.ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", domain.ErrInvalidCursor, err)
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		return nil, fmt.Errorf("%w: id: %v", domain.ErrInvalidCursor, err)
	}
	return &c, nil
}

// cursorArgs turns an optional cursor into query arguments (NULLs for the first page).
func cursorArgs(c *Cursor) (createdAt, id any) {
	if c == nil {
		return nil, nil
	}
	return c.CreatedAt, c.ID
}
