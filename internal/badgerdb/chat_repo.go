package badgerdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

type ChatRepository struct {
	db *badger.DB
}

func NewChatRepository(db *badger.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Save(_ context.Context, m domain.ChatMessage) error {
	m.CreatedAt = clampTime(m.CreatedAt)
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(msgKey(m), data)
	}); err != nil {
		return fmt.Errorf("store message %s: %w", m.ID, err)
	}
	return nil
}

// History walks the room's messages newest-first from the cursor and returns
// the page in chronological order.
func (r *ChatRepository) History(_ context.Context, roomID, before string, limit int) ([]domain.ChatMessage, string, error) {
	prefix := msgPrefix(roomID)
	from, err := decodeCursor(before, prefix)
	if err != nil {
		return nil, "", err
	}

	var (
		out     []domain.ChatMessage
		lastKey []byte
	)
	err = r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// в обратном режиме Seek встаёт на ключ <= seek
		seek := append(slices.Clone(prefix), 0xFF)
		if from != nil {
			seek = from
		}
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			item := it.Item()
			if from != nil && bytes.Equal(item.Key(), from) {
				continue
			}
			var m domain.ChatMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			out = append(out, m)
			lastKey = item.KeyCopy(nil)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit && lastKey != nil {
		next = encodeCursor(lastKey)
	}
	slices.Reverse(out)
	return out, next, nil
}
