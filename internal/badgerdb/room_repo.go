package badgerdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(_ context.Context, room *domain.Room) error {
	room.CreatedAt = clampTime(room.CreatedAt)
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(roomKey(room.ID), data); err != nil {
			return err
		}
		if err := txn.Set(roomIdxKey(*room), []byte(room.ID)); err != nil {
			return err
		}
		// первая комната с таким именем остаётся в индексе
		if _, err := txn.Get(roomNameKey(room.Name)); errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set(roomNameKey(room.Name), []byte(room.ID))
		} else if err != nil {
			return err
		}
		return nil
	})
}

func (r *RoomRepository) Get(_ context.Context, id string) (*domain.Room, error) {
	var room *domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, id)
		return err
	})
	return room, err
}

func (r *RoomRepository) GetByName(_ context.Context, name string) (*domain.Room, error) {
	var room *domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomNameKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		room, err = getRoom(txn, string(id))
		return err
	})
	return room, err
}

// List returns rooms in creation order.
func (r *RoomRepository) List(_ context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	prefix := []byte(prefixRoomIdx)
	after, err := decodeCursor(cursor, prefix)
	if err != nil {
		return nil, "", err
	}

	var (
		rooms   []domain.Room
		lastKey []byte
	)
	err = r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if after != nil {
			seek = after
		}
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(rooms) < limit; it.Next() {
			item := it.Item()
			if after != nil && bytes.Equal(item.Key(), after) {
				continue
			}
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			room, err := getRoom(txn, string(id))
			if errors.Is(err, domain.ErrRoomNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			rooms = append(rooms, *room)
			lastKey = item.KeyCopy(nil)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(rooms) == limit && lastKey != nil {
		next = encodeCursor(lastKey)
	}
	return rooms, next, nil
}

func (r *RoomRepository) Delete(_ context.Context, id string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(roomKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(roomIdxKey(*room)); err != nil {
			return err
		}
		item, err := txn.Get(roomNameKey(room.Name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		owner, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(owner) == id {
			return txn.Delete(roomNameKey(room.Name))
		}
		return nil
	})
}

func getRoom(txn *badger.Txn, id string) (*domain.Room, error) {
	item, err := txn.Get(roomKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var room domain.Room
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &room)
	}); err != nil {
		return nil, err
	}
	return &room, nil
}
