package badgerdb

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

// Key layout:
//
//	room:{id}                       -> Room JSON
//	roomidx:{created_ns}:{id}       -> id (creation order)
//	roomname:{name}                 -> id
//	msg:{b64(room)}:{created_ns}:{id} -> ChatMessage JSON
//
// Timestamps are zero padded to 19 digits so lexical order is chronological.
const (
	prefixRoom     = "room:"
	prefixRoomIdx  = "roomidx:"
	prefixRoomName = "roomname:"
	prefixMsg      = "msg:"
)

func roomKey(id string) []byte { return []byte(prefixRoom + id) }

func roomIdxKey(r domain.Room) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", prefixRoomIdx, r.CreatedAt.UnixNano(), r.ID))
}

func roomNameKey(name string) []byte { return []byte(prefixRoomName + name) }

func msgPrefix(roomID string) []byte {
	return []byte(prefixMsg + base64.RawURLEncoding.EncodeToString([]byte(roomID)) + ":")
}

func msgKey(m domain.ChatMessage) []byte {
	return append(msgPrefix(m.RoomID), []byte(fmt.Sprintf("%019d:%s", m.CreatedAt.UnixNano(), m.ID))...)
}

func encodeCursor(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// decodeCursor returns the raw key; it must carry the expected prefix.
func decodeCursor(s string, prefix []byte) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}
	if !strings.HasPrefix(string(key), string(prefix)) {
		return nil, domain.ErrInvalidCursor
	}
	return key, nil
}

func clampTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
