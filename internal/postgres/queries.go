package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id          UUID PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		niche       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         UUID PRIMARY KEY,
		room_id    TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		username   TEXT NOT NULL,
		text       TEXT NOT NULL,
		kind       TEXT NOT NULL DEFAULT 'chat',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_created_idx
		ON chat_messages (room_id, created_at DESC, id DESC)`,
}

const (
	queryInsertRoom = `
		INSERT INTO rooms (id, name, description, niche, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	queryGetRoom = `
		SELECT id, name, description, niche, created_at
		FROM rooms WHERE id = $1`
	queryGetRoomByName = `
		SELECT id, name, description, niche, created_at
		FROM rooms WHERE name = $1
		ORDER BY created_at ASC
		LIMIT 1`
	queryListRooms = `
		SELECT id, name, description, niche, created_at
		FROM rooms
		WHERE ($1::timestamptz IS NULL OR created_at > $1
		       OR (created_at = $1 AND id > $2::uuid))
		ORDER BY created_at ASC, id ASC
		LIMIT $3`
	queryDeleteRoom = `DELETE FROM rooms WHERE id = $1`

	queryInsertMessage = `
		INSERT INTO chat_messages (id, room_id, user_id, username, text, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	// newest first; the repository reverses the page
	queryHistory = `
		SELECT id, room_id, user_id, username, text, kind, created_at
		FROM chat_messages
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3::uuid)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4`
)
