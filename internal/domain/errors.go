package domain

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrInvalidCursor = errors.New("invalid cursor")

	// presence
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrNotRegistered     = errors.New("connection not registered")

	// inbound chat frames
	ErrMalformedPayload = errors.New("malformed inbound payload")
	ErrEmptyMessage     = errors.New("empty message")
	ErrMessageTooLong   = errors.New("message too long")
	ErrUnknownKind      = errors.New("unknown message kind")

	ErrPersistenceRequired = errors.New("message was not persisted")
)
