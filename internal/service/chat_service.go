package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

type ChatService struct {
	chatRepo ChatRepository

	defaultLimit int
	maxLimit     int
}

func NewChatService(chatRepo ChatRepository) *ChatService {
	return &ChatService{
		chatRepo:     chatRepo,
		defaultLimit: DefaultHistoryLimit,
		maxLimit:     MaxHistoryLimit,
	}
}

// SetHistoryLimits overrides the page size used when the caller passes none and the upper bound.
func (s *ChatService) SetHistoryLimits(def, max int) {
	if def > 0 {
		s.defaultLimit = def
	}
	if max > 0 {
		s.maxLimit = max
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
}

// Store persists one chat message. The session controller calls it before broadcasting.
func (s *ChatService) Store(ctx context.Context, m domain.ChatMessage) error {
	if strings.TrimSpace(m.Text) == "" {
		return domain.ErrEmptyMessage
	}
	if m.Kind == "" {
		m.Kind = domain.KindChat
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, m.Kind)
	}
	if err := s.chatRepo.Save(ctx, m); err != nil {
		return fmt.Errorf("chatRepo.Save: %w", err)
	}
	return nil
}

// History returns the latest messages of a room oldest-first; before pages further back.
func (s *ChatService) History(ctx context.Context, roomID, before string, limit int) ([]domain.ChatMessage, string, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	msgs, next, err := s.chatRepo.History(ctx, roomID, before, limit)
	if err != nil {
		return nil, "", err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, next, nil
}
