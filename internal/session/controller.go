// Package session drives the life of one client connection:
// register, announce, relay inbound chat, deregister, announce.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
	"github.com/cwrk-planet/lofi-relay/internal/hub"
	"github.com/cwrk-planet/lofi-relay/pkg/logger"
)

const DefaultMaxMessageLength = 4000

// Stream is a connection handle that can also be read from.
// Receive returning an error means the transport is gone.
type Stream interface {
	hub.Conn
	Receive(ctx context.Context) ([]byte, error)
}

// Persistence stores chat messages durably.
type Persistence interface {
	Store(ctx context.Context, msg domain.ChatMessage) error
}

// Params identify the session. Identity and room come from the transport.
type Params struct {
	RoomID   string
	UserID   string
	Username string
}

type inboundPayload struct {
	Message string `json:"message" validate:"required"`
}

var validate = validator.New()

type Controller struct {
	reg   *hub.Registry
	bc    *hub.Broadcaster
	store Persistence

	maxMessageLength   int
	requirePersistence bool

	now    func() time.Time
	newID  func() string
	tracer trace.Tracer
}

type Option func(*Controller)

func WithMaxMessageLength(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxMessageLength = n
		}
	}
}

// WithRequirePersistence drops messages the store failed to save instead of broadcasting them.
func WithRequirePersistence(v bool) Option {
	return func(c *Controller) { c.requirePersistence = v }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

func New(reg *hub.Registry, bc *hub.Broadcaster, store Persistence, opts ...Option) *Controller {
	c := &Controller{
		reg:              reg,
		bc:               bc,
		store:            store,
		maxMessageLength: DefaultMaxMessageLength,
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
		tracer:           otel.Tracer("github.com/cwrk-planet/lofi-relay/internal/session"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run blocks until the stream stops delivering frames. It returns
// domain.ErrAlreadyRegistered when the identity is taken; the session never
// became Active in that case and the caller must close the transport.
func (c *Controller) Run(ctx context.Context, s Stream, p Params) error {
	ctx, span := c.tracer.Start(ctx, "session.Run", trace.WithAttributes(
		attribute.String("room.id", p.RoomID),
		attribute.String("user.id", p.UserID),
	))
	defer span.End()

	sess := &session{ctrl: c, stream: s, p: p, state: StateConnecting}
	if err := sess.activate(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer sess.close(ctx)

	for {
		data, err := s.Receive(ctx)
		if err != nil {
			logger.FromCtx(ctx).Debug("session receive stopped",
				"room", p.RoomID, "user", p.UserID, "err", err)
			return nil
		}
		sess.handle(ctx, data)
	}
}

type session struct {
	ctrl   *Controller
	stream Stream
	p      Params
	state  State
}

func (s *session) activate(ctx context.Context) error {
	count, err := s.ctrl.reg.Register(s.p.UserID, s.stream, s.p.RoomID)
	if err != nil {
		s.state = StateClosed
		slog.InfoContext(ctx, "session rejected",
			"room", s.p.RoomID, "user", s.p.UserID, "err", err)
		return fmt.Errorf("register %q: %w", s.p.UserID, err)
	}
	s.state = StateActive
	slog.InfoContext(ctx, "session active",
		"room", s.p.RoomID, "user", s.p.UserID, "username", s.p.Username, "user_count", count)

	s.ctrl.bc.Broadcast(s.p.RoomID, hub.UserJoined(s.p.UserID, s.p.Username, s.ctrl.now(), count))
	return nil
}

func (s *session) close(ctx context.Context) {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed

	roomID, count, err := s.ctrl.reg.Deregister(s.p.UserID)
	if err != nil {
		// уже удалён: повторный сигнал закрытия, ничего не рассылаем
		slog.DebugContext(ctx, "session deregister skipped", "user", s.p.UserID, "err", err)
		return
	}
	slog.InfoContext(ctx, "session closed", "room", roomID, "user", s.p.UserID, "user_count", count)

	s.ctrl.bc.Broadcast(roomID, hub.UserLeft(s.p.UserID, s.p.Username, s.ctrl.now(), count))
}

func (s *session) handle(ctx context.Context, data []byte) {
	ctx, span := s.ctrl.tracer.Start(ctx, "session.message")
	defer span.End()

	text, err := s.ctrl.parse(data)
	if err != nil {
		slog.DebugContext(ctx, "session frame dropped",
			"room", s.p.RoomID, "user", s.p.UserID, "err", err)
		span.SetStatus(codes.Error, err.Error())
		s.notify(noticeFor(err))
		return
	}

	msg := domain.ChatMessage{
		ID:        s.ctrl.newID(),
		UserID:    s.p.UserID,
		Username:  s.p.Username,
		RoomID:    s.p.RoomID,
		Text:      text,
		CreatedAt: s.ctrl.now(),
		Kind:      domain.KindChat,
	}

	if s.ctrl.store != nil {
		if err := s.ctrl.store.Store(ctx, msg); err != nil {
			span.RecordError(err)
			logger.FromCtx(ctx).Warn("session persist failed",
				"room", s.p.RoomID, "user", s.p.UserID, "msg_id", msg.ID, "err", err)
			if s.ctrl.requirePersistence {
				s.notify(noticeFor(domain.ErrPersistenceRequired))
				return
			}
		}
	}

	s.ctrl.bc.Broadcast(s.p.RoomID, hub.ChatEvent(msg, s.ctrl.reg.OccupantCount(s.p.RoomID)))
}

func (s *session) notify(text string) {
	s.ctrl.bc.SendTo(s.p.UserID,
		hub.SystemNotice(text, s.ctrl.now(), s.ctrl.reg.OccupantCount(s.p.RoomID)))
}

func (c *Controller) parse(data []byte) (string, error) {
	var in inboundPayload
	if err := json.Unmarshal(data, &in); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if err := validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return "", domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > c.maxMessageLength {
		return "", domain.ErrMessageTooLong
	}
	return text, nil
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return "message dropped: empty message"
	case errors.Is(err, domain.ErrMessageTooLong):
		return "message dropped: message too long"
	case errors.Is(err, domain.ErrPersistenceRequired):
		return "message dropped: could not be saved"
	default:
		return `message dropped: expected {"message": "<text>"}`
	}
}
