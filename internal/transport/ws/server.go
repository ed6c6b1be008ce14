package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
	"github.com/cwrk-planet/lofi-relay/internal/session"
)

// CloseIdentityInUse is sent when the user id already has a live session.
const CloseIdentityInUse = 4009

type Options struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	OutboxSize   int
	ReadLimit    int64
}

func (o *Options) setDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 64
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
}

type Server struct {
	upgrader websocket.Upgrader
	ctrl     *session.Controller
	opts     Options
}

func NewServer(ctrl *session.Controller, opts Options) *Server {
	opts.setDefaults()
	return &Server{
		ctrl: ctrl,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS serves GET /ws/{room_id}/{user_id}/{username}.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	p := session.Params{
		RoomID:   pathParam(r, "room_id"),
		UserID:   pathParam(r, "user_id"),
		Username: pathParam(r, "username"),
	}
	if p.RoomID == "" || p.UserID == "" || p.Username == "" {
		http.Error(w, "room_id, user_id and username are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		slog.Warn("ws upgrade failed", "room", p.RoomID, "user", p.UserID, "err", err)
		return
	}

	c := newWsConn(conn, p.UserID, p.Username, s.opts)
	c.prepareRead(s.opts.ReadLimit)
	go c.writeLoop()

	ctx := r.Context()
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	err = s.ctrl.Run(ctx, c, p)
	if errors.Is(err, domain.ErrAlreadyRegistered) {
		_ = c.closeWith(CloseIdentityInUse, "user id already connected")
		return
	}
	if err != nil {
		slog.Warn("ws session failed", "room", p.RoomID, "user", p.UserID, "err", err)
	}
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "room", p.RoomID, "user", p.UserID, "err", err)
	}
}

func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		raw = v
	}
	return strings.TrimSpace(raw)
}
