package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/lofi-relay/internal/hub"
)

// wsConn adapts a gorilla connection to session.Stream. Outbound events are
// queued in the embedded Outbox and written by writeLoop, so Send never blocks
// on the network.
type wsConn struct {
	*hub.Outbox

	conn     *websocket.Conn
	userID   string
	username string

	pingEvery    time.Duration
	writeTimeout time.Duration
}

func newWsConn(c *websocket.Conn, userID, username string, o Options) *wsConn {
	return &wsConn{
		Outbox:       hub.NewOutbox(o.OutboxSize),
		conn:         c,
		userID:       userID,
		username:     username,
		pingEvery:    o.PingInterval,
		writeTimeout: o.WriteTimeout,
	}
}

func (c *wsConn) UserID() string   { return c.userID }
func (c *wsConn) Username() string { return c.username }

func (c *wsConn) Send(ev hub.Event) error {
	return c.Push(ev)
}

// Receive blocks until the next data frame. Pongs extend the read deadline.
func (c *wsConn) Receive(_ context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.pingEvery))
	return data, nil
}

func (c *wsConn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *wsConn) closeWith(code int, reason string) error {
	if !c.Outbox.Close() {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeTimeout))
	return c.conn.Close()
}

func (c *wsConn) prepareRead(limit int64) {
	c.conn.SetReadLimit(limit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * c.pingEvery))
	})
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.C():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				slog.Debug("ws write failed", "user", c.userID, "err", err)
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				slog.Debug("ws ping failed", "user", c.userID, "err", err)
				_ = c.conn.Close()
				return
			}
		case <-c.Done():
			return
		}
	}
}
