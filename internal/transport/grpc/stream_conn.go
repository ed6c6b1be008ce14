package grpcx

import (
	"context"
	"encoding/json"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cwrk-planet/lofi-relay/internal/hub"
)

type received struct {
	data []byte
	err  error
}

// streamConn adapts a Connect stream to session.Stream. Events travel as
// google.protobuf.Struct with the same field names as the websocket frames.
type streamConn struct {
	*hub.Outbox

	stream   grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]
	userID   string
	username string
	inbound  chan received
}

func newStreamConn(stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct], userID, username string, outboxSize int) *streamConn {
	c := &streamConn{
		Outbox:   hub.NewOutbox(outboxSize),
		stream:   stream,
		userID:   userID,
		username: username,
		inbound:  make(chan received),
	}
	go c.readLoop()
	return c
}

func (c *streamConn) UserID() string   { return c.userID }
func (c *streamConn) Username() string { return c.username }

func (c *streamConn) Send(ev hub.Event) error {
	return c.Push(ev)
}

func (c *streamConn) Close() error {
	c.Outbox.Close()
	return nil
}

// Receive returns the next inbound Struct as JSON. Closing the conn unblocks it.
func (c *streamConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case r := <-c.inbound:
		return r.data, r.err
	case <-c.Done():
		return nil, hub.ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop exits once Recv fails, which happens at the latest when the handler returns.
func (c *streamConn) readLoop() {
	for {
		msg, err := c.stream.Recv()
		var r received
		if err != nil {
			r.err = err
		} else {
			r.data, r.err = protojson.Marshal(msg)
		}
		select {
		case c.inbound <- r:
		case <-c.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *streamConn) writeLoop() {
	for {
		select {
		case ev := <-c.C():
			msg, err := eventToStruct(ev)
			if err != nil {
				slog.Warn("grpc encode event failed", "user", c.userID, "type", ev.Type, "err", err)
				continue
			}
			if err := c.stream.Send(msg); err != nil {
				slog.Debug("grpc send failed", "user", c.userID, "err", err)
				c.Outbox.Close()
				return
			}
		case <-c.Done():
			return
		}
	}
}

func eventToStruct(ev hub.Event) (*structpb.Struct, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}
