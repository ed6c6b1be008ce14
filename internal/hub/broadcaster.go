package hub

import (
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Stats are cumulative delivery counters since process start.
type Stats struct {
	Attempted int64 `json:"attempted"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// Broadcaster fans events out to room occupants. Delivery is best-effort:
// a failing target is logged and counted, never reported to the caller.
type Broadcaster struct {
	reg *Registry

	attempted atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Broadcast delivers ev to every connection registered in roomID at the time of the call.
func (b *Broadcaster) Broadcast(roomID string, ev Event) {
	targets := b.reg.HandlesIn(roomID)
	if len(targets) == 0 {
		return
	}

	var g errgroup.Group
	for _, o := range targets {
		g.Go(func() error {
			b.deliver(roomID, o, ev)
			return nil
		})
	}
	_ = g.Wait()
}

// SendTo delivers ev to one connection. Unknown ids are ignored: the target
// may have disconnected while the event was in flight.
func (b *Broadcaster) SendTo(id string, ev Event) {
	c, ok := b.reg.Handle(id)
	if !ok {
		slog.Debug("hub send_to: target not connected", "user", id, "type", ev.Type)
		return
	}
	b.deliver("", Occupant{ID: id, Conn: c}, ev)
}

func (b *Broadcaster) Stats() Stats {
	return Stats{
		Attempted: b.attempted.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}

func (b *Broadcaster) deliver(roomID string, o Occupant, ev Event) {
	b.attempted.Add(1)
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			slog.Error("hub delivery panic", "room", roomID, "user", o.ID, "panic", r)
		}
	}()

	if err := o.Conn.Send(ev); err != nil {
		b.failed.Add(1)
		slog.Warn("hub delivery failed",
			"room", roomID, "user", o.ID, "type", ev.Type, "err", err)
		return
	}
	b.delivered.Add(1)
}
