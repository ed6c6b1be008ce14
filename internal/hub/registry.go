package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

// Conn is a handle for delivering events to one connected client.
// Implementations must make Send safe for concurrent use.
type Conn interface {
	Send(ev Event) error
	Close() error
	UserID() string
	Username() string
}

// Occupant is one entry of a room snapshot.
type Occupant struct {
	ID       string
	Conn     Conn
	JoinedAt time.Time
}

// Registry tracks which connection sits in which room.
//
// connections, membership and occupancy are only mutated together under mu,
// so callers never observe a connection that is missing from its room (or the reverse).
type Registry struct {
	mu          sync.RWMutex
	connections map[string]Conn                // userID -> handle
	membership  map[string]string              // userID -> roomID
	occupancy   map[string]map[string]struct{} // roomID -> set of userIDs
	joinedAt    map[string]time.Time

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]Conn),
		membership:  make(map[string]string),
		occupancy:   make(map[string]map[string]struct{}),
		joinedAt:    make(map[string]time.Time),
		now:         time.Now,
	}
}

// Register adds the connection to room and returns the new occupant count of that room.
func (r *Registry) Register(id string, c Conn, roomID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[id]; ok {
		return 0, domain.ErrAlreadyRegistered
	}

	rs, ok := r.occupancy[roomID]
	if !ok {
		rs = make(map[string]struct{})
		r.occupancy[roomID] = rs
	}
	rs[id] = struct{}{}
	r.connections[id] = c
	r.membership[id] = roomID
	r.joinedAt[id] = r.now()

	return len(rs), nil
}

// Deregister removes the connection and returns the room it left together with
// the remaining occupant count (0 when the room entry was dropped).
func (r *Registry) Deregister(id string) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.membership[id]
	if !ok {
		return "", 0, domain.ErrNotRegistered
	}
	delete(r.connections, id)
	delete(r.membership, id)
	delete(r.joinedAt, id)

	rs := r.occupancy[roomID]
	delete(rs, id)
	if len(rs) == 0 {
		delete(r.occupancy, roomID)
		return roomID, 0, nil
	}

	return roomID, len(rs), nil
}

// OccupantCount returns 0 for unknown rooms.
func (r *Registry) OccupantCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.occupancy[roomID])
}

// HandlesIn returns a point-in-time copy of the room's occupants.
func (r *Registry) HandlesIn(roomID string) []Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs := r.occupancy[roomID]
	out := make([]Occupant, 0, len(rs))
	for id := range rs {
		out = append(out, Occupant{
			ID:       id,
			Conn:     r.connections[id],
			JoinedAt: r.joinedAt[id],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })

	return out
}

// Handle looks up a single live connection.
func (r *Registry) Handle(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connections[id]
	return c, ok
}

// Rooms returns occupant counts of every non-empty room.
func (r *Registry) Rooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.occupancy))
	for roomID, rs := range r.occupancy {
		out[roomID] = len(rs)
	}
	return out
}

// All snapshots every registered connection, used on shutdown.
func (r *Registry) All() []Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Occupant, 0, len(r.connections))
	for id, c := range r.connections {
		out = append(out, Occupant{ID: id, Conn: c, JoinedAt: r.joinedAt[id]})
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

// WaitEmpty polls until every connection has deregistered or ctx is done.
func (r *Registry) WaitEmpty(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for r.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
