package hub

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

type fakeConn struct {
	id   string
	name string

	mu     sync.Mutex
	events []Event
	err    error
	closed atomic.Bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, name: "name-" + id}
}

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) UserID() string   { return c.id }
func (c *fakeConn) Username() string { return c.name }

func (c *fakeConn) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// checkInvariant verifies that the three maps agree with each other.
func checkInvariant(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()

	require.Equal(t, len(r.connections), len(r.membership))
	for id := range r.connections {
		roomID, ok := r.membership[id]
		require.True(t, ok, "connection %s has no membership", id)
		_, in := r.occupancy[roomID][id]
		require.True(t, in, "connection %s missing from room %s", id, roomID)
	}
	total := 0
	for roomID, rs := range r.occupancy {
		require.NotEmpty(t, rs, "empty room %s left behind", roomID)
		for id := range rs {
			require.Equal(t, roomID, r.membership[id])
		}
		total += len(rs)
	}
	require.Equal(t, len(r.connections), total)
}

func TestRegistry_RegisterDeregister(t *testing.T) {
	r := NewRegistry()

	n, err := r.Register("a", newFakeConn("a"), "lofi")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.Register("b", newFakeConn("b"), "lofi")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	checkInvariant(t, r)

	roomID, n, err := r.Deregister("b")
	require.NoError(t, err)
	assert.Equal(t, "lofi", roomID)
	assert.Equal(t, 1, n)

	roomID, n, err = r.Deregister("a")
	require.NoError(t, err)
	assert.Equal(t, "lofi", roomID)
	assert.Equal(t, 0, n)

	assert.Equal(t, 0, r.OccupantCount("lofi"))
	assert.NotContains(t, r.Rooms(), "lofi")
	checkInvariant(t, r)
}

func TestRegistry_DuplicateIdentityLeavesStateUnchanged(t *testing.T) {
	r := NewRegistry()
	first := newFakeConn("a")
	_, err := r.Register("a", first, "lofi")
	require.NoError(t, err)

	_, err = r.Register("a", newFakeConn("a"), "jazz")
	require.ErrorIs(t, err, domain.ErrAlreadyRegistered)

	assert.Equal(t, 1, r.OccupantCount("lofi"))
	assert.Equal(t, 0, r.OccupantCount("jazz"))
	c, ok := r.Handle("a")
	require.True(t, ok)
	assert.Same(t, first, c)
	checkInvariant(t, r)
}

func TestRegistry_DeregisterUnknownIsNotFound(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Deregister("ghost")
	require.ErrorIs(t, err, domain.ErrNotRegistered)

	_, err = r.Register("a", newFakeConn("a"), "lofi")
	require.NoError(t, err)
	_, _, err = r.Deregister("a")
	require.NoError(t, err)
	_, _, err = r.Deregister("a")
	require.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestRegistry_UnknownRoomCountIsZero(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.OccupantCount("never-created"))
	assert.Empty(t, r.HandlesIn("never-created"))
}

func TestRegistry_HandlesInIsSnapshot(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		_, err := r.Register(id, newFakeConn(id), "lofi")
		require.NoError(t, err)
	}

	snap := r.HandlesIn("lofi")
	require.Len(t, snap, 3)

	_, _, err := r.Deregister("b")
	require.NoError(t, err)
	_, err = r.Register("d", newFakeConn("d"), "lofi")
	require.NoError(t, err)

	assert.Len(t, snap, 3)
	ids := make([]string, 0, len(snap))
	for _, o := range snap {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
	assert.Len(t, r.HandlesIn("lofi"), r.OccupantCount("lofi"))
}

func TestRegistry_RandomSequencesKeepInvariant(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	rooms := []string{"lofi", "jazz", "study", "night"}
	r := NewRegistry()
	live := map[string]bool{}

	for step := 0; step < 5000; step++ {
		id := fmt.Sprintf("u%d", rnd.Intn(60))
		if rnd.Intn(2) == 0 {
			room := rooms[rnd.Intn(len(rooms))]
			before := r.OccupantCount(room)
			n, err := r.Register(id, newFakeConn(id), room)
			if live[id] {
				require.ErrorIs(t, err, domain.ErrAlreadyRegistered)
				require.Equal(t, before, r.OccupantCount(room))
			} else {
				require.NoError(t, err)
				require.Equal(t, before+1, n)
				live[id] = true
			}
		} else {
			_, _, err := r.Deregister(id)
			if live[id] {
				require.NoError(t, err)
				delete(live, id)
			} else {
				require.ErrorIs(t, err, domain.ErrNotRegistered)
			}
		}
		checkInvariant(t, r)
		for _, room := range rooms {
			require.Equal(t, r.OccupantCount(room), len(r.HandlesIn(room)))
		}
	}
	require.Equal(t, len(live), r.Len())
}

func TestRegistry_ConcurrentInterleavings(t *testing.T) {
	r := NewRegistry()
	rooms := []string{"lofi", "jazz", "study"}

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(g)))
			for i := 0; i < 500; i++ {
				id := fmt.Sprintf("g%d-u%d", g, rnd.Intn(10))
				room := rooms[rnd.Intn(len(rooms))]
				if _, err := r.Register(id, newFakeConn(id), room); err != nil {
					if !errors.Is(err, domain.ErrAlreadyRegistered) {
						t.Errorf("register: %v", err)
					}
					_, _, _ = r.Deregister(id)
				}
				_ = r.HandlesIn(room)
			}
		}(g)
	}
	wg.Wait()

	checkInvariant(t, r)
}

func TestRegistry_ConcurrentDuplicateRegistration(t *testing.T) {
	for round := 0; round < 50; round++ {
		r := NewRegistry()
		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			rejected  atomic.Int32
			start     = make(chan struct{})
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := r.Register("same", newFakeConn("same"), "lofi")
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, domain.ErrAlreadyRegistered):
					rejected.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), succeeded.Load())
		require.Equal(t, int32(1), rejected.Load())
		require.Equal(t, 1, r.OccupantCount("lofi"))
	}
}

func TestRegistry_WaitEmptyReturnsAfterLastDeregister(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("a", newFakeConn("a"), "lofi")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.WaitEmpty(context.Background(), time.Millisecond) }()

	select {
	case <-done:
		t.Fatal("WaitEmpty returned while a connection is registered")
	case <-time.After(20 * time.Millisecond):
	}

	_, _, err = r.Deregister("a")
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitEmpty did not return")
	}
}

func TestRegistry_WaitEmptyHonoursDeadline(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("a", newFakeConn("a"), "lofi")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.WaitEmpty(ctx, time.Millisecond), context.DeadlineExceeded)
	assert.Equal(t, 1, r.Len())
}
