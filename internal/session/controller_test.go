package session_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
	"github.com/cwrk-planet/lofi-relay/internal/hub"
	"github.com/cwrk-planet/lofi-relay/internal/session"
)

// pipeStream feeds frames from a channel; closing in ends the session.
type pipeStream struct {
	id, name string
	in       chan []byte

	mu     sync.Mutex
	events []hub.Event
}

func newPipe(id string) *pipeStream {
	return &pipeStream{id: id, name: strings.ToUpper(id), in: make(chan []byte, 16)}
}

func (p *pipeStream) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-p.in:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeStream) Send(ev hub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *pipeStream) Close() error     { return nil }
func (p *pipeStream) UserID() string   { return p.id }
func (p *pipeStream) Username() string { return p.name }

func (p *pipeStream) received() []hub.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]hub.Event(nil), p.events...)
}

func (p *pipeStream) waitFor(t *testing.T, n int) []hub.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(p.received()) >= n },
		2*time.Second, 5*time.Millisecond, "want %d events, have %v", n, p.received())
	return p.received()
}

type memStore struct {
	mu   sync.Mutex
	msgs []domain.ChatMessage
	err  error
}

func (s *memStore) Store(_ context.Context, m domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *memStore) stored() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage(nil), s.msgs...)
}

type fixture struct {
	reg   *hub.Registry
	bc    *hub.Broadcaster
	store *memStore
	ctrl  *session.Controller
	at    time.Time
}

func newFixture(opts ...session.Option) *fixture {
	reg := hub.NewRegistry()
	bc := hub.NewBroadcaster(reg)
	store := &memStore{}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	base := []session.Option{
		session.WithClock(func() time.Time { return at }),
		session.WithIDGenerator(func() string { return "msg-1" }),
	}
	return &fixture{
		reg:   reg,
		bc:    bc,
		store: store,
		ctrl:  session.New(reg, bc, store, append(base, opts...)...),
		at:    at,
	}
}

func (f *fixture) start(t *testing.T, s *pipeStream, room string) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- f.ctrl.Run(context.Background(), s, session.Params{RoomID: room, UserID: s.id, Username: s.name})
	}()
	return done
}

func TestController_LofiScenario(t *testing.T) {
	f := newFixture()
	a, b := newPipe("a"), newPipe("b")

	doneA := f.start(t, a, "lofi")
	evs := a.waitFor(t, 1)
	assert.Equal(t, hub.UserJoined("a", "A", f.at, 1), evs[0])

	doneB := f.start(t, b, "lofi")
	b.waitFor(t, 1)
	evs = a.waitFor(t, 2)
	assert.Equal(t, hub.TypeUserJoined, evs[1].Type)
	assert.Equal(t, 2, evs[1].UserCount)

	a.in <- []byte(`{"message":"hi"}`)
	for _, p := range []*pipeStream{a, b} {
		var got hub.Event
		require.Eventually(t, func() bool {
			for _, ev := range p.received() {
				if ev.Type == hub.TypeMessage {
					got = ev
					return true
				}
			}
			return false
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, "hi", got.Message)
		assert.Equal(t, "msg-1", got.ID)
		assert.Equal(t, "a", got.UserID)
		assert.Equal(t, "A", got.Username)
		assert.Equal(t, 2, got.UserCount)
	}
	require.Len(t, f.store.stored(), 1)
	assert.Equal(t, domain.ChatMessage{
		ID: "msg-1", UserID: "a", Username: "A", RoomID: "lofi",
		Text: "hi", CreatedAt: f.at, Kind: domain.KindChat,
	}, f.store.stored()[0])

	close(b.in)
	require.NoError(t, <-doneB)

	evs = a.waitFor(t, 4)
	assert.Equal(t, hub.UserLeft("b", "B", f.at, 1), evs[3])
	assert.Equal(t, 1, f.reg.OccupantCount("lofi"))

	close(a.in)
	require.NoError(t, <-doneA)
	assert.Equal(t, 0, f.reg.OccupantCount("lofi"))
}

func TestController_DuplicateIdentityRejected(t *testing.T) {
	f := newFixture()
	first := newPipe("a")
	done := f.start(t, first, "lofi")
	first.waitFor(t, 1)

	dup := newPipe("a")
	err := f.ctrl.Run(context.Background(), dup, session.Params{RoomID: "lofi", UserID: "a", Username: "A"})
	require.ErrorIs(t, err, domain.ErrAlreadyRegistered)
	assert.Empty(t, dup.received())
	assert.Equal(t, 1, f.reg.OccupantCount("lofi"))

	// the rejected session must not tear down the live one
	c, ok := f.reg.Handle("a")
	require.True(t, ok)
	assert.Same(t, hub.Conn(first), c)

	close(first.in)
	require.NoError(t, <-done)
}

func TestController_UnknownRoomIsAccepted(t *testing.T) {
	f := newFixture()
	p := newPipe("a")
	done := f.start(t, p, "never-created-by-directory")
	evs := p.waitFor(t, 1)
	assert.Equal(t, 1, evs[0].UserCount)
	close(p.in)
	require.NoError(t, <-done)
}

func TestController_MalformedFramesAreDropped(t *testing.T) {
	f := newFixture(session.WithMaxMessageLength(5))
	a, b := newPipe("a"), newPipe("b")
	doneA := f.start(t, a, "lofi")
	a.waitFor(t, 1)
	doneB := f.start(t, b, "lofi")
	b.waitFor(t, 1)
	a.waitFor(t, 2)

	frames := []string{
		`not json`,
		`{"text":"wrong field"}`,
		`{"message":42}`,
		`{"message":"   "}`,
		`{"message":"way too long"}`,
	}
	for _, fr := range frames {
		a.in <- []byte(fr)
	}
	a.in <- []byte(`{"message":"ok"}`)

	evs := a.waitFor(t, 2+len(frames)+1)
	for i := range frames {
		assert.Equal(t, hub.TypeSystem, evs[2+i].Type, "frame %q", frames[i])
		assert.True(t, strings.HasPrefix(evs[2+i].Message, "message dropped"))
	}
	assert.Equal(t, hub.TypeMessage, evs[len(evs)-1].Type)
	assert.Equal(t, "ok", evs[len(evs)-1].Message)

	// b only sees its own join and the valid message
	evsB := b.waitFor(t, 2)
	require.Len(t, evsB, 2)
	assert.Equal(t, hub.TypeMessage, evsB[1].Type)
	assert.Len(t, f.store.stored(), 1)

	close(a.in)
	close(b.in)
	require.NoError(t, <-doneA)
	require.NoError(t, <-doneB)
}

func TestController_PersistenceFailureStillBroadcasts(t *testing.T) {
	f := newFixture()
	f.store.err = errors.New("db down")
	a := newPipe("a")
	done := f.start(t, a, "lofi")
	a.waitFor(t, 1)

	a.in <- []byte(`{"message":"still here"}`)
	evs := a.waitFor(t, 2)
	assert.Equal(t, hub.TypeMessage, evs[1].Type)
	assert.Equal(t, "still here", evs[1].Message)

	close(a.in)
	require.NoError(t, <-done)
}

func TestController_RequirePersistenceDropsUnsaved(t *testing.T) {
	f := newFixture(session.WithRequirePersistence(true))
	f.store.err = errors.New("db down")
	a := newPipe("a")
	done := f.start(t, a, "lofi")
	a.waitFor(t, 1)

	a.in <- []byte(`{"message":"lost"}`)
	evs := a.waitFor(t, 2)
	assert.Equal(t, hub.TypeSystem, evs[1].Type)
	assert.Contains(t, evs[1].Message, "could not be saved")

	close(a.in)
	require.NoError(t, <-done)
}

func TestController_LastLeaverRemovesRoom(t *testing.T) {
	f := newFixture()
	a := newPipe("a")
	done := f.start(t, a, "lofi")
	a.waitFor(t, 1)
	close(a.in)
	require.NoError(t, <-done)

	assert.Equal(t, 0, f.reg.OccupantCount("lofi"))
	assert.Empty(t, f.reg.Rooms())

	// identity can be reused only through a fresh registration
	again := newPipe("a")
	done = f.start(t, again, "lofi")
	evs := again.waitFor(t, 1)
	assert.Equal(t, 1, evs[0].UserCount)
	close(again.in)
	require.NoError(t, <-done)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", session.StateConnecting.String())
	assert.Equal(t, "active", session.StateActive.String())
	assert.Equal(t, "closed", session.StateClosed.String())
}
