package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/editor"
)

type emitted struct {
	event string
	args  []any
}

type fakeChannel struct {
	mu         sync.Mutex
	connects   int
	connectErr error
	closed     bool
	handlers   map[string]Handler
	emits      []emitted
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[string]Handler{}}
}

func (f *fakeChannel) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeChannel) Emit(event string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, emitted{event: event, args: args})
	return nil
}

func (f *fakeChannel) On(event string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

func (f *fakeChannel) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	if h != nil {
		h([]json.RawMessage{raw})
	}
}

func (f *fakeChannel) updates() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.emits {
		if e.event == EventDiagramUpdate {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeChannel) hasHandler(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[event]
	return ok
}

var alice = UserInfo{UserID: "u1", UserName: "alice"}

func joined(t *testing.T) (*fakeChannel, *editor.Editor, *Controller) {
	t.Helper()
	ch := newFakeChannel()
	ed := editor.New(50)
	c := NewController(ch, ed, alice)
	require.NoError(t, c.Join(context.Background(), "room-1"))
	return ch, ed, c
}

func remoteState() diagram.State {
	return diagram.AddClass(diagram.Empty(), diagram.Class{ID: "remote", Name: "Remote", Width: 200, Height: 150})
}

func TestJoinEmitsJoinRoom(t *testing.T) {
	ch, _, c := joined(t)
	assert.Equal(t, AwaitingInitialLoad, c.Phase())
	assert.Equal(t, "room-1", c.Room())
	assert.Equal(t, 1, ch.connects)
	require.Len(t, ch.emits, 1)
	assert.Equal(t, emitted{event: EventJoinRoom, args: []any{"room-1"}}, ch.emits[0])
	for _, ev := range RoomEvents {
		assert.True(t, ch.hasHandler(ev), ev)
	}
}

func TestJoinPropagatesConnectError(t *testing.T) {
	ch := newFakeChannel()
	ch.connectErr = errors.New("refused")
	c := NewController(ch, editor.New(50), alice)
	require.Error(t, c.Join(context.Background(), "room-1"))
	assert.Equal(t, Disconnected, c.Phase())
	assert.Empty(t, ch.emits)
}

func TestNoBroadcastBeforeInitialLoad(t *testing.T) {
	ch, ed, c := joined(t)

	ed.AddClass(diagram.Class{ID: "local", Name: "Local", Width: 1, Height: 1})
	assert.Len(t, ed.State().Classes, 1, "local edits still apply")
	assert.Empty(t, ch.updates())

	ch.deliver(t, EventDiagramLoaded, diagram.Empty())
	assert.Equal(t, Synced, c.Phase())
	assert.Empty(t, ed.State().Classes, "empty snapshot is authoritative")
	assert.Empty(t, ch.updates(), "loading the initial snapshot is never echoed")

	ed.AddClass(diagram.Class{ID: "c1", Name: "Foo", Width: 1, Height: 1})
	updates := ch.updates()
	require.Len(t, updates, 1)
	require.Len(t, updates[0].args, 2)
	payload, ok := updates[0].args[0].(UpdatePayload)
	require.True(t, ok)
	assert.Equal(t, alice, *payload.UserInfo)
	assert.Len(t, payload.Classes, 1)
	assert.Equal(t, "room-1", updates[0].args[1])
}

func TestInitialLoadIsOneUndoStep(t *testing.T) {
	ch, ed, _ := joined(t)
	ch.deliver(t, EventDiagramLoaded, remoteState())

	require.Len(t, ed.State().Classes, 1)
	assert.True(t, ed.CanUndo())
	assert.Empty(t, ch.updates())
}

func TestRemoteUpdateIsNotEchoed(t *testing.T) {
	ch, ed, _ := joined(t)
	ch.deliver(t, EventDiagramLoaded, diagram.Empty())

	ch.deliver(t, EventDiagramUpdate, UpdatePayload{State: remoteState(), UserInfo: &UserInfo{UserID: "u2"}})
	assert.Equal(t, "remote", ed.State().Classes[0].ID)
	assert.Empty(t, ch.updates())

	ed.UpdateElement("remote", diagram.MoveTo(10, 10))
	assert.Len(t, ch.updates(), 1, "the next local edit is broadcast")

	ch.deliver(t, EventDiagramUpdate, remoteState())
	ch.deliver(t, EventDiagramUpdate, diagram.Empty())
	assert.Len(t, ch.updates(), 1)
}

func TestTransientChangesAreNotBroadcast(t *testing.T) {
	ch, ed, _ := joined(t)
	ch.deliver(t, EventDiagramLoaded, remoteState())

	ed.SetZoom(2)
	ed.SetSelectedElements([]string{"remote"})
	ed.SetPan(diagram.Point{X: 3})
	assert.Empty(t, ch.updates())

	ed.DeleteElement("remote")
	ed.Undo()
	ed.Redo()
	assert.Len(t, ch.updates(), 3)
}

func TestPayloadWithoutClassesIsIgnored(t *testing.T) {
	ch, ed, c := joined(t)

	ch.deliver(t, EventDiagramLoaded, map[string]any{"relationships": []any{}})
	ch.deliver(t, EventDiagramLoaded, []any{1, 2})
	ch.deliver(t, EventDiagramLoaded, "classes")
	ch.deliver(t, EventDiagramLoaded, nil)

	assert.Equal(t, AwaitingInitialLoad, c.Phase())
	assert.False(t, ed.CanUndo())

	ch.deliver(t, EventDiagramLoaded, map[string]any{"classes": []any{}})
	assert.Equal(t, Synced, c.Phase())
}

func TestUpdateWhileAwaitingLeavesNoStaleLatch(t *testing.T) {
	ch, ed, c := joined(t)

	ch.deliver(t, EventDiagramUpdate, remoteState())
	assert.Equal(t, AwaitingInitialLoad, c.Phase())
	assert.Len(t, ed.State().Classes, 1)

	ch.deliver(t, EventDiagramLoaded, remoteState())
	require.Equal(t, Synced, c.Phase())

	ed.AddNote(diagram.Note{ID: "n1", Text: "mine", Width: 1, Height: 1})
	assert.Len(t, ch.updates(), 1, "first local edit after sync must be sent")
}

func TestLeaveDropsOnlyRoomSubscriptions(t *testing.T) {
	ch, ed, c := joined(t)
	ch.deliver(t, EventDiagramLoaded, diagram.Empty())

	c.Leave()

	assert.Equal(t, Disconnected, c.Phase())
	last := ch.emits[len(ch.emits)-1]
	assert.Equal(t, emitted{event: EventLeaveRoom, args: []any{"room-1"}}, last)
	for _, ev := range RoomEvents {
		assert.False(t, ch.hasHandler(ev), ev)
	}
	assert.True(t, ch.hasHandler(EventConnect), "lifecycle subscriptions survive leave")
	assert.True(t, ch.hasHandler(EventDisconnect))

	ed.AddClass(diagram.Class{ID: "c1", Name: "Foo", Width: 1, Height: 1})
	assert.Empty(t, ch.updates())

	c.Leave()
	assert.Equal(t, last, ch.emits[len(ch.emits)-1], "second leave is a no-op")
}

func TestJoinAnotherRoomLeavesFirst(t *testing.T) {
	ch, _, c := joined(t)
	require.NoError(t, c.Join(context.Background(), "room-2"))

	events := ch.emits
	require.Len(t, events, 3)
	assert.Equal(t, emitted{event: EventLeaveRoom, args: []any{"room-1"}}, events[1])
	assert.Equal(t, emitted{event: EventJoinRoom, args: []any{"room-2"}}, events[2])
	assert.Equal(t, AwaitingInitialLoad, c.Phase())
	assert.Equal(t, 2, ch.connects)
}

func TestPresenceIsObservable(t *testing.T) {
	ch := newFakeChannel()
	ed := editor.New(50)
	var got []Presence
	c := NewController(ch, ed, alice, WithPresence(func(p Presence) { got = append(got, p) }))
	require.NoError(t, c.Join(context.Background(), "room-1"))

	ch.deliver(t, EventUserJoined, map[string]any{"roomId": "room-1", "user": map[string]string{"userId": "u2", "userName": "bob"}, "count": 2})
	ch.deliver(t, EventUserLeft, map[string]any{"roomId": "room-1", "user": map[string]string{"userId": "u2"}})

	require.Len(t, got, 2)
	assert.Equal(t, EventUserJoined, got[0].Event)
	assert.Equal(t, "bob", got[0].User.UserName)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, EventUserLeft, got[1].Event)
	assert.Equal(t, diagram.Empty(), ed.State(), "presence never touches the diagram")
}

type queuePoster struct{ fns []func() }

func (q *queuePoster) Post(fn func()) error {
	q.fns = append(q.fns, fn)
	return nil
}

func (q *queuePoster) run() {
	fns := q.fns
	q.fns = nil
	for _, fn := range fns {
		fn()
	}
}

func TestInboundEventsHopThroughPoster(t *testing.T) {
	ch := newFakeChannel()
	ed := editor.New(50)
	q := &queuePoster{}
	c := NewController(ch, ed, alice, WithPoster(q))
	require.NoError(t, c.Join(context.Background(), "room-1"))

	ch.deliver(t, EventDiagramLoaded, remoteState())
	assert.Empty(t, ed.State().Classes, "not applied until the owner runs it")
	q.run()
	assert.Len(t, ed.State().Classes, 1)

	// queued before leaving, run after: dropped
	ch.deliver(t, EventDiagramUpdate, diagram.Empty())
	c.Leave()
	q.run()
	assert.Len(t, ed.State().Classes, 1)
}

func TestCloseStopsObserving(t *testing.T) {
	ch, ed, c := joined(t)
	ch.deliver(t, EventDiagramLoaded, diagram.Empty())
	c.Close()
	ed.AddClass(diagram.Class{ID: "c1", Name: "Foo", Width: 1, Height: 1})
	assert.Empty(t, ch.updates())
	assert.False(t, ch.closed, "the shared channel stays open")
	assert.False(t, ch.hasHandler(EventConnect))
	assert.False(t, ch.hasHandler(EventDisconnect))
}

func TestReconnectRejoinsAndWaitsForSnapshot(t *testing.T) {
	ch, ed, c := joined(t)
	ch.deliver(t, EventDiagramLoaded, diagram.Empty())
	require.Equal(t, Synced, c.Phase())

	ch.deliver(t, EventDisconnect, nil)
	assert.Equal(t, AwaitingInitialLoad, c.Phase())
	assert.Equal(t, "room-1", c.Room())

	ed.AddClass(diagram.Class{ID: "offline", Name: "Offline", Width: 1, Height: 1})
	assert.Empty(t, ch.updates(), "nothing is sent while the link is down")

	ch.deliver(t, EventConnect, nil)
	last := ch.emits[len(ch.emits)-1]
	assert.Equal(t, emitted{event: EventJoinRoom, args: []any{"room-1"}}, last)
	assert.Equal(t, AwaitingInitialLoad, c.Phase())

	ch.deliver(t, EventDiagramLoaded, remoteState())
	assert.Equal(t, Synced, c.Phase())
	assert.Equal(t, "remote", ed.State().Classes[0].ID)
	assert.Empty(t, ch.updates(), "the fresh snapshot is not echoed")

	ed.UpdateElement("remote", diagram.MoveTo(5, 5))
	assert.Len(t, ch.updates(), 1, "sync resumes")
}

func TestConnectWithoutLossDoesNotRejoin(t *testing.T) {
	ch, _, _ := joined(t)
	ch.deliver(t, EventConnect, nil)
	assert.Len(t, ch.emits, 1, "only the original join-room")
}

func TestLifecycleIgnoredOutsideRoom(t *testing.T) {
	ch := newFakeChannel()
	c := NewController(ch, editor.New(50), alice)
	ch.deliver(t, EventDisconnect, nil)
	ch.deliver(t, EventConnect, nil)
	assert.Equal(t, Disconnected, c.Phase())
	assert.Empty(t, ch.emits)
}

func TestEventQueuedBeforeRejoiningSameRoomIsDropped(t *testing.T) {
	ch := newFakeChannel()
	ed := editor.New(50)
	q := &queuePoster{}
	c := NewController(ch, ed, alice, WithPoster(q))
	require.NoError(t, c.Join(context.Background(), "room-1"))

	ch.deliver(t, EventDiagramLoaded, remoteState())
	c.Leave()
	require.NoError(t, c.Join(context.Background(), "room-1"))
	q.run()

	assert.Empty(t, ed.State().Classes)
	assert.Equal(t, AwaitingInitialLoad, c.Phase())
}

func TestDecodeSnapshot(t *testing.T) {
	s, user, ok := DecodeSnapshot(json.RawMessage(`{"classes":[],"userInfo":{"userId":"u9","userName":"zed"}}`))
	require.True(t, ok)
	assert.Empty(t, s.Classes)
	require.NotNil(t, user)
	assert.Equal(t, "u9", user.UserID)

	_, _, ok = DecodeSnapshot(json.RawMessage(`{"classes":"nope"}`))
	assert.False(t, ok)
	_, _, ok = DecodeSnapshot(json.RawMessage(`null`))
	assert.False(t, ok)
}
