package realtime

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/editor"
	"github.com/umlstudio/engine/pkg/logger"
)

// Phase of a controller's room session.
type Phase int

const (
	Disconnected Phase = iota
	AwaitingInitialLoad
	Synced
)

func (p Phase) String() string {
	switch p {
	case AwaitingInitialLoad:
		return "awaiting_initial_load"
	case Synced:
		return "synced"
	default:
		return "disconnected"
	}
}

// Poster runs fn on the goroutine that owns the editor.
type Poster interface {
	Post(fn func()) error
}

type inline struct{}

func (inline) Post(fn func()) error {
	fn()
	return nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithPoster routes inbound events through p. Without it handlers touch the
// editor on the channel's goroutine, which is only fine in tests.
func WithPoster(p Poster) Option {
	return func(c *Controller) { c.poster = p }
}

// WithPresence registers a callback for user-joined, user-left and
// user-update events.
func WithPresence(fn func(Presence)) Option {
	return func(c *Controller) { c.presence = fn }
}

// Controller reconciles one editor with one room at a time.
//
// Nothing is broadcast until the room delivered its initial snapshot. After
// that, local structural changes are sent as whole snapshots; snapshots
// received from the room are loaded with a one-shot latch set so that their
// own change notification is not sent back.
//
// When the channel loses its connection the controller stops broadcasting.
// Once the channel is back it joins the room again and waits for a fresh
// initial snapshot.
//
// All methods must be called on the goroutine that owns the editor.
type Controller struct {
	ch       Channel
	ed       *editor.Editor
	user     UserInfo
	poster   Poster
	presence func(Presence)
	log      *zap.Logger

	phase       Phase
	room        string
	gen         uint64 // bumped on every join and leave
	incoming    bool
	linkDown    bool
	unsubscribe func()
}

func NewController(ch Channel, ed *editor.Editor, user UserInfo, opts ...Option) *Controller {
	c := &Controller{
		ch:     ch,
		ed:     ed,
		user:   user,
		poster: inline{},
		log:    logger.Named("realtime"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = ed.Subscribe(c.onChange)
	ch.On(EventDisconnect, func([]json.RawMessage) { c.post(EventDisconnect, c.handleDisconnect) })
	ch.On(EventConnect, func([]json.RawMessage) { c.post(EventConnect, c.handleConnect) })
	return c
}

func (c *Controller) Phase() Phase { return c.phase }
func (c *Controller) Room() string { return c.room }
func (c *Controller) User() UserInfo { return c.user }

// Join connects if needed, leaves the current room and joins roomID. The
// controller then waits for the room's initial snapshot.
func (c *Controller) Join(ctx context.Context, roomID string) error {
	if c.phase != Disconnected {
		c.Leave()
	}
	if err := c.ch.Connect(ctx); err != nil {
		return err
	}

	c.room = roomID
	c.gen++
	c.incoming = false
	c.linkDown = false
	c.phase = AwaitingInitialLoad

	c.subscribe(EventDiagramLoaded, c.handleLoaded)
	c.subscribe(EventDiagramUpdate, c.handleUpdate)
	for _, ev := range []string{EventUserJoined, EventUserLeft, EventUserUpdate} {
		c.subscribe(ev, func(args []json.RawMessage) { c.handlePresence(ev, args) })
	}

	if err := c.ch.Emit(EventJoinRoom, roomID); err != nil {
		c.log.Warn("join-room emit failed", zap.String("room", roomID), zap.Error(err))
	}
	c.log.Info("joined room", zap.String("room", roomID))
	return nil
}

// Leave emits leave-room and drops the room-scoped subscriptions.
func (c *Controller) Leave() {
	if c.phase == Disconnected {
		return
	}
	if err := c.ch.Emit(EventLeaveRoom, c.room); err != nil {
		c.log.Warn("leave-room emit failed", zap.String("room", c.room), zap.Error(err))
	}
	for _, ev := range RoomEvents {
		c.ch.Off(ev)
	}
	c.log.Info("left room", zap.String("room", c.room))
	c.phase = Disconnected
	c.room = ""
	c.gen++
	c.incoming = false
	c.linkDown = false
}

// Close leaves the room and stops observing the editor and the channel's
// lifecycle. The channel is shared and stays open.
func (c *Controller) Close() {
	c.Leave()
	c.ch.Off(EventConnect)
	c.ch.Off(EventDisconnect)
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// subscribe registers h for event, hopping onto the owner goroutine. Events
// queued before a later join or leave are dropped, even when the controller
// is back in the same room.
func (c *Controller) subscribe(event string, h Handler) {
	gen := c.gen
	c.ch.On(event, func(args []json.RawMessage) {
		c.post(event, func() {
			if c.gen != gen || c.phase == Disconnected {
				return
			}
			h(args)
		})
	})
}

func (c *Controller) post(event string, fn func()) {
	if err := c.poster.Post(fn); err != nil {
		c.log.Debug("dropping inbound event", zap.String("event", event), zap.Error(err))
	}
}

func (c *Controller) handleDisconnect() {
	if c.phase == Disconnected {
		return
	}
	c.linkDown = true
	c.incoming = false
	c.phase = AwaitingInitialLoad
	c.log.Warn("connection lost, broadcasting paused", zap.String("room", c.room))
}

// handleConnect rejoins the room after a lost connection. The room's
// snapshot then replaces edits made while offline.
func (c *Controller) handleConnect() {
	if c.phase == Disconnected || !c.linkDown {
		return
	}
	if err := c.ch.Emit(EventJoinRoom, c.room); err != nil {
		c.log.Warn("join-room emit failed", zap.String("room", c.room), zap.Error(err))
		return
	}
	c.linkDown = false
	c.log.Info("rejoined room", zap.String("room", c.room))
}

func (c *Controller) handleLoaded(args []json.RawMessage) {
	if !c.apply(EventDiagramLoaded, args) {
		return
	}
	if c.phase == AwaitingInitialLoad {
		c.phase = Synced
		c.log.Info("initial diagram loaded", zap.String("room", c.room))
	}
}

func (c *Controller) handleUpdate(args []json.RawMessage) {
	c.apply(EventDiagramUpdate, args)
}

func (c *Controller) apply(event string, args []json.RawMessage) bool {
	if len(args) == 0 {
		return false
	}
	state, from, ok := DecodeSnapshot(args[0])
	if !ok {
		c.log.Debug("ignoring payload without classes", zap.String("event", event))
		return false
	}
	if from != nil && from.UserID != "" {
		c.log.Debug("remote snapshot", zap.String("event", event), zap.String("from", from.UserID))
	}

	c.incoming = true
	c.ed.Load(state)
	c.incoming = false
	return true
}

func (c *Controller) handlePresence(event string, args []json.RawMessage) {
	if len(args) == 0 || c.presence == nil {
		return
	}
	c.presence(DecodePresence(event, args[0]))
}

func (c *Controller) onChange(ch editor.Change) {
	if c.incoming {
		c.incoming = false
		return
	}
	if c.phase != Synced || !ch.Structural {
		return
	}
	user := c.user
	payload := UpdatePayload{State: ch.State, UserInfo: &user}
	if err := c.ch.Emit(EventDiagramUpdate, payload, c.room); err != nil {
		c.log.Warn("diagram-update emit failed", zap.String("room", c.room), zap.Error(err))
	}
}
