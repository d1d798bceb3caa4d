// Package hub is the server side of the room protocol. It tracks room
// membership and the latest snapshot of every room, relays diagram updates
// between members and hands snapshots to a persister.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/realtime"
	"github.com/umlstudio/engine/pkg/logger"
)

// Store loads a room's last saved diagram. ok is false for unknown rooms.
type Store interface {
	LoadDiagram(ctx context.Context, roomID string) (diagram.State, bool, error)
}

// Persister saves a room snapshot. Calls happen on the hub's persist
// goroutine, one at a time.
type Persister interface {
	PersistDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) error
}

// IdentifyFunc names the user behind an upgrade request.
type IdentifyFunc func(r *http.Request) realtime.UserInfo

// Option configures a Hub.
type Option func(*Hub)

func WithStore(s Store) Option { return func(h *Hub) { h.store = s } }

func WithPersister(p Persister) Option { return func(h *Hub) { h.persister = p } }

func WithIdentify(fn IdentifyFunc) Option { return func(h *Hub) { h.identify = fn } }

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// RoomInfo describes an active room.
type RoomInfo struct {
	ID      string              `json:"id"`
	Members []realtime.UserInfo `json:"members"`
}

type room struct {
	id       string
	members  map[*client]struct{}
	snapshot diagram.State
}

// Hub serves websocket clients. It is an http.Handler.
type Hub struct {
	upgrader  websocket.Upgrader
	store     Store
	persister Persister
	identify  IdentifyFunc
	log       *zap.Logger

	mu      sync.Mutex
	rooms   map[string]*room
	clients map[*client]struct{}
	closed  bool

	persist *persistQueue
}

func New(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		identify: IdentifyFromQuery,
		log:      logger.Named("hub"),
		rooms:    make(map[string]*room),
		clients:  make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.persister != nil {
		h.persist = newPersistQueue(h.persister, h.log)
	}
	return h
}

// IdentifyFromQuery reads userId and userName from the query string. Anonymous
// connections get a guest identity.
func IdentifyFromQuery(r *http.Request) realtime.UserInfo {
	q := r.URL.Query()
	u := realtime.UserInfo{UserID: q.Get("userId"), UserName: q.Get("userName")}
	if u.UserID == "" {
		u.UserID = "guest-" + uuid.NewString()[:8]
	}
	if u.UserName == "" {
		u.UserName = "Guest"
	}
	return u
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := h.identify(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, conn, user)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Info("client connected", zap.String("user_id", user.UserID), zap.String("remote", r.RemoteAddr))
	go c.writePump()
	c.readPump()
}

// Snapshot returns the latest diagram of an active room.
func (h *Hub) Snapshot(roomID string) (diagram.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomID]
	if !ok {
		return diagram.State{}, false
	}
	return rm.snapshot.Clone(), true
}

// Rooms lists active rooms sorted by id.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for _, rm := range h.rooms {
		out = append(out, RoomInfo{ID: rm.id, Members: rm.users()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Publish replaces a room's snapshot from outside the socket protocol, e.g. a
// REST save or a version restore, and sends it to every member. Rooms
// without members are left alone; the next join loads from the store.
func (h *Hub) Publish(roomID string, state diagram.State, author realtime.UserInfo) {
	frame, err := encodeFrame(realtime.EventDiagramUpdate, realtime.UpdatePayload{State: state, UserInfo: &author}, roomID)
	if err != nil {
		h.log.Error("encode publish failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomID]
	if !ok {
		return
	}
	rm.snapshot = diagram.Load(state)
	for c := range rm.members {
		c.enqueue(frame)
	}
}

// Close disconnects every client and flushes pending persists.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	if h.persist != nil {
		return h.persist.Close(ctx)
	}
	return nil
}

func (h *Hub) dispatch(c *client, env realtime.Envelope) {
	switch env.Event {
	case realtime.EventJoinRoom:
		roomID, ok := stringArg(env.Args, 0)
		if !ok {
			c.log.Warn("join-room without room id")
			return
		}
		h.join(c, roomID)
	case realtime.EventLeaveRoom:
		roomID, ok := stringArg(env.Args, 0)
		if !ok {
			return
		}
		h.leave(c, roomID)
	case realtime.EventDiagramUpdate:
		h.update(c, env.Args)
	case realtime.EventUserUpdate:
		h.userUpdate(c, env.Args)
	default:
		c.log.Debug("ignoring unknown event", zap.String("event", env.Event))
	}
}

func (h *Hub) join(c *client, roomID string) {
	h.mu.Lock()
	_, known := h.rooms[roomID]
	h.mu.Unlock()

	var loaded diagram.State
	found := false
	if !known && h.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s, ok, err := h.store.LoadDiagram(ctx, roomID)
		cancel()
		if err != nil {
			h.log.Error("load room diagram failed", zap.String("room", roomID), zap.Error(err))
		}
		loaded, found = s, ok && err == nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[*client]struct{}), snapshot: diagram.Empty()}
		if found {
			rm.snapshot = diagram.Load(loaded)
		}
		h.rooms[roomID] = rm
	}
	if _, member := rm.members[c]; member {
		c.send(realtime.EventDiagramLoaded, rm.snapshot)
		return
	}
	rm.members[c] = struct{}{}
	c.rooms[roomID] = struct{}{}

	c.send(realtime.EventDiagramLoaded, rm.snapshot)
	h.presenceLocked(rm, c, realtime.EventUserJoined)
	h.log.Info("joined room", zap.String("room", roomID), zap.String("user_id", c.user.UserID), zap.Int("count", len(rm.members)))
}

func (h *Hub) leave(c *client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, roomID)
}

func (h *Hub) leaveLocked(c *client, roomID string) {
	rm, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, member := rm.members[c]; !member {
		return
	}
	delete(rm.members, c)
	delete(c.rooms, roomID)
	h.presenceLocked(rm, c, realtime.EventUserLeft)
	h.log.Info("left room", zap.String("room", roomID), zap.String("user_id", c.user.UserID), zap.Int("count", len(rm.members)))

	if len(rm.members) == 0 {
		delete(h.rooms, roomID)
	}
}

// update records the sender's snapshot and relays the original frame
// arguments to the other members. The persisted version is attributed to the
// connection's identity; the payload's userInfo only travels with the relay.
func (h *Hub) update(c *client, args []json.RawMessage) {
	roomID, ok := stringArg(args, 1)
	if !ok || len(args) == 0 {
		c.log.Warn("diagram-update without room id")
		return
	}
	state, claimed, ok := realtime.DecodeSnapshot(args[0])
	if !ok {
		c.log.Debug("ignoring diagram-update without classes", zap.String("room", roomID))
		return
	}
	if claimed != nil && claimed.UserID != "" && claimed.UserID != c.user.UserID {
		c.log.Debug("payload names another user", zap.String("room", roomID), zap.String("claimed", claimed.UserID))
	}
	frame, err := json.Marshal(realtime.Envelope{Event: realtime.EventDiagramUpdate, Args: args})
	if err != nil {
		return
	}

	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	if !ok || !rm.has(c) {
		h.mu.Unlock()
		c.log.Warn("diagram-update for a room the client is not in", zap.String("room", roomID))
		return
	}
	rm.snapshot = diagram.Load(state)
	for m := range rm.members {
		if m != c {
			m.enqueue(frame)
		}
	}
	snapshot := rm.snapshot
	h.mu.Unlock()

	if h.persist != nil {
		h.persist.Push(roomID, snapshot, c.user)
	}
}

func (h *Hub) userUpdate(c *client, args []json.RawMessage) {
	frame, err := json.Marshal(realtime.Envelope{Event: realtime.EventUserUpdate, Args: args})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range c.rooms {
		rm := h.rooms[roomID]
		for m := range rm.members {
			if m != c {
				m.enqueue(frame)
			}
		}
	}
}

// disconnect removes c from every room it joined.
func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range c.rooms {
		h.leaveLocked(c, roomID)
	}
	delete(h.clients, c)
}

func (h *Hub) presenceLocked(rm *room, subject *client, event string) {
	p := realtime.Presence{RoomID: rm.id, User: subject.user, Count: len(rm.members)}
	frame, err := encodeFrame(event, p)
	if err != nil {
		return
	}
	for m := range rm.members {
		if m != subject {
			m.enqueue(frame)
		}
	}
}

func (rm *room) has(c *client) bool {
	_, ok := rm.members[c]
	return ok
}

func (rm *room) users() []realtime.UserInfo {
	out := make([]realtime.UserInfo, 0, len(rm.members))
	for c := range rm.members {
		out = append(out, c.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func encodeFrame(event string, args ...any) ([]byte, error) {
	env, err := realtime.NewEnvelope(event, args...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func stringArg(args []json.RawMessage, i int) (string, bool) {
	if len(args) <= i {
		return "", false
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}
