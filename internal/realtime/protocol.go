// Package realtime keeps an editor in sync with a room over a real-time
// channel.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/umlstudio/engine/internal/diagram"
)

// Event names of the room protocol.
const (
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventDiagramUpdate = "diagram-update"
	EventDiagramLoaded = "diagram-loaded"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventUserUpdate    = "user-update"

	// Connection lifecycle events raised by the channel itself.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// RoomEvents are the subscriptions dropped when leaving a room. Connection
// lifecycle subscriptions survive.
var RoomEvents = []string{
	EventDiagramUpdate,
	EventDiagramLoaded,
	EventUserJoined,
	EventUserLeft,
	EventUserUpdate,
}

// Handler receives the JSON arguments of an inbound event.
type Handler func(args []json.RawMessage)

// Channel is a bidirectional event channel to the collaboration server.
// Emit is fire and forget. Handlers run on the channel's reader goroutine.
type Channel interface {
	// Connect dials once; later calls are no-ops while connected.
	Connect(ctx context.Context) error
	Emit(event string, args ...any) error
	On(event string, h Handler)
	Off(event string)
	Close() error
}

// UserInfo identifies the author of a broadcast.
type UserInfo struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// UpdatePayload is a full snapshot tagged with its author.
type UpdatePayload struct {
	diagram.State
	UserInfo *UserInfo `json:"userInfo,omitempty"`
}

// Presence is a user-joined, user-left or user-update notification.
type Presence struct {
	Event  string          `json:"-"`
	RoomID string          `json:"roomId,omitempty"`
	User   UserInfo        `json:"user"`
	Count  int             `json:"count,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// DecodeSnapshot accepts any JSON object carrying a "classes" key, an empty
// array included, and returns it as a snapshot with its author if present.
func DecodeSnapshot(raw json.RawMessage) (diagram.State, *UserInfo, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil || probe == nil {
		return diagram.State{}, nil, false
	}
	if _, ok := probe["classes"]; !ok {
		return diagram.State{}, nil, false
	}
	var p UpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return diagram.State{}, nil, false
	}
	return p.State, p.UserInfo, true
}

// DecodePresence parses a presence payload. Unknown shapes are kept in Raw.
func DecodePresence(event string, raw json.RawMessage) Presence {
	var p Presence
	_ = json.Unmarshal(raw, &p)
	p.Event = event
	p.Raw = raw
	return p
}
