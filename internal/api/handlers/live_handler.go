package handlers

import (
	"net/http"

	"github.com/umlstudio/engine/internal/api/types"
	"github.com/umlstudio/engine/internal/hub"
)

// LiveHandler reports rooms that currently have connected members.
type LiveHandler struct {
	rooms interface{ Rooms() []hub.RoomInfo }
}

func NewLiveHandler(rooms interface{ Rooms() []hub.RoomInfo }) *LiveHandler {
	return &LiveHandler{rooms: rooms}
}

func (h *LiveHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.rooms.Rooms()
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items, Meta: &types.Meta{Total: int64(len(items))}})
}
