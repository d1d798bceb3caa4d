package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/api/middleware"
	"github.com/umlstudio/engine/internal/api/types"
	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/realtime"
	"github.com/umlstudio/engine/internal/repository"
	"github.com/umlstudio/engine/internal/services"
	appErr "github.com/umlstudio/engine/pkg/errors"
	"github.com/umlstudio/engine/pkg/logger"
)

// Live is the realtime side of a room: the latest in-memory snapshot and a
// way to push a saved diagram to the members.
type Live interface {
	Snapshot(roomID string) (diagram.State, bool)
	Publish(roomID string, state diagram.State, author realtime.UserInfo)
}

// Generator produces a diagram from a prompt.
type Generator interface {
	GenerateDiagram(ctx context.Context, prompt, style string) (diagram.State, error)
}

type RoomsHandler struct {
	svc  services.RoomService
	live Live
	ai   Generator
	log  *zap.Logger
}

// NewRoomsHandler wires the room endpoints. live and ai may be nil.
func NewRoomsHandler(svc services.RoomService, live Live, ai Generator) *RoomsHandler {
	return &RoomsHandler{svc: svc, live: live, ai: ai, log: logger.Named("api.rooms")}
}

func (h *RoomsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	filter := repository.RoomFilter{Page: page, PageSize: size, IncludeArchived: q.Get("archived") == "true"}
	if q.Get("mine") == "true" {
		filter.OwnerID = middleware.GetUserID(r.Context())
	}
	items, total, err := h.svc.ListRooms(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := types.APIResponse{Success: true, Data: items, Meta: &types.Meta{
		RequestID: middleware.GetRequestID(r.Context()),
		Page:      page,
		PageSize:  size,
		Total:     total,
	}}
	writeJSON(w, http.StatusOK, resp)
}

func (h *RoomsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.RoomCreateRequest
	if !decode(w, r, &req) {
		return
	}
	room, err := h.svc.CreateRoom(r.Context(), middleware.GetUserID(r.Context()), &services.CreateRoomInput{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: room})
}

func (h *RoomsHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.svc.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: room})
}

func (h *RoomsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req types.RoomUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	room, err := h.svc.UpdateRoom(r.Context(), chi.URLParam(r, "id"), &services.UpdateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		Archived:    req.Archived,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: room})
}

func (h *RoomsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRoom(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDiagram returns the room's current version.
func (h *RoomsHandler) GetDiagram(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.CurrentDiagram(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: d})
}

// SaveDiagram stores a snapshot as a new version and pushes it to the live
// room. Saving an unchanged diagram keeps the current version.
func (h *RoomsHandler) SaveDiagram(w http.ResponseWriter, r *http.Request) {
	var req types.DiagramSaveRequest
	if !decode(w, r, &req) {
		return
	}
	state, ok := decodeDiagram(w, req.Diagram)
	if !ok {
		return
	}
	h.save(w, r, chi.URLParam(r, "id"), state)
}

func (h *RoomsHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListDiagramVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items, Meta: &types.Meta{Total: int64(len(items))}})
}

func (h *RoomsHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, ok := versionParam(w, r)
	if !ok {
		return
	}
	d, err := h.svc.GetDiagramVersion(r.Context(), chi.URLParam(r, "id"), v)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: d})
}

// RestoreVersion makes an older version current and pushes it to the room.
func (h *RoomsHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	v, ok := versionParam(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")
	d, err := h.svc.RestoreVersion(r.Context(), roomID, v)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := services.DecodeDiagram(d.Diagram)
	if err != nil {
		writeError(w, err)
		return
	}
	h.publish(roomID, state, author(r))
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: types.SaveResult{Version: d.Version}})
}

// Generate asks the assistant for a diagram and saves it into the room.
func (h *RoomsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.ai == nil {
		writeError(w, appErr.New(appErr.CodeUnavailable, "assistant is not configured"))
		return
	}
	var req types.GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	state, err := h.ai.GenerateDiagram(r.Context(), req.Prompt, req.Style)
	if err != nil {
		writeError(w, err)
		return
	}
	h.save(w, r, chi.URLParam(r, "id"), state)
}

// Export renders the room in format. A live room is exported from its
// in-memory snapshot, anything else from the current version.
func (h *RoomsHandler) Export(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	state, err := h.current(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeExport(w, chi.URLParam(r, "format"), state, exportOptions(r))
}

func (h *RoomsHandler) current(ctx context.Context, roomID string) (diagram.State, error) {
	if h.live != nil {
		if s, ok := h.live.Snapshot(roomID); ok {
			return s, nil
		}
	}
	d, err := h.svc.CurrentDiagram(ctx, roomID)
	if err != nil {
		return diagram.State{}, err
	}
	return services.DecodeDiagram(d.Diagram)
}

func (h *RoomsHandler) save(w http.ResponseWriter, r *http.Request, roomID string, state diagram.State) {
	who := author(r)
	d, created, err := h.svc.SaveDiagram(r.Context(), roomID, state, who)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.publish(roomID, state, who)
	}
	writeJSON(w, status, types.APIResponse{Success: true, Data: types.SaveResult{Version: d.Version, Created: created}})
}

func (h *RoomsHandler) publish(roomID string, state diagram.State, who realtime.UserInfo) {
	if h.live == nil {
		return
	}
	h.live.Publish(roomID, state, who)
	h.log.Debug("published to live room", zap.String("room_id", roomID), zap.String("author", who.UserID))
}
