package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/umlstudio/engine/internal/api/types"
	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/models"
	"github.com/umlstudio/engine/internal/realtime"
	"github.com/umlstudio/engine/internal/repository"
	"github.com/umlstudio/engine/internal/services"
	appErr "github.com/umlstudio/engine/pkg/errors"
)

type mockRoomService struct {
	mock.Mock
}

var _ services.RoomService = (*mockRoomService)(nil)

func (m *mockRoomService) CreateRoom(ctx context.Context, ownerID string, input *services.CreateRoomInput) (*models.Room, error) {
	args := m.Called(ctx, ownerID, input)
	if v := args.Get(0); v != nil {
		return v.(*models.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	args := m.Called(ctx, roomID)
	if v := args.Get(0); v != nil {
		return v.(*models.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRoomService) ListRooms(ctx context.Context, filter repository.RoomFilter) ([]models.Room, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Room), args.Get(1).(int64), args.Error(2)
}

func (m *mockRoomService) UpdateRoom(ctx context.Context, roomID string, input *services.UpdateRoomInput) (*models.Room, error) {
	args := m.Called(ctx, roomID, input)
	if v := args.Get(0); v != nil {
		return v.(*models.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRoomService) DeleteRoom(ctx context.Context, roomID string) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *mockRoomService) SaveDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) (*models.RoomDiagram, bool, error) {
	args := m.Called(ctx, roomID, state, author)
	if v := args.Get(0); v != nil {
		return v.(*models.RoomDiagram), args.Bool(1), args.Error(2)
	}
	return nil, false, args.Error(2)
}

func (m *mockRoomService) CurrentDiagram(ctx context.Context, roomID string) (*models.RoomDiagram, error) {
	args := m.Called(ctx, roomID)
	if v := args.Get(0); v != nil {
		return v.(*models.RoomDiagram), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRoomService) GetDiagramVersion(ctx context.Context, roomID string, version int) (*models.RoomDiagram, error) {
	args := m.Called(ctx, roomID, version)
	if v := args.Get(0); v != nil {
		return v.(*models.RoomDiagram), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRoomService) ListDiagramVersions(ctx context.Context, roomID string) ([]models.RoomDiagram, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).([]models.RoomDiagram), args.Error(1)
}

func (m *mockRoomService) RestoreVersion(ctx context.Context, roomID string, version int) (*models.RoomDiagram, error) {
	args := m.Called(ctx, roomID, version)
	if v := args.Get(0); v != nil {
		return v.(*models.RoomDiagram), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRoomService) LoadDiagram(ctx context.Context, roomID string) (diagram.State, bool, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(diagram.State), args.Bool(1), args.Error(2)
}

func (m *mockRoomService) PersistDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) error {
	return m.Called(ctx, roomID, state, author).Error(0)
}

type published struct {
	room   string
	state  diagram.State
	author realtime.UserInfo
}

type fakeLive struct {
	snapshots map[string]diagram.State
	sent      []published
}

func (f *fakeLive) Snapshot(roomID string) (diagram.State, bool) {
	s, ok := f.snapshots[roomID]
	return s, ok
}

func (f *fakeLive) Publish(roomID string, state diagram.State, author realtime.UserInfo) {
	f.sent = append(f.sent, published{room: roomID, state: state, author: author})
}

type fakeGenerator struct {
	state diagram.State
	err   error
}

func (f fakeGenerator) GenerateDiagram(context.Context, string, string) (diagram.State, error) {
	return f.state, f.err
}

func routes(h *RoomsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/rooms", h.List)
	r.Post("/rooms", h.Create)
	r.Get("/rooms/{id}", h.Get)
	r.Patch("/rooms/{id}", h.Update)
	r.Delete("/rooms/{id}", h.Delete)
	r.Get("/rooms/{id}/diagram", h.GetDiagram)
	r.Put("/rooms/{id}/diagram", h.SaveDiagram)
	r.Get("/rooms/{id}/versions", h.ListVersions)
	r.Get("/rooms/{id}/versions/{version}", h.GetVersion)
	r.Post("/rooms/{id}/versions/{version}/restore", h.RestoreVersion)
	r.Post("/rooms/{id}/generate", h.Generate)
	r.Get("/rooms/{id}/export/{format}", h.Export)
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func response(t *testing.T, rr *httptest.ResponseRecorder) types.APIResponse {
	t.Helper()
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func fooDiagram() diagram.State {
	return diagram.AddClass(diagram.Empty(), diagram.Class{ID: "c1", Name: "Foo", X: 10, Y: 10, Width: 200, Height: 150})
}

func stored(t *testing.T, version int, s diagram.State) *models.RoomDiagram {
	t.Helper()
	body, err := json.Marshal(s)
	require.NoError(t, err)
	return &models.RoomDiagram{RoomID: "r1", Version: version, Diagram: body, IsCurrent: true}
}

func TestListRoomsPaginates(t *testing.T) {
	svc := new(mockRoomService)
	svc.On("ListRooms", mock.Anything, repository.RoomFilter{Page: 2, PageSize: 20}).
		Return([]models.Room{{ID: "r1", Name: "one"}}, int64(21), nil)

	rr := serve(routes(NewRoomsHandler(svc, nil, nil)), http.MethodGet, "/rooms?page=2&page_size=500", "")

	require.Equal(t, http.StatusOK, rr.Code)
	resp := response(t, rr)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Page)
	assert.Equal(t, 20, resp.Meta.PageSize)
	assert.Equal(t, int64(21), resp.Meta.Total)
	svc.AssertExpectations(t)
}

func TestCreateRoomValidates(t *testing.T) {
	svc := new(mockRoomService)
	h := routes(NewRoomsHandler(svc, nil, nil))

	rr := serve(h, http.MethodPost, "/rooms", `{"description":"no name"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodPost, "/rooms", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "CreateRoom", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateRoomConflict(t *testing.T) {
	svc := new(mockRoomService)
	svc.On("CreateRoom", mock.Anything, "", &services.CreateRoomInput{Name: "dup"}).
		Return(nil, appErr.New(appErr.CodeAlreadyExists, "room already exists"))

	rr := serve(routes(NewRoomsHandler(svc, nil, nil)), http.MethodPost, "/rooms", `{"name":"dup"}`)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, string(appErr.CodeAlreadyExists), response(t, rr).Error.Code)
}

func TestGetRoomNotFound(t *testing.T) {
	svc := new(mockRoomService)
	svc.On("GetRoom", mock.Anything, "missing").Return(nil, appErr.New(appErr.CodeNotFound, "room not found"))

	rr := serve(routes(NewRoomsHandler(svc, nil, nil)), http.MethodGet, "/rooms/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateAndDeleteRoom(t *testing.T) {
	svc := new(mockRoomService)
	archived := true
	svc.On("UpdateRoom", mock.Anything, "r1", &services.UpdateRoomInput{Archived: &archived}).
		Return(&models.Room{ID: "r1", Archived: true}, nil)
	svc.On("DeleteRoom", mock.Anything, "r1").Return(nil)
	h := routes(NewRoomsHandler(svc, nil, nil))

	rr := serve(h, http.MethodPatch, "/rooms/r1", `{"archived":true}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(h, http.MethodDelete, "/rooms/r1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	svc.AssertExpectations(t)
}

func TestSaveDiagramPublishesNewVersion(t *testing.T) {
	svc := new(mockRoomService)
	live := &fakeLive{}
	svc.On("SaveDiagram", mock.Anything, "r1", mock.AnythingOfType("diagram.State"), apiAuthor).
		Return(&models.RoomDiagram{Version: 3}, true, nil)

	body, err := json.Marshal(map[string]any{"diagram": fooDiagram()})
	require.NoError(t, err)
	rr := serve(routes(NewRoomsHandler(svc, live, nil)), http.MethodPut, "/rooms/r1/diagram", string(body))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"version":3`)
	require.Len(t, live.sent, 1)
	assert.Equal(t, "r1", live.sent[0].room)
	assert.Equal(t, "Foo", live.sent[0].state.Classes[0].Name)
}

func TestSaveUnchangedDiagramIsNotPublished(t *testing.T) {
	svc := new(mockRoomService)
	live := &fakeLive{}
	svc.On("SaveDiagram", mock.Anything, "r1", mock.Anything, mock.Anything).
		Return(&models.RoomDiagram{Version: 3}, false, nil)

	rr := serve(routes(NewRoomsHandler(svc, live, nil)), http.MethodPut, "/rooms/r1/diagram", `{"diagram":{"classes":[]}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"created":false`)
	assert.Empty(t, live.sent)
}

func TestSaveDiagramRejectsPayloadWithoutClasses(t *testing.T) {
	svc := new(mockRoomService)
	h := routes(NewRoomsHandler(svc, nil, nil))

	for _, body := range []string{`{"diagram":{"relationships":[]}}`, `{"diagram":[1,2]}`, `{}`} {
		rr := serve(h, http.MethodPut, "/rooms/r1/diagram", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	svc.AssertNotCalled(t, "SaveDiagram", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVersions(t *testing.T) {
	svc := new(mockRoomService)
	svc.On("ListDiagramVersions", mock.Anything, "r1").
		Return([]models.RoomDiagram{{Version: 2}, {Version: 1}}, nil)
	svc.On("GetDiagramVersion", mock.Anything, "r1", 1).Return(stored(t, 1, fooDiagram()), nil)
	h := routes(NewRoomsHandler(svc, nil, nil))

	rr := serve(h, http.MethodGet, "/rooms/r1/versions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(2), response(t, rr).Meta.Total)

	rr = serve(h, http.MethodGet, "/rooms/r1/versions/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Foo"`)

	rr = serve(h, http.MethodGet, "/rooms/r1/versions/zero", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRestoreVersionPublishes(t *testing.T) {
	svc := new(mockRoomService)
	live := &fakeLive{}
	svc.On("RestoreVersion", mock.Anything, "r1", 1).Return(stored(t, 1, fooDiagram()), nil)

	rr := serve(routes(NewRoomsHandler(svc, live, nil)), http.MethodPost, "/rooms/r1/versions/1/restore", "")

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, live.sent, 1)
	assert.Equal(t, "c1", live.sent[0].state.Classes[0].ID)
}

func TestGenerateSavesAssistantDiagram(t *testing.T) {
	svc := new(mockRoomService)
	svc.On("SaveDiagram", mock.Anything, "r1", fooDiagram(), apiAuthor).
		Return(&models.RoomDiagram{Version: 1}, true, nil)
	h := routes(NewRoomsHandler(svc, nil, fakeGenerator{state: fooDiagram()}))

	rr := serve(h, http.MethodPost, "/rooms/r1/generate", `{"prompt":"a library"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	svc.AssertExpectations(t)
}

func TestGenerateWithoutAssistant(t *testing.T) {
	rr := serve(routes(NewRoomsHandler(new(mockRoomService), nil, nil)), http.MethodPost, "/rooms/r1/generate", `{"prompt":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGenerateAssistantFailure(t *testing.T) {
	gen := fakeGenerator{err: appErr.New(appErr.CodeDeadline, "assistant timed out")}
	rr := serve(routes(NewRoomsHandler(new(mockRoomService), nil, gen)), http.MethodPost, "/rooms/r1/generate", `{"prompt":"x"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func TestExportPrefersLiveSnapshot(t *testing.T) {
	svc := new(mockRoomService)
	live := &fakeLive{snapshots: map[string]diagram.State{"r1": fooDiagram()}}
	svc.On("CurrentDiagram", mock.Anything, "r2").Return(stored(t, 1, diagram.AddClass(diagram.Empty(),
		diagram.Class{ID: "b", Name: "Bar", Width: 10, Height: 10})), nil)
	h := routes(NewRoomsHandler(svc, live, nil))

	rr := serve(h, http.MethodGet, "/rooms/r1/export/mermaid", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "class Foo")
	svc.AssertNotCalled(t, "CurrentDiagram", mock.Anything, "r1")

	rr = serve(h, http.MethodGet, "/rooms/r2/export/mermaid", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "class Bar")
}
