package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/umlstudio/engine/internal/api/middleware"
	"github.com/umlstudio/engine/internal/api/types"
	"github.com/umlstudio/engine/internal/api/validators"
	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/realtime"
	appErr "github.com/umlstudio/engine/pkg/errors"
)

// apiAuthor is recorded for writes made without a verified identity.
var apiAuthor = realtime.UserInfo{UserID: "api", UserName: "API"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status that matches the error's code.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, appErr.HTTPStatus(appErr.CodeOf(err)), types.APIResponse{Success: false, Error: types.FromAppError(err)})
}

func writeErrorStr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.APIResponse{Success: false, Error: &types.APIError{Code: "invalid", Message: msg}})
}

// decode reads a JSON body into req and validates it.
func decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// decodeDiagram accepts only objects that carry a classes array.
func decodeDiagram(w http.ResponseWriter, raw json.RawMessage) (diagram.State, bool) {
	state, _, ok := realtime.DecodeSnapshot(raw)
	if !ok {
		writeErrorStr(w, http.StatusBadRequest, "diagram must be an object with a classes array")
		return diagram.State{}, false
	}
	return state, true
}

func author(r *http.Request) realtime.UserInfo {
	if u, ok := middleware.GetUser(r.Context()); ok {
		return u
	}
	return apiAuthor
}

func versionParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || v < 1 {
		writeErrorStr(w, http.StatusBadRequest, "version must be a positive integer")
		return 0, false
	}
	return v, true
}
