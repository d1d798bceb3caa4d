package handlers

import (
    "context"
    "net/http"
    "time"
    "github.com/umlstudio/engine/internal/api/types"
)

// Check is one readiness probe, e.g. a database ping.
type Check struct {
    Name string
    Fn   func(ctx context.Context) error
}

type HealthHandler struct{ checks []Check }

func NewHealthHandler(checks ...Check) *HealthHandler { return &HealthHandler{checks: checks} }

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

// Readiness runs every check; any failure answers 503 with the failing names.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
    defer cancel()
    status := map[string]string{"status": "ready"}
    code := http.StatusOK
    for _, c := range h.checks {
        if err := c.Fn(ctx); err != nil {
            status[c.Name] = err.Error()
            status["status"] = "degraded"
            code = http.StatusServiceUnavailable
            continue
        }
        status[c.Name] = "ok"
    }
    writeJSON(w, code, types.APIResponse{Success: code == http.StatusOK, Data: status})
}
