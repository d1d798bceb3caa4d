package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/umlstudio/engine/internal/api/handlers"
	mw "github.com/umlstudio/engine/internal/api/middleware"
	"github.com/umlstudio/engine/internal/hub"
	"github.com/umlstudio/engine/internal/realtime"
)

type Dependencies struct {
	HMACSecret    []byte
	Hub           *hub.Hub
	RoomsHandler  *handlers.RoomsHandler
	ExportHandler *handlers.ExportHandler
	HealthChecks  []handlers.Check
	CORSOrigins   []string
	RateLimit     mw.RateLimitOptions
}

// Identify names websocket users from the verified token when there is one
// and from the query string otherwise.
func Identify(r *http.Request) realtime.UserInfo {
	if u, ok := mw.GetUser(r.Context()); ok {
		return u
	}
	return hub.IdentifyFromQuery(r)
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS(dep.CORSOrigins))
	r.Use(mw.Identity(dep.HMACSecret))

	// Health endpoints
	hh := handlers.NewHealthHandler(dep.HealthChecks...)
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	// Realtime rooms; upgrades skip compression and rate limiting. Room
	// snapshots are persisted, so upgrades need a verified user once tokens
	// are configured, like the REST writes below.
	if dep.Hub != nil {
		var ws http.Handler = dep.Hub
		if len(dep.HMACSecret) > 0 {
			ws = mw.RequireUser(ws)
		}
		r.Handle("/ws", ws)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(mw.RateLimit(dep.RateLimit))
		api.Use(chimid.Compress(5))

		if dep.Hub != nil {
			lh := handlers.NewLiveHandler(dep.Hub)
			api.Get("/live/rooms", lh.List)
		}

		eh := dep.ExportHandler
		if eh == nil {
			eh = handlers.NewExportHandler()
		}
		api.Post("/export/{format}", eh.Render)
		api.Post("/import/project", eh.Import)

		rh := dep.RoomsHandler
		if rh == nil {
			return
		}
		api.Route("/rooms", func(rr chi.Router) {
			rr.Get("/", rh.List)
			rr.Get("/{id}", rh.Get)
			rr.Get("/{id}/diagram", rh.GetDiagram)
			rr.Get("/{id}/versions", rh.ListVersions)
			rr.Get("/{id}/versions/{version}", rh.GetVersion)
			rr.Get("/{id}/export/{format}", rh.Export)

			// Writes need a verified user once tokens are configured
			rr.Group(func(wr chi.Router) {
				if len(dep.HMACSecret) > 0 {
					wr.Use(mw.RequireUser)
				}
				wr.Post("/", rh.Create)
				wr.Patch("/{id}", rh.Update)
				wr.Delete("/{id}", rh.Delete)
				wr.Put("/{id}/diagram", rh.SaveDiagram)
				wr.Post("/{id}/versions/{version}/restore", rh.RestoreVersion)
				wr.Post("/{id}/generate", rh.Generate)
			})
		})
	})

	return r
}
