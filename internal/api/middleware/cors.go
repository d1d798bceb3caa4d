package middleware

import (
    "net/http"
    "strings"
)

const (
    corsMethods = "GET,POST,PUT,PATCH,DELETE,OPTIONS"
    corsHeaders = "Authorization,Content-Type,Accept,X-Request-ID"
    // exports arrive as attachments and clients read the file name
    corsExpose = "X-Request-ID,Content-Disposition,Retry-After"
    corsMaxAge = "600"
)

// CORS answers browsers calling the REST API from the allowed origins. An
// empty list or "*" allows any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
    anyOrigin := len(origins) == 0
    for _, o := range origins {
        if o == "*" { anyOrigin = true }
    }
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            origin := r.Header.Get("Origin")
            h := w.Header()
            switch {
            case anyOrigin:
                h.Set("Access-Control-Allow-Origin", "*")
            case origin != "" && AllowOrigin(origins, origin):
                h.Set("Access-Control-Allow-Origin", origin)
                h.Add("Vary", "Origin")
            }
            h.Set("Access-Control-Expose-Headers", corsExpose)

            if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
                h.Set("Access-Control-Allow-Methods", corsMethods)
                h.Set("Access-Control-Allow-Headers", corsHeaders)
                h.Set("Access-Control-Max-Age", corsMaxAge)
                w.WriteHeader(http.StatusNoContent)
                return
            }
            next.ServeHTTP(w, r)
        })
    }
}

// AllowOrigin reports whether origin is in the allow list. Requests without
// an Origin header come from non-browser clients and are allowed.
func AllowOrigin(origins []string, origin string) bool {
    if origin == "" || len(origins) == 0 {
        return true
    }
    for _, o := range origins {
        if o == "*" || strings.EqualFold(o, origin) { return true }
    }
    return false
}
