package middleware

import (
    "context"
    "net/http"
    "github.com/google/uuid"
    "github.com/umlstudio/engine/pkg/logger"
    "go.uber.org/zap"
)

type ctxKey string

const (
    RequestIDKey ctxKey = "request_id"
    loggerKey    ctxKey = "logger"

    maxRequestIDLen = 64
)

// RequestID ensures each request has an ID in context and response headers,
// and a logger that carries it. Client ids that are too long or not
// token-like are replaced.
func RequestID(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        id := r.Header.Get("X-Request-ID")
        if !validRequestID(id) {
            id = uuid.NewString()
        }
        w.Header().Set("X-Request-ID", id)
        ctx := context.WithValue(r.Context(), RequestIDKey, id)
        ctx = context.WithValue(ctx, loggerKey, logger.L().With(zap.String("request_id", id)))
        next.ServeHTTP(w, r.WithContext(ctx))
    })
}

// GetRequestID returns the request id from context.
func GetRequestID(ctx context.Context) string {
    if v := ctx.Value(RequestIDKey); v != nil {
        if s, ok := v.(string); ok { return s }
    }
    return ""
}

// Log returns the request-scoped logger, or the global one outside a request.
func Log(ctx context.Context) *zap.Logger {
    if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
        return l
    }
    return logger.L()
}

func validRequestID(id string) bool {
    if id == "" || len(id) > maxRequestIDLen {
        return false
    }
    for _, c := range id {
        switch {
        case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
        default:
            return false
        }
    }
    return true
}
