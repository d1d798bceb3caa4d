package middleware

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "time"
    "go.uber.org/zap"
)

// Logging logs one line per request through the request-scoped logger.
func Logging(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rw, r)
        Log(r.Context()).Info("request",
            zap.String("method", r.Method),
            zap.String("path", r.URL.Path),
            zap.Int("status", rw.status),
            zap.Duration("duration", time.Since(start)),
            zap.String("remote", r.RemoteAddr),
            zap.String("user", GetUserID(r.Context())),
        )
    })
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}
func (s *statusRecorder) WriteHeader(code int) { s.status = code; s.ResponseWriter.WriteHeader(code) }

func (s *statusRecorder) Flush() {
    if f, ok := s.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

// Hijack lets websocket upgrades through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := s.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("response writer does not support hijacking") }
    s.status = http.StatusSwitchingProtocols
    return h.Hijack()
}


