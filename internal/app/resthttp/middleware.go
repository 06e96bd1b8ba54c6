package resthttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sir_venger/mediarelay/internal/logging"
	"github.com/sir_venger/mediarelay/pkg/relayproto"
)

type contextKey string

const requestIDKey contextKey = "requestID"

const maxRequestIDLen = 128

// requestID переиспользует входящий X-Request-ID либо выдаёт новый UUID.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(relayproto.HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(relayproto.HeaderRequestID, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the request id stored by the server middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) reqLog(r *http.Request) logging.Logger {
	if id := RequestIDFrom(r.Context()); id != "" {
		return s.Log.With("request_id", id)
	}
	return s.Log
}

// accessLog пишет по строке на каждый запрос.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.reqLog(r).Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"client", r.RemoteAddr,
		)
	})
}
