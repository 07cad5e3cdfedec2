// Package middleware provides HTTP middleware for bizops.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/bizops/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags the request context with the caller's X-Request-ID, or a
// fresh UUID when the header is absent or unusable, and echoes it back.
// The same ID rides NATS headers into the scheduler pass it triggers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// validRequestID accepts 1-128 characters from [A-Za-z0-9._:-], which keeps
// client IDs safe to place in log lines and message headers.
func validRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := range len(id) {
		switch c := id[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
