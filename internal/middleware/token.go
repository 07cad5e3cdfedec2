package middleware

import (
	"crypto/subtle"
	"net/http"
)

// HeaderSchedulerToken carries the shared secret of the scheduler trigger.
const HeaderSchedulerToken = "X-Scheduler-Token"

// SharedToken returns middleware that validates a static secret header.
// An unconfigured token disables the route.
func SharedToken(token, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSONError(w, http.StatusServiceUnavailable, "trigger token not configured")
				return
			}

			got := r.Header.Get(header)
			if got == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing "+header)
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSONError(w, http.StatusForbidden, "invalid "+header)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
