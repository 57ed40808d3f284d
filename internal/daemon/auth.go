package daemon

import (
	"net/http"
	"strings"
)

// requireAuth wraps a handler with bearer token validation, answering
// failures in the API's JSON error shape. An empty configured token disables
// authentication and passes every request through.
func (s *apiServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		value := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(value, "Bearer ")
		if !ok || token != s.token {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
