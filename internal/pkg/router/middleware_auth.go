package router

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// AdminToken guards an endpoint with a static bearer token. An empty token
// disables the endpoint entirely.
func AdminToken(token string) Middleware {
	want := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 {
				writeJSON(w, errorResponse{Message: "admin api is disabled"}, http.StatusForbidden)
				return
			}

			p := strings.Fields(r.Header.Get("Authorization"))
			if len(p) != 2 || !strings.EqualFold(p[0], "Bearer") {
				writeJSON(w, errorResponse{Message: "Authentication required"}, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(p[1]), want) != 1 {
				slog.WarnContext(r.Context(), "rejected admin token", "address", r.RemoteAddr, "path", routePattern(r))
				writeJSON(w, errorResponse{Message: "Invalid admin token"}, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
