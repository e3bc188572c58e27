package router

import (
	"net"
	"net/http"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/allowlist"
)

// middlewareIP replaces r.RemoteAddr with the bare client IP. Forwarding
// headers are honoured only when the TCP peer is a trusted proxy, otherwise
// any client could choose the address it is rate limited under.
func middlewareIP(trusted *allowlist.Matcher) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rip := realIP(r, trusted); rip != "" {
				r.RemoteAddr = rip
			}
			next.ServeHTTP(w, r)
		})
	}
}

func realIP(r *http.Request, trusted *allowlist.Matcher) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if net.ParseIP(peer) == nil {
		return ""
	}

	if trusted == nil || !trusted.Contains(peer) {
		return peer
	}

	var ip string
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		ip = xrip
	} else if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = forwardedClient(xff, trusted)
	}

	ip = strings.TrimSpace(ip)
	if ip == "" || net.ParseIP(ip) == nil {
		return peer
	}
	return ip
}

// forwardedClient walks X-Forwarded-For from the right and returns the first
// hop that is not a trusted proxy.
func forwardedClient(xff string, trusted *allowlist.Matcher) string {
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !trusted.Contains(hop) || i == 0 {
			return hop
		}
	}
	return ""
}
