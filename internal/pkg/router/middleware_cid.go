package router

import (
	"net/http"

	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
)

const (
	// HeaderCorrelationID carries the id that ties a login attempt's check and
	// verify calls together across the router, this service and the audit log.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is accepted from proxies that only set this name.
	HeaderRequestID = "X-Request-ID"
)

const maxCorrelationIDLen = 128

// correlationIDHeaders is the lookup order for an inbound id.
var correlationIDHeaders = []string{HeaderCorrelationID, HeaderRequestID}

// cleanCorrelationID returns v when it is a usable id and "" otherwise.
// Only visible ASCII is kept so the value is safe to echo and to log.
func cleanCorrelationID(v string) string {
	if v == "" || len(v) > maxCorrelationIDLen {
		return ""
	}
	for i := 0; i < len(v); i++ {
		if v[i] <= ' ' || v[i] > '~' {
			return ""
		}
	}
	return v
}

func middlewareCorrelationID(ids uid.StringID) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cid string
			for _, h := range correlationIDHeaders {
				if cid = cleanCorrelationID(r.Header.Get(h)); cid != "" {
					break
				}
			}
			if cid == "" && ids != nil {
				cid = ids.Generate()
			}

			if cid != "" {
				w.Header().Set(HeaderCorrelationID, cid)
				r = r.WithContext(instrument.SetCorrelationID(r.Context(), cid))
			}

			next.ServeHTTP(w, r)
		})
	}
}
