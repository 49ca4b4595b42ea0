package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

const (
	requestIDHeader  = "X-Request-Id"
	cloudTraceHeader = "X-Cloud-Trace-Context"
	maxRequestIDLen  = 128
)

// RequestID picks the request id from X-Request-Id, then from the trace id of
// the load balancer's X-Cloud-Trace-Context, and mints one otherwise. The id is
// echoed on the response and attached to the request logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := cleanRequestID(r.Header.Get(requestIDHeader))
			if id == "" {
				trace, _, _ := strings.Cut(r.Header.Get(cloudTraceHeader), "/")
				id = cleanRequestID(trace)
			}
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			if logg != nil {
				r = r.WithContext(logg.WithRequestID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cleanRequestID drops characters that do not belong in a log field or header
// and caps the length.
func cleanRequestID(raw string) string {
	id := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c == '-', c == '_', c == '.', c == ':':
			return c
		}
		return -1
	}, strings.TrimSpace(raw))
	if len(id) > maxRequestIDLen {
		id = id[:maxRequestIDLen]
	}
	return id
}
