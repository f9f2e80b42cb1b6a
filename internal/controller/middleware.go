package controller

import (
	"log/slog"
	"net/http"

	"github.com/meetsync/sfu-server/pkg/ctxlogger"
	"github.com/meetsync/sfu-server/pkg/rest"
)

const adminKeyHeader = "Ms-Admin-Key"

func (c *controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ctxlogger.AppendCtx(r.Context(), slog.String("request_id", c.generateTimeBasedId()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c *controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"url", r.URL.String(),
			"remote_addr", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}

// adminKeyMw guards backend-facing endpoints with the shared secret; an empty
// configured key rejects everything.
func (c *controller) adminKeyMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.adminKey == "" || r.Header.Get(adminKeyHeader) != c.adminKey {
			rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
