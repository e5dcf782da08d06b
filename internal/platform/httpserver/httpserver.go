// Package httpserver builds the ledger's *http.Server and its readiness probe.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"impactledger/pkg/platform/httputil"
)

type Option func(*http.Server)

// WithWriteTimeout bounds a whole response. It must exceed the router's
// per-request timeout or slow handlers are cut off without an error body.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *http.Server) { s.WriteTimeout = d }
}

// WithErrorLog routes net/http's internal errors (TLS handshakes, panics in
// hijacked conns) to the service logger.
func WithErrorLog(logger *slog.Logger) Option {
	return func(s *http.Server) { s.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn) }
}

func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// Readiness answers 200 when every check passes within timeout and 503 with
// the failing dependencies otherwise.
func Readiness(checks map[string]Check, timeout time.Duration) http.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		body := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	})
}
