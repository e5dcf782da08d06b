// Package requesttime provides middleware for request-scoped time and ids.
// All ledger writes within a single HTTP request observe the same "now", so a
// donation record, its escrow update and its event share one timestamp.
package requesttime

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"impactledger/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID copies chi's request id into requestcontext so events carry it.
// Mount after middleware.RequestID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(requestcontext.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
