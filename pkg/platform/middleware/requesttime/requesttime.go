// Package requesttime pins one "now" per request. Every timestamp a ledger
// command writes (custody records, listings, returns) uses it.
package requesttime

import (
	"net/http"
	"time"

	"provenance/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
