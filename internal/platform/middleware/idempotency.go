package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"provenance/internal/platform/metrics"
	"provenance/pkg/requestcontext"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyStore reserves keys for a bounded time.
type IdempotencyStore interface {
	// Reserve returns false when key is already held.
	Reserve(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency rejects a repeated write that carries an Idempotency-Key the
// same caller already used. Keys are released again when the handler fails
// with a server error so the client can retry. Store failures fail open.
func Idempotency(store IdempotencyStore, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if store == nil || key == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			scoped := "idem:" + requestcontext.AccountID(ctx).String() + ":" + r.Method + ":" + r.URL.Path + ":" + key

			ok, err := store.Reserve(ctx, scoped)
			if err != nil {
				m.IncIdempotencyError()
				logger.WarnContext(ctx, "idempotency store unavailable",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				m.IncIdempotentHit()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"conflict","error_description":"request with this Idempotency-Key was already processed"}`))
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.Status() >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(ctx), scoped); err != nil {
					logger.WarnContext(ctx, "failed to release idempotency key",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
				}
			}
		})
	}
}
