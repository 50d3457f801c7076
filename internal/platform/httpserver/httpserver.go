package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// New builds the ledger's HTTP server. The write deadline leaves a margin
// over requestTimeout so a timed-out handler can still write its 504.
func New(addr string, handler http.Handler, logger *slog.Logger, requestTimeout time.Duration) *http.Server {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}
