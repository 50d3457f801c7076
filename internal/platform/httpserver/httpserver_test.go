package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("write timeout outlasts the request timeout", func(t *testing.T) {
		srv := New(":0", http.NotFoundHandler(), logger, 10*time.Second)
		assert.Equal(t, 15*time.Second, srv.WriteTimeout)
		assert.NotNil(t, srv.ErrorLog)
	})

	t.Run("zero request timeout falls back to default", func(t *testing.T) {
		srv := New(":0", http.NotFoundHandler(), logger, 0)
		assert.Equal(t, 35*time.Second, srv.WriteTimeout)
	})
}
