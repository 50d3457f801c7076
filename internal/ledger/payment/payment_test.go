package payment

//go:generate mockgen -source=authority.go -destination=mocks/mocks.go -package=mocks Authority

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sampleTransfer() Transfer {
	return Transfer{Reference: "lot-listing:0", Payer: "buyer", Payee: "seller", Amount: 50}
}

func TestInMemory_TransferAndReverse(t *testing.T) {
	ctx := context.Background()
	m := NewInMemory()

	r, err := m.Transfer(ctx, sampleTransfer())
	require.NoError(t, err)
	assert.Equal(t, uint64(50), m.Received(id.AccountID("seller")))
	assert.Equal(t, 1, m.Settled())

	require.NoError(t, m.Reverse(ctx, r))
	require.NoError(t, m.Reverse(ctx, r), "reversal is idempotent")
	assert.True(t, m.Reversed(r.ID))
	assert.Zero(t, m.Received(id.AccountID("seller")))
	assert.Zero(t, m.Settled())
}

func TestInMemory_FailNext(t *testing.T) {
	m := NewInMemory()
	m.FailNext(dErrors.New(dErrors.CodeOperationFailed, "authority offline"))

	_, err := m.Transfer(context.Background(), sampleTransfer())
	assert.True(t, dErrors.Is(err, dErrors.CodeOperationFailed))

	_, err = m.Transfer(context.Background(), sampleTransfer())
	assert.NoError(t, err, "failure is injected once")
}

func TestInMemory_ReverseUnknownReceipt(t *testing.T) {
	err := NewInMemory().Reverse(context.Background(), Receipt{ID: "missing"})
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func newAuthorityServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Timeout: time.Second, MaxFailures: 2, OpenTimeout: time.Minute}, discard())
	require.NoError(t, err)
	return c
}

func TestHTTPClient_Transfer(t *testing.T) {
	c := newAuthorityServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers", r.URL.Path)
		var tr Transfer
		require.NoError(t, json.NewDecoder(r.Body).Decode(&tr))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Receipt{ID: "rcpt-1", Transfer: tr, SettledAt: time.Now()})
	})

	r, err := c.Transfer(context.Background(), sampleTransfer())
	require.NoError(t, err)
	assert.Equal(t, "rcpt-1", r.ID)
	assert.Equal(t, uint64(50), r.Transfer.Amount)
}

func TestHTTPClient_InsufficientFunds(t *testing.T) {
	c := newAuthorityServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"insufficient_funds","error_description":"buyer balance too low"}`))
	})

	_, err := c.Transfer(context.Background(), sampleTransfer())
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInsufficientPayment))
	assert.Equal(t, "buyer balance too low", dErrors.Message(err))
	assert.Equal(t, "closed", c.State(), "refusals do not trip the breaker")
}

func TestHTTPClient_BreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	c := newAuthorityServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for range 2 {
		_, err := c.Transfer(context.Background(), sampleTransfer())
		assert.True(t, dErrors.Is(err, dErrors.CodeOperationFailed))
	}
	assert.Equal(t, "open", c.State())

	_, err := c.Transfer(context.Background(), sampleTransfer())
	assert.True(t, dErrors.Is(err, dErrors.CodeOperationFailed))
	assert.Equal(t, int32(2), calls.Load(), "open breaker short-circuits")
}

func TestHTTPClient_Reverse(t *testing.T) {
	c := newAuthorityServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers/rcpt-9/reverse", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Reverse(context.Background(), Receipt{ID: "rcpt-9"}))
}

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{BaseURL: "not a url"}, discard())
	assert.Error(t, err)
}
