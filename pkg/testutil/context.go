package testutil

import (
	"net/http"

	id "provenance/pkg/domain"
	"provenance/pkg/requestcontext"
)

// WithAccount authenticates the request as account, as RequireAuth would.
// Invalid accounts are silently ignored.
func WithAccount(req *http.Request, account string) *http.Request {
	if parsed, err := id.ParseAccountID(account); err == nil {
		return req.WithContext(requestcontext.WithAccountID(req.Context(), parsed))
	}
	return req
}
