// Package requestcontext carries request-scoped values between the HTTP
// middleware that sets them and the ledger service that reads them. It does
// not import net/http.
package requestcontext

import (
	"context"
	"time"

	id "provenance/pkg/domain"
)

type key int

const (
	callerKey key = iota
	requestIDKey
	clientKey
	clockKey
)

type client struct {
	ip        string
	userAgent string
}

// AccountID returns the authenticated caller, or the zero AccountID when the
// request was not authenticated.
func AccountID(ctx context.Context) id.AccountID {
	caller, _ := ctx.Value(callerKey).(id.AccountID)
	return caller
}

func WithAccountID(ctx context.Context, caller id.AccountID) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func ClientIP(ctx context.Context) string {
	c, _ := ctx.Value(clientKey).(client)
	return c.ip
}

func UserAgent(ctx context.Context) string {
	c, _ := ctx.Value(clientKey).(client)
	return c.userAgent
}

// WithClientMetadata records where the request came from. Both values end
// up on audit events.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey, client{ip: clientIP, userAgent: userAgent})
}

// Now returns the time the request was received. Contexts without one
// (relay workers, some tests) get the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(clockKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time. Every record written by one ledger
// operation carries this timestamp.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, clockKey, t)
}
