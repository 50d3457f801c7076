// Package store serializes access to the ledger state. Every command runs
// against a private copy; the copy becomes the committed state only when the
// command returns nil.
package store

import (
	"context"
	"time"

	"provenance/internal/ledger/models"
	dErrors "provenance/pkg/domain-errors"
)

// TxFunc mutates st. Returning an error discards every change.
type TxFunc func(ctx context.Context, st *models.State) error

// Store is the ledger's single-writer transactional boundary.
type Store interface {
	// RunInTx runs fn with exclusive access to a copy of the state.
	RunInTx(ctx context.Context, fn TxFunc) error
	// View runs fn against a consistent snapshot. fn must not mutate st.
	View(ctx context.Context, fn func(st *models.State) error) error
}

// DefaultTxTimeout bounds a command that arrives without a deadline.
const DefaultTxTimeout = 5 * time.Second

// withTxDeadline applies timeout unless ctx already carries a deadline.
func withTxDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func abortIfDone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}
