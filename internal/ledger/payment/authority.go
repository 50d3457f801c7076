// Package payment settles purchase amounts through an external payment
// authority. The ledger never holds balances; it only asks the authority to
// move value from buyer to seller and, when the ledger commit fails after a
// successful transfer, to reverse it.
package payment

import (
	"context"
	"time"

	id "provenance/pkg/domain"
)

// Transfer is a request to move Amount from Payer to Payee. Reference is
// stable per listing and payer so the authority can deduplicate retries.
type Transfer struct {
	Reference string       `json:"reference"`
	Payer     id.AccountID `json:"payer"`
	Payee     id.AccountID `json:"payee"`
	Amount    uint64       `json:"amount"`
}

// Receipt proves a settled transfer.
type Receipt struct {
	ID        string    `json:"id"`
	Transfer  Transfer  `json:"transfer"`
	SettledAt time.Time `json:"settled_at"`
}

// Authority is the settlement port. Implementations return domain errors:
// InsufficientPayment when the payer cannot cover the amount and
// OperationFailed for every other refusal or outage.
type Authority interface {
	Transfer(ctx context.Context, t Transfer) (Receipt, error)
	Reverse(ctx context.Context, r Receipt) error
}
