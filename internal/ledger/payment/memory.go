package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

// InMemory settles instantly and remembers every receipt. Failures can be
// injected for tests and local runs.
type InMemory struct {
	mu       sync.Mutex
	receipts map[string]Receipt
	reversed map[string]bool
	received map[id.AccountID]uint64
	failNext error
}

func NewInMemory() *InMemory {
	return &InMemory{
		receipts: make(map[string]Receipt),
		reversed: make(map[string]bool),
		received: make(map[id.AccountID]uint64),
	}
}

// FailNext makes the next Transfer return err.
func (m *InMemory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *InMemory) Transfer(ctx context.Context, t Transfer) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeOperationFailed, "payment aborted")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return Receipt{}, err
	}
	if t.Amount == 0 {
		return Receipt{}, dErrors.New(dErrors.CodeOperationFailed, "payment amount must be positive")
	}
	r := Receipt{ID: uuid.NewString(), Transfer: t, SettledAt: time.Now().UTC()}
	m.receipts[r.ID] = r
	m.received[t.Payee] += t.Amount
	return r, nil
}

func (m *InMemory) Reverse(_ context.Context, r Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receipts[r.ID]; !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "receipt %s not found", r.ID)
	}
	if m.reversed[r.ID] {
		return nil
	}
	m.reversed[r.ID] = true
	m.received[r.Transfer.Payee] -= r.Transfer.Amount
	return nil
}

// Received is the net amount credited to account.
func (m *InMemory) Received(account id.AccountID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received[account]
}

// Settled counts receipts that were not reversed.
func (m *InMemory) Settled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receipts) - len(m.reversed)
}

// Reversed reports whether the receipt was reversed.
func (m *InMemory) Reversed(receiptID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reversed[receiptID]
}
