package models

import (
	"strings"
	"time"

	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

// Batch is a production run tracked as one unit of custody.
//
// Invariants:
//   - Manufacturer, Size, ManufacturingDate, ComponentIDs and MetadataRef are
//     fixed at creation
//   - Size > 0 and Allocated <= Size, where Allocated is the sum of lot sizes
//   - Disposed is terminal
type Batch struct {
	ID                id.BatchID   `json:"id"`
	Owner             id.AccountID `json:"owner"`
	Manufacturer      id.AccountID `json:"manufacturer"`
	Size              uint64       `json:"batch_size"`
	ManufacturingDate string       `json:"manufacturing_date"`
	ComponentIDs      []string     `json:"component_ids"`
	MetadataRef       ContentRef   `json:"metadata_ref"`
	Status            BatchStatus  `json:"status"`
	Lots              []id.LotID   `json:"lots"`
	Allocated         uint64       `json:"allocated"`
	Inspections       []Inspection `json:"inspections"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// NewBatch validates creation input. Owner and manufacturer are both the caller.
func NewBatch(batchID id.BatchID, manufacturer id.AccountID, size uint64, manufacturingDate string, componentIDs []string, metadataRef ContentRef, now time.Time) (*Batch, error) {
	if strings.TrimSpace(manufacturingDate) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "manufacturing date cannot be empty")
	}
	if size == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "batch size must be greater than zero")
	}
	if manufacturer.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "manufacturer is required")
	}
	components := make([]string, len(componentIDs))
	copy(components, componentIDs)
	return &Batch{
		ID:                batchID,
		Owner:             manufacturer,
		Manufacturer:      manufacturer,
		Size:              size,
		ManufacturingDate: strings.TrimSpace(manufacturingDate),
		ComponentIDs:      components,
		MetadataRef:       metadataRef,
		Status:            StatusInProduction,
		Lots:              []id.LotID{},
		Inspections:       []Inspection{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Remaining is the capacity not yet carved into lots.
func (b *Batch) Remaining() uint64 { return b.Size - b.Allocated }

// IsOwnedBy reports whether caller holds custody of the batch.
func (b *Batch) IsOwnedBy(caller id.AccountID) bool { return b.Owner == caller }

// CanMutate rejects any change to a disposed batch.
func (b *Batch) CanMutate() error {
	if b.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "batch is disposed")
	}
	return nil
}

// CanCarveLot checks that a lot of lotSize fits in the unallocated capacity.
// Use with ApplyLot inside a transaction.
func (b *Batch) CanCarveLot(lotSize uint64) error {
	if err := b.CanMutate(); err != nil {
		return err
	}
	if lotSize == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "lot size must be greater than zero")
	}
	if lotSize > b.Remaining() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "lot size %d exceeds remaining batch capacity %d", lotSize, b.Remaining())
	}
	return nil
}

// ApplyLot records a carved lot. Call CanCarveLot first.
func (b *Batch) ApplyLot(lotID id.LotID, lotSize uint64, now time.Time) {
	b.Lots = append(b.Lots, lotID)
	b.Allocated += lotSize
	b.UpdatedAt = now
}

// CanUpdateStatus validates an owner-requested status change.
func (b *Batch) CanUpdateStatus(next BatchStatus) error {
	return b.Status.CanTransitionTo(next)
}

// ApplyStatus sets the status without checks; recall and disposal flows call
// this after their own validation.
func (b *Batch) ApplyStatus(next BatchStatus, now time.Time) {
	b.Status = next
	b.UpdatedAt = now
}

// IsListable reports whether assets of this batch may be offered for sale.
func (b *Batch) IsListable() error {
	switch b.Status {
	case StatusRecalled:
		return dErrors.New(dErrors.CodeInvalidState, "batch is under recall")
	case StatusDisposed:
		return dErrors.New(dErrors.CodeInvalidState, "batch is disposed")
	}
	return nil
}

// HasInspector reports whether inspector was ever assigned to this batch.
func (b *Batch) HasInspector(inspector id.AccountID) bool {
	for _, in := range b.Inspections {
		if in.Inspector == inspector {
			return true
		}
	}
	return false
}

// PendingInspectionFor returns the index of the most recent pending
// inspection assigned to inspector, or -1.
func (b *Batch) PendingInspectionFor(inspector id.AccountID) int {
	for i := len(b.Inspections) - 1; i >= 0; i-- {
		in := b.Inspections[i]
		if in.Inspector == inspector && in.Status == InspectionPending {
			return i
		}
	}
	return -1
}

// Clone returns a copy sharing no slices with b.
func (b *Batch) Clone() *Batch {
	c := *b
	c.ComponentIDs = append([]string(nil), b.ComponentIDs...)
	c.Lots = append([]id.LotID(nil), b.Lots...)
	c.Inspections = append([]Inspection(nil), b.Inspections...)
	return &c
}

// Lot is a portion of a batch with its own custody.
type Lot struct {
	ID        id.LotID     `json:"id"`
	BatchID   id.BatchID   `json:"batch_id"`
	Size      uint64       `json:"lot_size"`
	Owner     id.AccountID `json:"owner"`
	CreatedAt time.Time    `json:"created_at"`
}

func (l *Lot) IsOwnedBy(caller id.AccountID) bool { return l.Owner == caller }
