package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCustody covers ownership changes and the settlement steps that
	// cause them. These are the provenance record and are kept indefinitely.
	CategoryCustody EventCategory = "custody"

	// CategoryQuality covers inspections, defects, recalls and disposal.
	CategoryQuality EventCategory = "quality"

	// CategoryOperations covers registry bookkeeping such as batch creation
	// and status updates.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted after a ledger command commits. Keep it transport-agnostic
// so stores and sinks can fan out.
type Event struct {
	ID         string
	Category   EventCategory
	Timestamp  time.Time
	Action     string
	EntityKind string
	EntityID   string
	// State is the entity's state after the command (a status name, the new
	// owner, a listing's fulfilment flag).
	State     string
	Actor     string
	From      string
	To        string
	Amount    uint64
	RequestID string
}

type AuditEvent string

const (
	// Registry events
	EventBatchCreated       AuditEvent = "batch_created"
	EventLotCreated         AuditEvent = "lot_created"
	EventBatchStatusUpdated AuditEvent = "batch_status_updated"
	EventTransferApproved   AuditEvent = "transfer_approved"
	EventCustodyChanged     AuditEvent = "custody_changed"

	// Quality events
	EventInspectorAdded        AuditEvent = "inspector_added"
	EventInspectionUpdated     AuditEvent = "inspection_updated"
	EventDefectReported        AuditEvent = "defect_reported"
	EventBatchRecalled         AuditEvent = "batch_recalled"
	EventRecallResolved        AuditEvent = "recall_resolved"
	EventRecalledBatchDisposed AuditEvent = "recalled_batch_disposed"

	// Escrow events
	EventListingCreated   AuditEvent = "listing_created"
	EventListingFulfilled AuditEvent = "listing_fulfilled"
	EventReturnRequested  AuditEvent = "return_requested"
	EventReturnApproved   AuditEvent = "return_approved"
	EventReturnDenied     AuditEvent = "return_denied"
	EventPaymentReversed  AuditEvent = "payment_reversed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCustodyChanged:   CategoryCustody,
	EventTransferApproved: CategoryCustody,
	EventListingCreated:   CategoryCustody,
	EventListingFulfilled: CategoryCustody,
	EventReturnRequested:  CategoryCustody,
	EventReturnApproved:   CategoryCustody,
	EventReturnDenied:     CategoryCustody,
	EventPaymentReversed:  CategoryCustody,

	EventInspectorAdded:        CategoryQuality,
	EventInspectionUpdated:     CategoryQuality,
	EventDefectReported:        CategoryQuality,
	EventBatchRecalled:         CategoryQuality,
	EventRecallResolved:        CategoryQuality,
	EventRecalledBatchDisposed: CategoryQuality,

	EventBatchCreated:       CategoryOperations,
	EventLotCreated:         CategoryOperations,
	EventBatchStatusUpdated: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists emitted events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader serves the event history of one entity, oldest first.
type Reader interface {
	ListByEntity(ctx context.Context, kind, entityID string) ([]Event, error)
}
