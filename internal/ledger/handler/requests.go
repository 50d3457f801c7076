package handler

import (
	"time"

	"provenance/internal/ledger/models"
	id "provenance/pkg/domain"
	audit "provenance/pkg/platform/audit"
)

// Request bodies. Struct tags bound shape and size; domain rules such as a
// non-empty manufacturing date or a positive price stay in the service so
// every entry point reports them the same way.

type createBatchRequest struct {
	BatchSize         uint64   `json:"batch_size"`
	ManufacturingDate string   `json:"manufacturing_date" validate:"max=64"`
	ComponentIDs      []string `json:"component_ids" validate:"max=256,dive,max=128"`
	MetadataRef       string   `json:"metadata_ref" validate:"max=512"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

type createLotRequest struct {
	LotSize uint64 `json:"lot_size"`
}

type approveTransferRequest struct {
	Spender string `json:"spender" validate:"required,max=128"`
}

type addInspectorRequest struct {
	Inspector    string `json:"inspector" validate:"required,max=128"`
	AssignedDate string `json:"assigned_date" validate:"max=64"`
}

type updateInspectionRequest struct {
	Status         string `json:"status" validate:"required,oneof=approved rejected"`
	InspectionDate string `json:"inspection_date" validate:"max=64"`
	EvidenceRef    string `json:"evidence_ref" validate:"max=512"`
}

type reportDefectRequest struct {
	DescriptionRef string `json:"description_ref" validate:"required,max=512"`
}

type recallRequest struct {
	ReasonRef string `json:"reason_ref" validate:"max=512"`
}

type createLotListingRequest struct {
	BatchID      *uint64 `json:"batch_id" validate:"required"`
	LotID        *uint64 `json:"lot_id" validate:"required"`
	PricePerUnit uint64  `json:"price_per_unit"`
}

type createBatchListingRequest struct {
	BatchID      *uint64 `json:"batch_id" validate:"required"`
	PricePerUnit uint64  `json:"price_per_unit"`
}

type purchaseRequest struct {
	Payment uint64 `json:"payment"`
}

// Responses that are not plain models.

type custodyResponse struct {
	Asset             id.AssetRef            `json:"asset"`
	Records           []models.CustodyRecord `json:"records"`
	Verified          bool                   `json:"verified"`
	VerificationError string                 `json:"verification_error,omitempty"`
}

type eventResponse struct {
	ID         string    `json:"id,omitempty"`
	Category   string    `json:"category"`
	Action     string    `json:"action"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
	State      string    `json:"state,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func toEventResponses(events []audit.Event) []eventResponse {
	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = eventResponse{
			ID:         e.ID,
			Category:   string(e.Category),
			Action:     e.Action,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			State:      e.State,
			Actor:      e.Actor,
			From:       e.From,
			To:         e.To,
			Amount:     e.Amount,
			RequestID:  e.RequestID,
			Timestamp:  e.Timestamp,
		}
	}
	return out
}
