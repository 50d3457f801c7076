package models

import (
	"time"

	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

// Inspection is an append-only entry on a batch. Only the status, date and
// evidence of a pending entry are ever updated, by its own inspector.
type Inspection struct {
	Inspector      id.AccountID     `json:"inspector"`
	Status         InspectionStatus `json:"status"`
	InspectionDate string           `json:"inspection_date"`
	EvidenceRef    ContentRef       `json:"evidence_ref"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Resolve records the inspector's verdict.
func (i *Inspection) Resolve(status InspectionStatus, inspectionDate string, evidence ContentRef, now time.Time) error {
	if status != InspectionApproved && status != InspectionRejected {
		return dErrors.New(dErrors.CodeInvalidInput, "inspection outcome must be approved or rejected")
	}
	if i.Status != InspectionPending {
		return dErrors.New(dErrors.CodeInvalidState, "inspection is already resolved")
	}
	i.Status = status
	i.InspectionDate = inspectionDate
	i.EvidenceRef = evidence
	i.UpdatedAt = now
	return nil
}

type Defect struct {
	ID             id.DefectID  `json:"id"`
	BatchID        id.BatchID   `json:"batch_id"`
	Inspector      id.AccountID `json:"inspector"`
	DescriptionRef ContentRef   `json:"description_ref"`
	ReportedAt     time.Time    `json:"reported_at"`
}

// Recall is keyed by its batch; a batch has at most one.
type Recall struct {
	BatchID    id.BatchID   `json:"batch_id"`
	Reason     ContentRef   `json:"reason"`
	Resolved   bool         `json:"resolved"`
	RecalledBy id.AccountID `json:"recalled_by"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

func (r *Recall) Resolve(now time.Time) {
	r.Resolved = true
	r.ResolvedAt = &now
}
