package service

import (
	"context"

	"provenance/internal/ledger/models"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	audit "provenance/pkg/platform/audit"
)

// AddInspector assigns an inspector to a batch with a pending inspection.
func (s *Service) AddInspector(ctx context.Context, caller id.AccountID, batchID id.BatchID, inspector id.AccountID, assignedDate string) (*models.Inspection, error) {
	var out *models.Inspection
	err := s.execute(ctx, "add_inspector", caller, func(_ context.Context, t *txn) error {
		b, err := lookupBatch(t.st, batchID)
		if err != nil {
			return err
		}
		if err := b.CanMutate(); err != nil {
			return err
		}
		if !b.IsOwnedBy(t.caller) {
			return dErrors.New(dErrors.CodeForbidden, "only the batch owner can assign inspectors")
		}
		if inspector.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "inspector is required")
		}
		in := models.Inspection{
			Inspector:      inspector,
			Status:         models.InspectionPending,
			InspectionDate: assignedDate,
			UpdatedAt:      t.now,
		}
		b.Inspections = append(b.Inspections, in)
		b.UpdatedAt = t.now

		t.emit(audit.EventInspectorAdded, string(id.AssetKindBatch), batchID.String(), func(e *audit.Event) {
			e.State = in.Status.String()
			e.To = inspector.String()
		})
		out = &in
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateInspection records the caller's verdict on their most recent pending
// inspection of the batch.
func (s *Service) UpdateInspection(ctx context.Context, caller id.AccountID, batchID id.BatchID, status models.InspectionStatus, inspectionDate string, evidence models.ContentRef) (*models.Inspection, error) {
	var out *models.Inspection
	err := s.execute(ctx, "update_inspection", caller, func(_ context.Context, t *txn) error {
		b, err := lookupBatch(t.st, batchID)
		if err != nil {
			return err
		}
		if err := b.CanMutate(); err != nil {
			return err
		}
		idx := b.PendingInspectionFor(t.caller)
		if idx < 0 {
			return dErrors.Newf(dErrors.CodeNotFound, "no pending inspection for %s on batch %d", t.caller, batchID)
		}
		if err := b.Inspections[idx].Resolve(status, inspectionDate, evidence, t.now); err != nil {
			return err
		}
		b.UpdatedAt = t.now

		t.emit(audit.EventInspectionUpdated, string(id.AssetKindBatch), batchID.String(), func(e *audit.Event) {
			e.State = status.String()
		})
		in := b.Inspections[idx]
		out = &in
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReportDefect appends to the defect log. Any inspector ever assigned to the
// batch may report, whatever the batch status.
func (s *Service) ReportDefect(ctx context.Context, caller id.AccountID, batchID id.BatchID, description models.ContentRef) (*models.Defect, error) {
	var out *models.Defect
	err := s.execute(ctx, "report_defect", caller, func(_ context.Context, t *txn) error {
		b, err := lookupBatch(t.st, batchID)
		if err != nil {
			return err
		}
		if !b.HasInspector(t.caller) {
			return dErrors.New(dErrors.CodeForbidden, "only an assigned inspector can report defects")
		}
		d := &models.Defect{
			ID:             id.DefectID(t.st.Seq.Defect),
			BatchID:        batchID,
			Inspector:      t.caller,
			DescriptionRef: description,
			ReportedAt:     t.now,
		}
		t.st.Defects = append(t.st.Defects, d)
		t.st.Seq.Defect++

		t.emit(audit.EventDefectReported, string(id.AssetKindBatch), batchID.String(), func(e *audit.Event) {
			e.State = "defect:" + d.ID.String()
		})
		cp := *d
		out = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecallProductBatch puts a batch under recall. A recall is keyed by its
// batch; recalling again reopens it with the new reason.
func (s *Service) RecallProductBatch(ctx context.Context, caller id.AccountID, batchID id.BatchID, reason models.ContentRef) (*models.Recall, error) {
	var out *models.Recall
	err := s.execute(ctx, "recall_batch", caller, func(_ context.Context, t *txn) error {
		b, err := lookupBatch(t.st, batchID)
		if err != nil {
			return err
		}
		if !b.IsOwnedBy(t.caller) {
			return dErrors.New(dErrors.CodeForbidden, "only the batch owner can recall it")
		}
		if err := b.CanMutate(); err != nil {
			return err
		}
		b.ApplyStatus(models.StatusRecalled, t.now)
		r := &models.Recall{
			BatchID:    batchID,
			Reason:     reason,
			RecalledBy: t.caller,
			CreatedAt:  t.now,
		}
		t.st.Recalls[batchID] = r

		t.emit(audit.EventBatchRecalled, string(id.AssetKindBatch), batchID.String(), func(e *audit.Event) {
			e.State = models.StatusRecalled.String()
		})
		cp := *r
		out = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveRecall closes an open recall. Disposal is a separate step.
func (s *Service) ResolveRecall(ctx context.Context, caller id.AccountID, recallID id.BatchID) (*models.Recall, error) {
	var out *models.Recall
	err := s.execute(ctx, "resolve_recall", caller, func(_ context.Context, t *txn) error {
		r, ok := t.st.Recalls[recallID]
		if !ok || r.Resolved {
			return dErrors.Newf(dErrors.CodeNotFound, "no open recall %d", recallID)
		}
		b, ok := t.st.Batches[recallID]
		if !ok {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "recall %d has no batch", recallID)
		}
		if !b.IsOwnedBy(t.caller) && b.Manufacturer != t.caller {
			return dErrors.New(dErrors.CodeForbidden, "only the batch owner or manufacturer can resolve a recall")
		}
		r.Resolve(t.now)

		t.emit(audit.EventRecallResolved, string(id.AssetKindBatch), recallID.String(), func(e *audit.Event) {
			e.State = "resolved"
		})
		cp := *r
		out = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReturnRecalledProduct disposes of a recalled batch. Disposed is terminal.
func (s *Service) ReturnRecalledProduct(ctx context.Context, caller id.AccountID, batchID id.BatchID) (*models.Batch, error) {
	var out *models.Batch
	err := s.execute(ctx, "return_recalled", caller, func(_ context.Context, t *txn) error {
		b, err := lookupBatch(t.st, batchID)
		if err != nil {
			return err
		}
		if !b.IsOwnedBy(t.caller) {
			return dErrors.New(dErrors.CodeForbidden, "only the batch owner can return recalled goods")
		}
		if err := b.CanMutate(); err != nil {
			return err
		}
		if b.Status != models.StatusRecalled {
			return dErrors.Newf(dErrors.CodeInvalidState, "batch is %s, not recalled", b.Status)
		}
		b.ApplyStatus(models.StatusDisposed, t.now)

		t.emit(audit.EventRecalledBatchDisposed, string(id.AssetKindBatch), batchID.String(), func(e *audit.Event) {
			e.State = models.StatusDisposed.String()
			e.From = models.StatusRecalled.String()
		})
		out = b.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
