package service

import (
	"context"

	"provenance/internal/ledger/models"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	audit "provenance/pkg/platform/audit"
)

// CreateBatchCommand carries the immutable attributes of a new batch.
type CreateBatchCommand struct {
	Size              uint64
	ManufacturingDate string
	ComponentIDs      []string
	MetadataRef       models.ContentRef
}

// CreateBatch registers a production run owned by its manufacturer. The id
// sequence only advances when the batch is stored.
func (s *Service) CreateBatch(ctx context.Context, caller id.AccountID, cmd CreateBatchCommand) (*models.Batch, error) {
	var out *models.Batch
	err := s.execute(ctx, "create_batch", caller, func(_ context.Context, t *txn) error {
		batchID := id.BatchID(t.st.Seq.Batch)
		b, err := models.NewBatch(batchID, t.caller, cmd.Size, cmd.ManufacturingDate, cmd.ComponentIDs, cmd.MetadataRef, t.now)
		if err != nil {
			return err
		}
		t.st.Batches[batchID] = b
		t.st.Seq.Batch++
		t.recordGenesis(batchAsset{b: b})

		t.emit(audit.EventBatchCreated, string(id.AssetKindBatch), batchID.String(), func(e *audit.Event) {
			e.State = b.Status.String()
			e.To = b.Owner.String()
			e.Amount = b.Size
		})
		out = b.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateLot carves lotSize units out of a batch. The lot starts with the
// batch owner and is transferable on its own afterwards.
func (s *Service) CreateLot(ctx context.Context, caller id.AccountID, batchID id.BatchID, lotSize uint64) (*models.Lot, error) {
	var out *models.Lot
	err := s.execute(ctx, "create_lot", caller, func(_ context.Context, t *txn) error {
		b, err := lookupBatch(t.st, batchID)
		if err != nil {
			return err
		}
		if err := b.CanMutate(); err != nil {
			return err
		}
		if !b.IsOwnedBy(t.caller) {
			return dErrors.New(dErrors.CodeForbidden, "only the batch owner can create lots")
		}
		if err := b.CanCarveLot(lotSize); err != nil {
			return err
		}

		lotID := id.LotID(t.st.Seq.Lot)
		lot := &models.Lot{
			ID:        lotID,
			BatchID:   b.ID,
			Size:      lotSize,
			Owner:     b.Owner,
			CreatedAt: t.now,
		}
		t.st.Lots[lotID] = lot
		t.st.Seq.Lot++
		b.ApplyLot(lotID, lotSize, t.now)
		t.recordGenesis(lotAsset{l: lot, b: b})

		t.emit(audit.EventLotCreated, string(id.AssetKindLot), lotID.String(), func(e *audit.Event) {
			e.State = "batch:" + b.ID.String()
			e.To = lot.Owner.String()
			e.Amount = lotSize
		})
		l := *lot
		out = &l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus moves a batch along its lifecycle on behalf of its owner.
func (s *Service) UpdateStatus(ctx context.Context, caller id.AccountID, batchID id.BatchID, next models.BatchStatus) (*models.Batch, error) {
	var out *models.Batch
	err := s.execute(ctx, "update_status", caller, func(_ context.Context, t *txn) error {
		b, err := lookupBatch(t.st, batchID)
		if err != nil {
			return err
		}
		if !b.IsOwnedBy(t.caller) {
			return dErrors.New(dErrors.CodeForbidden, "only the batch owner can update its status")
		}
		if err := b.CanUpdateStatus(next); err != nil {
			return err
		}
		prev := b.Status
		b.ApplyStatus(next, t.now)

		t.emit(audit.EventBatchStatusUpdated, string(id.AssetKindBatch), batchID.String(), func(e *audit.Event) {
			e.State = next.String()
			e.From = prev.String()
		})
		out = b.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveTransfer grants spender a single-use right to move ref out of the
// caller's custody. A new grant replaces any earlier one.
func (s *Service) ApproveTransfer(ctx context.Context, caller id.AccountID, ref id.AssetRef, spender id.AccountID) (*models.Approval, error) {
	var out *models.Approval
	err := s.execute(ctx, "approve_transfer", caller, func(_ context.Context, t *txn) error {
		a, err := lookupAsset(t.st, ref)
		if err != nil {
			return err
		}
		if err := a.parent().CanMutate(); err != nil {
			return err
		}
		if a.ownerOf() != t.caller {
			return dErrors.New(dErrors.CodeForbidden, "not the owner")
		}
		if spender.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "spender is required")
		}
		if spender == t.caller {
			return dErrors.New(dErrors.CodeInvalidInput, "owner cannot approve itself")
		}
		approval := &models.Approval{
			Asset:     ref,
			Granter:   t.caller,
			Spender:   spender,
			GrantedAt: t.now,
		}
		t.st.Approvals[ref] = approval

		t.emit(audit.EventTransferApproved, string(ref.Kind), idString(ref), func(e *audit.Event) {
			e.From = t.caller.String()
			e.To = spender.String()
		})
		cp := *approval
		out = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
