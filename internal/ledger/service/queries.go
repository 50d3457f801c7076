package service

import (
	"context"
	"errors"

	"provenance/internal/ledger/models"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	audit "provenance/pkg/platform/audit"
)

// Queries read committed state and return copies. Unknown ids are NotFound.

func (s *Service) GetBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	var out *models.Batch
	err := s.view(ctx, func(st *models.State) error {
		b, err := lookupBatch(st, batchID)
		if err != nil {
			return err
		}
		out = b.Clone()
		return nil
	})
	return out, err
}

func (s *Service) GetLot(ctx context.Context, lotID id.LotID) (*models.Lot, error) {
	var out *models.Lot
	err := s.view(ctx, func(st *models.State) error {
		l, ok := st.Lots[lotID]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "lot %d not found", lotID)
		}
		cp := *l
		out = &cp
		return nil
	})
	return out, err
}

// CustodyHistory returns the custody chain of an asset, oldest first.
func (s *Service) CustodyHistory(ctx context.Context, ref id.AssetRef) ([]models.CustodyRecord, error) {
	var out []models.CustodyRecord
	err := s.view(ctx, func(st *models.State) error {
		if _, err := lookupAsset(st, ref); err != nil {
			return err
		}
		out = append([]models.CustodyRecord{}, st.Custody[ref]...)
		return nil
	})
	return out, err
}

// VerifyCustodyChain recomputes the hash chain of an asset and checks that it
// ends at the current owner. A broken chain is an InvariantViolation.
func (s *Service) VerifyCustodyChain(ctx context.Context, ref id.AssetRef) error {
	return s.view(ctx, func(st *models.State) error {
		a, err := lookupAsset(st, ref)
		if err != nil {
			return err
		}
		chain := st.Custody[ref]
		if len(chain) == 0 {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "%s has no custody history", ref)
		}
		return models.VerifyCustodyChain(chain, a.ownerOf())
	})
}

func (s *Service) Inspections(ctx context.Context, batchID id.BatchID) ([]models.Inspection, error) {
	var out []models.Inspection
	err := s.view(ctx, func(st *models.State) error {
		b, err := lookupBatch(st, batchID)
		if err != nil {
			return err
		}
		out = append([]models.Inspection{}, b.Inspections...)
		return nil
	})
	return out, err
}

// Defects returns the defect log of a batch in report order.
func (s *Service) Defects(ctx context.Context, batchID id.BatchID) ([]models.Defect, error) {
	var out []models.Defect
	err := s.view(ctx, func(st *models.State) error {
		if _, err := lookupBatch(st, batchID); err != nil {
			return err
		}
		out = st.DefectsFor(batchID)
		return nil
	})
	return out, err
}

// GetRecall returns the recall of a batch. Recall ids are batch ids.
func (s *Service) GetRecall(ctx context.Context, recallID id.BatchID) (*models.Recall, error) {
	var out *models.Recall
	err := s.view(ctx, func(st *models.State) error {
		r, ok := st.Recalls[recallID]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "recall %d not found", recallID)
		}
		cp := *r
		out = &cp
		return nil
	})
	return out, err
}

func (s *Service) GetListing(ctx context.Context, kind id.AssetKind, listingID id.ListingID) (*models.Listing, error) {
	var out *models.Listing
	err := s.view(ctx, func(st *models.State) error {
		l, ok := st.Listings(kind)[listingID]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "%s listing %d not found", kind, listingID)
		}
		out = cloneListing(l)
		return nil
	})
	return out, err
}

// GetReturn returns the latest return request filed for an asset.
func (s *Service) GetReturn(ctx context.Context, ref id.AssetRef) (*models.ReturnRequest, error) {
	var out *models.ReturnRequest
	err := s.view(ctx, func(st *models.State) error {
		r, ok := st.Returns[ref]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "no return request for %s", ref)
		}
		cp := *r
		out = &cp
		return nil
	})
	return out, err
}

var errNoAuditReader = errors.New("event history is not configured")

// EntityEvents returns the recorded events of one entity, oldest first.
// kind is "batch", "lot", "listing" or "payment".
func (s *Service) EntityEvents(ctx context.Context, kind, entityID string) ([]audit.Event, error) {
	if s.auditReader == nil {
		return nil, dErrors.Wrap(errNoAuditReader, dErrors.CodeOperationFailed, "event history unavailable")
	}
	events, err := s.auditReader.ListByEntity(ctx, kind, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeOperationFailed, "failed to read event history")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}
