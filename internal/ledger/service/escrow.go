package service

import (
	"context"

	"provenance/internal/ledger/models"
	"provenance/internal/ledger/payment"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	audit "provenance/pkg/platform/audit"
)

const listingEntity = "listing"

func listingEntityID(kind id.AssetKind, listingID id.ListingID) string {
	return string(kind) + ":" + listingID.String()
}

// CreateLotListing offers a lot for sale. batchID must be the lot's batch.
func (s *Service) CreateLotListing(ctx context.Context, caller id.AccountID, batchID id.BatchID, lotID id.LotID, pricePerUnit uint64) (*models.Listing, error) {
	return s.createListing(ctx, caller, batchID, id.LotAsset(lotID), pricePerUnit)
}

// CreateBatchListing offers a whole batch for sale.
func (s *Service) CreateBatchListing(ctx context.Context, caller id.AccountID, batchID id.BatchID, pricePerUnit uint64) (*models.Listing, error) {
	return s.createListing(ctx, caller, batchID, id.BatchAsset(batchID), pricePerUnit)
}

// createListing moves the asset from its owner into escrow and opens a
// listing for it. The owner must have approved the escrow holder beforehand.
func (s *Service) createListing(ctx context.Context, caller id.AccountID, batchID id.BatchID, ref id.AssetRef, pricePerUnit uint64) (*models.Listing, error) {
	var out *models.Listing
	err := s.execute(ctx, "create_"+string(ref.Kind)+"_listing", caller, func(_ context.Context, t *txn) error {
		if pricePerUnit == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "price per unit must be greater than zero")
		}
		a, err := lookupAsset(t.st, ref)
		if err != nil {
			return err
		}
		if a.parent().ID != batchID {
			return dErrors.Newf(dErrors.CodeInvalidInput, "%s does not belong to batch %d", ref, batchID)
		}
		if _, err := models.ListingTotal(pricePerUnit, a.sizeOf()); err != nil {
			return err
		}
		if err := a.parent().IsListable(); err != nil {
			return err
		}
		seller := a.ownerOf()
		if seller != t.caller {
			return dErrors.New(dErrors.CodeForbidden, "not the owner")
		}
		if !t.st.Approvals[ref].Permits(seller, t.escrow) {
			return dErrors.New(dErrors.CodeForbidden, "escrow is not approved to take custody")
		}

		table := t.st.Listings(ref.Kind)
		listingID := id.ListingID(t.nextListingID(ref.Kind))
		listing := &models.Listing{
			ID:           listingID,
			Kind:         ref.Kind,
			Seller:       seller,
			AssetID:      ref.ID,
			BatchID:      batchID,
			PricePerUnit: pricePerUnit,
			Quantity:     a.sizeOf(),
			CreatedAt:    t.now,
		}
		if err := t.transferCustody(a, t.escrow, models.CustodyListed); err != nil {
			return err
		}
		table[listingID] = listing

		t.emit(audit.EventListingCreated, listingEntity, listingEntityID(ref.Kind, listingID), func(e *audit.Event) {
			e.State = "open"
			e.From = seller.String()
			e.To = t.escrow.String()
			e.Amount = listing.Total()
		})
		cp := *listing
		out = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *txn) nextListingID(kind id.AssetKind) uint64 {
	if kind == id.AssetKindLot {
		n := t.st.Seq.LotListing
		t.st.Seq.LotListing++
		return n
	}
	n := t.st.Seq.BatchListing
	t.st.Seq.BatchListing++
	return n
}

// PurchaseLot buys an open lot listing.
func (s *Service) PurchaseLot(ctx context.Context, caller id.AccountID, listingID id.ListingID, amount uint64) (*models.Listing, error) {
	return s.purchase(ctx, caller, id.AssetKindLot, listingID, amount)
}

// PurchaseBatch buys an open batch listing.
func (s *Service) PurchaseBatch(ctx context.Context, caller id.AccountID, listingID id.ListingID, amount uint64) (*models.Listing, error) {
	return s.purchase(ctx, caller, id.AssetKindBatch, listingID, amount)
}

// purchase fulfils a listing: the flag flips, custody moves escrow to buyer
// and the payment is forwarded to the seller. The payment is the last step
// so a refused transfer leaves nothing to undo. Batch status is checked when
// the listing opens; a listing opened before a recall stays purchasable.
func (s *Service) purchase(ctx context.Context, caller id.AccountID, kind id.AssetKind, listingID id.ListingID, amount uint64) (*models.Listing, error) {
	var out *models.Listing
	err := s.execute(ctx, "purchase_"+string(kind), caller, func(ctx context.Context, t *txn) error {
		listing, ok := t.st.Listings(kind)[listingID]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "%s listing %d not found", kind, listingID)
		}
		if err := listing.CanFulfill(amount); err != nil {
			return err
		}
		a, err := lookupAsset(t.st, listing.Asset())
		if err != nil {
			return err
		}
		if a.ownerOf() != t.escrow {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "listed %s is not held in escrow", listing.Asset())
		}

		listing.ApplyFulfillment(t.caller, t.now)
		if err := t.transferCustody(a, t.caller, models.CustodyPurchased); err != nil {
			return err
		}
		t.st.Sales[listing.Asset()] = &models.Sale{
			Asset:     listing.Asset(),
			ListingID: listingID,
			Seller:    listing.Seller,
			Buyer:     t.caller,
			Amount:    amount,
			SoldAt:    t.now,
		}

		receipt, err := t.payments.Transfer(ctx, payment.Transfer{
			Reference: paymentReference(kind, listingID, t.caller),
			Payer:     t.caller,
			Payee:     listing.Seller,
			Amount:    amount,
		})
		if err != nil {
			s.metrics.IncPaymentFailure()
			return err
		}
		t.receipts = append(t.receipts, receipt)
		t.sold = append(t.sold, kind)

		t.emit(audit.EventListingFulfilled, listingEntity, listingEntityID(kind, listingID), func(e *audit.Event) {
			e.State = "fulfilled"
			e.From = listing.Seller.String()
			e.To = t.caller.String()
			e.Amount = amount
		})
		out = cloneListing(listing)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// paymentReference names one buyer's attempt at one listing, so an authority
// that deduplicates on it never matches two different payers.
func paymentReference(kind id.AssetKind, listingID id.ListingID, payer id.AccountID) string {
	return string(kind) + "-listing:" + listingID.String() + ":" + payer.String()
}

// ReturnLot asks the seller to take a purchased lot back.
func (s *Service) ReturnLot(ctx context.Context, caller id.AccountID, lotID id.LotID) (*models.ReturnRequest, error) {
	return s.requestReturn(ctx, caller, id.LotAsset(lotID))
}

// ReturnBatch asks the seller to take a purchased batch back.
func (s *Service) ReturnBatch(ctx context.Context, caller id.AccountID, batchID id.BatchID) (*models.ReturnRequest, error) {
	return s.requestReturn(ctx, caller, id.BatchAsset(batchID))
}

// requestReturn parks a sold asset in escrow until its seller decides.
func (s *Service) requestReturn(ctx context.Context, caller id.AccountID, ref id.AssetRef) (*models.ReturnRequest, error) {
	var out *models.ReturnRequest
	err := s.execute(ctx, "return_"+string(ref.Kind), caller, func(_ context.Context, t *txn) error {
		a, err := lookupAsset(t.st, ref)
		if err != nil {
			return err
		}
		sale, ok := t.st.Sales[ref]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "%s has no completed sale", ref)
		}
		if prev, ok := t.st.Returns[ref]; ok && prev.IsPending() {
			return dErrors.Newf(dErrors.CodeInvalidState, "%s already has a pending return", ref)
		}
		if a.ownerOf() != t.caller {
			return dErrors.New(dErrors.CodeForbidden, "not the owner")
		}
		if !t.st.Approvals[ref].Permits(t.caller, t.escrow) {
			return dErrors.New(dErrors.CodeForbidden, "escrow is not approved to take custody")
		}
		if err := a.parent().CanMutate(); err != nil {
			return err
		}

		if err := t.transferCustody(a, t.escrow, models.CustodyReturnRequested); err != nil {
			return err
		}
		req := &models.ReturnRequest{
			ID:        id.ReturnID(t.st.Seq.Return),
			Asset:     ref,
			Buyer:     t.caller,
			Seller:    sale.Seller,
			Status:    models.ReturnPending,
			CreatedAt: t.now,
		}
		t.st.Returns[ref] = req
		t.st.Seq.Return++

		t.emit(audit.EventReturnRequested, string(ref.Kind), idString(ref), func(e *audit.Event) {
			e.State = req.Status.String()
			e.From = req.Buyer.String()
			e.To = req.Seller.String()
		})
		cp := *req
		out = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ApproveLotReturn(ctx context.Context, caller id.AccountID, lotID id.LotID) (*models.ReturnRequest, error) {
	return s.resolveReturn(ctx, caller, id.LotAsset(lotID), true)
}

func (s *Service) ApproveBatchReturn(ctx context.Context, caller id.AccountID, batchID id.BatchID) (*models.ReturnRequest, error) {
	return s.resolveReturn(ctx, caller, id.BatchAsset(batchID), true)
}

func (s *Service) DenyLotReturn(ctx context.Context, caller id.AccountID, lotID id.LotID) (*models.ReturnRequest, error) {
	return s.resolveReturn(ctx, caller, id.LotAsset(lotID), false)
}

func (s *Service) DenyBatchReturn(ctx context.Context, caller id.AccountID, batchID id.BatchID) (*models.ReturnRequest, error) {
	return s.resolveReturn(ctx, caller, id.BatchAsset(batchID), false)
}

// ResolveReturn approves or denies the pending return of ref.
func (s *Service) ResolveReturn(ctx context.Context, caller id.AccountID, ref id.AssetRef, approve bool) (*models.ReturnRequest, error) {
	return s.resolveReturn(ctx, caller, ref, approve)
}

// resolveReturn sends the asset back to the seller on approval and to the
// buyer on denial. No payment is moved either way.
func (s *Service) resolveReturn(ctx context.Context, caller id.AccountID, ref id.AssetRef, approve bool) (*models.ReturnRequest, error) {
	op := "deny_" + string(ref.Kind) + "_return"
	if approve {
		op = "approve_" + string(ref.Kind) + "_return"
	}
	var out *models.ReturnRequest
	err := s.execute(ctx, op, caller, func(_ context.Context, t *txn) error {
		req, ok := t.st.Returns[ref]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "no return request for %s", ref)
		}
		if err := req.CanResolve(t.caller); err != nil {
			return err
		}
		a, err := lookupAsset(t.st, ref)
		if err != nil {
			return err
		}
		if a.ownerOf() != t.escrow {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "returned %s is not held in escrow", ref)
		}

		action, status, to, reason := audit.EventReturnDenied, models.ReturnDenied, req.Buyer, models.CustodyReturnDenied
		if approve {
			action, status, to, reason = audit.EventReturnApproved, models.ReturnApproved, req.Seller, models.CustodyReturnApproved
		}
		if err := t.transferCustody(a, to, reason); err != nil {
			return err
		}
		req.ApplyResolution(status, t.now)
		if approve {
			delete(t.st.Sales, ref)
		}

		t.emit(action, string(ref.Kind), idString(ref), func(e *audit.Event) {
			e.State = status.String()
			e.From = t.escrow.String()
			e.To = to.String()
		})
		cp := *req
		out = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func cloneListing(l *models.Listing) *models.Listing {
	c := *l
	if l.FulfilledAt != nil {
		at := *l.FulfilledAt
		c.FulfilledAt = &at
	}
	return &c
}
