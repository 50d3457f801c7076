package models

import (
	"math/bits"
	"time"

	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

// Listing is an offer to sell one asset held in escrow. Lot and batch listings
// live in separate tables and number their ids independently.
type Listing struct {
	ID           id.ListingID `json:"id"`
	Kind         id.AssetKind `json:"kind"`
	Seller       id.AccountID `json:"seller"`
	AssetID      uint64       `json:"asset_id"`
	BatchID      id.BatchID   `json:"batch_id"`
	PricePerUnit uint64       `json:"price_per_unit"`
	Quantity     uint64       `json:"quantity"`
	Fulfilled    bool         `json:"is_fulfilled"`
	Buyer        id.AccountID `json:"buyer,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	FulfilledAt  *time.Time   `json:"fulfilled_at,omitempty"`
}

// ListingTotal returns pricePerUnit*quantity, rejecting zero prices and
// products that do not fit in 64 bits.
func ListingTotal(pricePerUnit, quantity uint64) (uint64, error) {
	if pricePerUnit == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "price per unit must be greater than zero")
	}
	hi, lo := bits.Mul64(pricePerUnit, quantity)
	if hi != 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "listing total overflows")
	}
	return lo, nil
}

// Asset returns the ref of the listed asset.
func (l *Listing) Asset() id.AssetRef {
	return id.AssetRef{Kind: l.Kind, ID: l.AssetID}
}

// Total is the amount a buyer must pay. Overflow was rejected at creation.
func (l *Listing) Total() uint64 { return l.PricePerUnit * l.Quantity }

// CanFulfill checks a purchase attempt against this listing.
func (l *Listing) CanFulfill(payment uint64) error {
	if l.Fulfilled {
		return dErrors.New(dErrors.CodeInvalidState, "listing is already fulfilled")
	}
	if payment < l.Total() {
		return dErrors.Newf(dErrors.CodeInsufficientPayment, "payment %d is below listing price %d", payment, l.Total())
	}
	return nil
}

// ApplyFulfillment marks the listing sold. Fulfilment flips exactly once.
func (l *Listing) ApplyFulfillment(buyer id.AccountID, now time.Time) {
	l.Fulfilled = true
	l.Buyer = buyer
	l.FulfilledAt = &now
}

// Sale remembers the parties of the last completed purchase of an asset so a
// return can be routed back to the seller.
type Sale struct {
	Asset     id.AssetRef  `json:"asset"`
	ListingID id.ListingID `json:"listing_id"`
	Seller    id.AccountID `json:"seller"`
	Buyer     id.AccountID `json:"buyer"`
	Amount    uint64       `json:"amount"`
	SoldAt    time.Time    `json:"sold_at"`
}

// ReturnRequest is a buyer's request to send an asset back to the seller.
type ReturnRequest struct {
	ID         id.ReturnID  `json:"id"`
	Asset      id.AssetRef  `json:"asset"`
	Buyer      id.AccountID `json:"buyer"`
	Seller     id.AccountID `json:"seller"`
	Status     ReturnStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

func (r *ReturnRequest) IsPending() bool { return r.Status == ReturnPending }

// CanResolve checks that caller may approve or deny this request.
func (r *ReturnRequest) CanResolve(caller id.AccountID) error {
	if r.Seller != caller {
		return dErrors.New(dErrors.CodeForbidden, "only seller can handle requests")
	}
	if !r.IsPending() {
		return dErrors.Newf(dErrors.CodeInvalidState, "return request is already %s", r.Status)
	}
	return nil
}

func (r *ReturnRequest) ApplyResolution(status ReturnStatus, now time.Time) {
	r.Status = status
	r.ResolvedAt = &now
}

// Approval is a single-use authorization for Spender to move Asset once on
// behalf of Granter. It is stale as soon as Granter no longer owns the asset.
type Approval struct {
	Asset     id.AssetRef  `json:"asset"`
	Granter   id.AccountID `json:"granter"`
	Spender   id.AccountID `json:"spender"`
	GrantedAt time.Time    `json:"granted_at"`
}

// Permits reports whether the approval lets spender act for owner.
func (a *Approval) Permits(owner, spender id.AccountID) bool {
	return a != nil && a.Granter == owner && a.Spender == spender
}
