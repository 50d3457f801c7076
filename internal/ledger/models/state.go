package models

import (
	id "provenance/pkg/domain"
)

// Sequences holds the next id of every table. Counters only advance on
// commit because they live inside State.
type Sequences struct {
	Batch        uint64 `json:"batch"`
	Lot          uint64 `json:"lot"`
	LotListing   uint64 `json:"lot_listing"`
	BatchListing uint64 `json:"batch_listing"`
	Return       uint64 `json:"return"`
	Defect       uint64 `json:"defect"`
}

// State is the whole ledger. Commands run against a private copy and the copy
// replaces the committed state only when the command succeeds.
type State struct {
	Batches       map[id.BatchID]*Batch           `json:"batches"`
	Lots          map[id.LotID]*Lot               `json:"lots"`
	Defects       []*Defect                       `json:"defects"`
	Recalls       map[id.BatchID]*Recall          `json:"recalls"`
	LotListings   map[id.ListingID]*Listing       `json:"lot_listings"`
	BatchListings map[id.ListingID]*Listing       `json:"batch_listings"`
	Sales         map[id.AssetRef]*Sale           `json:"sales"`
	Returns       map[id.AssetRef]*ReturnRequest  `json:"returns"`
	Approvals     map[id.AssetRef]*Approval       `json:"approvals"`
	Custody       map[id.AssetRef][]CustodyRecord `json:"custody"`
	Seq           Sequences                       `json:"seq"`
}

func NewState() *State {
	s := &State{}
	s.ensureMaps()
	return s
}

// ensureMaps fills nil maps, which JSON decoding of an empty document leaves behind.
func (s *State) ensureMaps() {
	if s.Batches == nil {
		s.Batches = make(map[id.BatchID]*Batch)
	}
	if s.Lots == nil {
		s.Lots = make(map[id.LotID]*Lot)
	}
	if s.Recalls == nil {
		s.Recalls = make(map[id.BatchID]*Recall)
	}
	if s.LotListings == nil {
		s.LotListings = make(map[id.ListingID]*Listing)
	}
	if s.BatchListings == nil {
		s.BatchListings = make(map[id.ListingID]*Listing)
	}
	if s.Sales == nil {
		s.Sales = make(map[id.AssetRef]*Sale)
	}
	if s.Returns == nil {
		s.Returns = make(map[id.AssetRef]*ReturnRequest)
	}
	if s.Approvals == nil {
		s.Approvals = make(map[id.AssetRef]*Approval)
	}
	if s.Custody == nil {
		s.Custody = make(map[id.AssetRef][]CustodyRecord)
	}
}

// Normalize prepares a decoded state for use.
func (s *State) Normalize() *State {
	s.ensureMaps()
	return s
}

// Clone returns a deep copy sharing no mutable memory with s.
func (s *State) Clone() *State {
	c := &State{
		Batches:       make(map[id.BatchID]*Batch, len(s.Batches)),
		Lots:          make(map[id.LotID]*Lot, len(s.Lots)),
		Defects:       make([]*Defect, len(s.Defects)),
		Recalls:       make(map[id.BatchID]*Recall, len(s.Recalls)),
		LotListings:   make(map[id.ListingID]*Listing, len(s.LotListings)),
		BatchListings: make(map[id.ListingID]*Listing, len(s.BatchListings)),
		Sales:         make(map[id.AssetRef]*Sale, len(s.Sales)),
		Returns:       make(map[id.AssetRef]*ReturnRequest, len(s.Returns)),
		Approvals:     make(map[id.AssetRef]*Approval, len(s.Approvals)),
		Custody:       make(map[id.AssetRef][]CustodyRecord, len(s.Custody)),
		Seq:           s.Seq,
	}
	for k, v := range s.Batches {
		c.Batches[k] = v.Clone()
	}
	for k, v := range s.Lots {
		lot := *v
		c.Lots[k] = &lot
	}
	for i, v := range s.Defects {
		d := *v
		c.Defects[i] = &d
	}
	for k, v := range s.Recalls {
		r := *v
		if v.ResolvedAt != nil {
			at := *v.ResolvedAt
			r.ResolvedAt = &at
		}
		c.Recalls[k] = &r
	}
	for k, v := range s.LotListings {
		c.LotListings[k] = cloneListing(v)
	}
	for k, v := range s.BatchListings {
		c.BatchListings[k] = cloneListing(v)
	}
	for k, v := range s.Sales {
		sale := *v
		c.Sales[k] = &sale
	}
	for k, v := range s.Returns {
		r := *v
		if v.ResolvedAt != nil {
			at := *v.ResolvedAt
			r.ResolvedAt = &at
		}
		c.Returns[k] = &r
	}
	for k, v := range s.Approvals {
		a := *v
		c.Approvals[k] = &a
	}
	for k, v := range s.Custody {
		c.Custody[k] = append([]CustodyRecord(nil), v...)
	}
	return c
}

func cloneListing(l *Listing) *Listing {
	c := *l
	if l.FulfilledAt != nil {
		at := *l.FulfilledAt
		c.FulfilledAt = &at
	}
	return &c
}

// Listings returns the table for kind.
func (s *State) Listings(kind id.AssetKind) map[id.ListingID]*Listing {
	if kind == id.AssetKindLot {
		return s.LotListings
	}
	return s.BatchListings
}

// DefectsFor returns the defects of a batch in report order.
func (s *State) DefectsFor(batchID id.BatchID) []Defect {
	out := []Defect{}
	for _, d := range s.Defects {
		if d.BatchID == batchID {
			out = append(out, *d)
		}
	}
	return out
}
