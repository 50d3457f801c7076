package models

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
)

// CustodyReason names the flow that moved an asset.
type CustodyReason string

const (
	CustodyCreated         CustodyReason = "created"
	CustodyListed          CustodyReason = "listed"
	CustodyPurchased       CustodyReason = "purchased"
	CustodyReturnRequested CustodyReason = "return_requested"
	CustodyReturnApproved  CustodyReason = "return_approved"
	CustodyReturnDenied    CustodyReason = "return_denied"
)

// CustodyRecord is one link of an asset's ownership history. Each record
// commits to its predecessor through PrevHash, so rewriting any entry breaks
// every later hash.
type CustodyRecord struct {
	Asset      id.AssetRef   `json:"asset"`
	Sequence   uint64        `json:"sequence"`
	From       id.AccountID  `json:"from,omitempty"`
	To         id.AccountID  `json:"to"`
	Reason     CustodyReason `json:"reason"`
	RecordedAt time.Time     `json:"recorded_at"`
	PrevHash   string        `json:"prev_hash"`
	Hash       string        `json:"hash"`
}

// NextCustodyRecord builds the record that follows chain.
func NextCustodyRecord(chain []CustodyRecord, asset id.AssetRef, from, to id.AccountID, reason CustodyReason, now time.Time) CustodyRecord {
	rec := CustodyRecord{
		Asset:      asset,
		Sequence:   uint64(len(chain)),
		From:       from,
		To:         to,
		Reason:     reason,
		RecordedAt: now.UTC(),
	}
	if n := len(chain); n > 0 {
		rec.PrevHash = chain[n-1].Hash
	}
	rec.Hash = rec.computeHash()
	return rec
}

func (r CustodyRecord) computeHash() string {
	h, _ := blake2b.New256(nil)
	writeField := func(b []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], r.Sequence)
	var at [8]byte
	binary.BigEndian.PutUint64(at[:], uint64(r.RecordedAt.UnixNano()))

	writeField([]byte(r.PrevHash))
	writeField([]byte(r.Asset.String()))
	writeField(seq[:])
	writeField([]byte(r.From))
	writeField([]byte(r.To))
	writeField([]byte(r.Reason))
	writeField(at[:])
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyCustodyChain recomputes every link. The final record's To must equal
// owner when owner is non-empty.
func VerifyCustodyChain(chain []CustodyRecord, owner id.AccountID) error {
	prev := ""
	for i, rec := range chain {
		if rec.Sequence != uint64(i) {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "custody record %d has sequence %d", i, rec.Sequence)
		}
		if rec.PrevHash != prev {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "custody record %d does not link to its predecessor", i)
		}
		if rec.computeHash() != rec.Hash {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "custody record %d hash mismatch", i)
		}
		if i > 0 && rec.From != chain[i-1].To {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "custody record %d starts from %s, previous holder was %s", i, rec.From, chain[i-1].To)
		}
		prev = rec.Hash
	}
	if owner != "" && len(chain) > 0 && chain[len(chain)-1].To != owner {
		return dErrors.New(dErrors.CodeInvariantViolation, "custody history does not end at the current owner")
	}
	return nil
}
