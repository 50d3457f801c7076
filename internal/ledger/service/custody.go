package service

import (
	"time"

	"provenance/internal/ledger/models"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	audit "provenance/pkg/platform/audit"
)

// asset is the kind-independent view of a batch or lot that the custody and
// escrow flows operate on.
type asset interface {
	ref() id.AssetRef
	ownerOf() id.AccountID
	setOwner(to id.AccountID, now time.Time)
	sizeOf() uint64
	// parent is the batch whose lifecycle governs the asset. For a batch it
	// is the batch itself.
	parent() *models.Batch
}

type batchAsset struct{ b *models.Batch }

func (a batchAsset) ref() id.AssetRef { return id.BatchAsset(a.b.ID) }
func (a batchAsset) ownerOf() id.AccountID { return a.b.Owner }
func (a batchAsset) sizeOf() uint64 { return a.b.Size }
func (a batchAsset) parent() *models.Batch { return a.b }
func (a batchAsset) setOwner(to id.AccountID, now time.Time) {
	a.b.Owner = to
	a.b.UpdatedAt = now
}

type lotAsset struct {
	l *models.Lot
	b *models.Batch
}

func (a lotAsset) ref() id.AssetRef { return id.LotAsset(a.l.ID) }
func (a lotAsset) ownerOf() id.AccountID { return a.l.Owner }
func (a lotAsset) sizeOf() uint64 { return a.l.Size }
func (a lotAsset) parent() *models.Batch { return a.b }
func (a lotAsset) setOwner(to id.AccountID, _ time.Time) { a.l.Owner = to }

// lookupBatch returns the batch or NotFound.
func lookupBatch(st *models.State, batchID id.BatchID) (*models.Batch, error) {
	b, ok := st.Batches[batchID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "batch %d not found", batchID)
	}
	return b, nil
}

// lookupAsset resolves ref against state. A lot whose batch is missing is a
// corrupted ledger, not a NotFound.
func lookupAsset(st *models.State, ref id.AssetRef) (asset, error) {
	switch ref.Kind {
	case id.AssetKindBatch:
		b, err := lookupBatch(st, id.BatchID(ref.ID))
		if err != nil {
			return nil, err
		}
		return batchAsset{b: b}, nil
	case id.AssetKindLot:
		l, ok := st.Lots[id.LotID(ref.ID)]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "lot %d not found", ref.ID)
		}
		b, ok := st.Batches[l.BatchID]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "lot %d references missing batch %d", l.ID, l.BatchID)
		}
		return lotAsset{l: l, b: b}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown asset kind %q", ref.Kind)
	}
}

// recordGenesis starts the custody chain of a newly created asset.
func (t *txn) recordGenesis(a asset) {
	ref := a.ref()
	rec := models.NextCustodyRecord(nil, ref, "", a.ownerOf(), models.CustodyCreated, t.now)
	t.st.Custody[ref] = []models.CustodyRecord{rec}
}

// transferCustody moves a from its current owner to to. It is the only path
// that changes an owner after creation: any standing approval is consumed and
// a custody record is appended.
func (t *txn) transferCustody(a asset, to id.AccountID, reason models.CustodyReason) error {
	from := a.ownerOf()
	ref := a.ref()
	if from.IsZero() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "%s has no owner", ref)
	}
	if to.IsZero() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "custody of %s cannot move to an empty account", ref)
	}

	a.setOwner(to, t.now)
	delete(t.st.Approvals, ref)

	chain := t.st.Custody[ref]
	t.st.Custody[ref] = append(chain, models.NextCustodyRecord(chain, ref, from, to, reason, t.now))
	t.moves = append(t.moves, reason)

	t.emit(audit.EventCustodyChanged, string(ref.Kind), idString(ref), func(e *audit.Event) {
		e.State = string(reason)
		e.From = from.String()
		e.To = to.String()
	})
	return nil
}

func idString(ref id.AssetRef) string {
	switch ref.Kind {
	case id.AssetKindLot:
		return id.LotID(ref.ID).String()
	default:
		return id.BatchID(ref.ID).String()
	}
}
