package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"provenance/internal/ledger/models"
	"provenance/internal/ledger/service"
	"provenance/internal/platform/middleware"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/httputil"
)

// -----------------------------------------------------------------------------
// Asset registry
// -----------------------------------------------------------------------------

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[createBatchRequest](h, w, r)
	if !ok {
		return
	}
	metadataRef, ok := parseContent(w, req.MetadataRef)
	if !ok {
		return
	}
	batch, err := h.ledger.CreateBatch(r.Context(), middleware.GetAccountID(r), service.CreateBatchCommand{
		Size:              req.BatchSize,
		ManufacturingDate: req.ManufacturingDate,
		ComponentIDs:      req.ComponentIDs,
		MetadataRef:       metadataRef,
	})
	h.respond(w, r, http.StatusCreated, batch, err)
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	batch, err := h.ledger.GetBatch(r.Context(), batchID)
	h.respond(w, r, http.StatusOK, batch, err)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	req, ok := decode[updateStatusRequest](h, w, r)
	if !ok {
		return
	}
	status, err := models.ParseBatchStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	batch, err := h.ledger.UpdateStatus(r.Context(), middleware.GetAccountID(r), batchID, status)
	h.respond(w, r, http.StatusOK, batch, err)
}

func (h *Handler) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	req, ok := decode[createLotRequest](h, w, r)
	if !ok {
		return
	}
	lot, err := h.ledger.CreateLot(r.Context(), middleware.GetAccountID(r), batchID, req.LotSize)
	h.respond(w, r, http.StatusCreated, lot, err)
}

func (h *Handler) handleGetLot(w http.ResponseWriter, r *http.Request) {
	lotID, err := id.ParseLotID(chi.URLParam(r, "lotID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lot, err := h.ledger.GetLot(r.Context(), lotID)
	h.respond(w, r, http.StatusOK, lot, err)
}

func (h *Handler) handleApproveTransfer(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.assetParam(w, r)
	if !ok {
		return
	}
	req, ok := decode[approveTransferRequest](h, w, r)
	if !ok {
		return
	}
	spender, ok := parseAccount(w, req.Spender)
	if !ok {
		return
	}
	approval, err := h.ledger.ApproveTransfer(r.Context(), middleware.GetAccountID(r), ref, spender)
	h.respond(w, r, http.StatusOK, approval, err)
}

// handleCustody returns the custody chain together with its verification
// result. A broken chain is reported in the body, not as an error status.
func (h *Handler) handleCustody(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.assetParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	records, err := h.ledger.CustodyHistory(ctx, ref)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	resp := custodyResponse{Asset: ref, Records: records, Verified: true}
	if err := h.ledger.VerifyCustodyChain(ctx, ref); err != nil {
		if !dErrors.Is(err, dErrors.CodeInvariantViolation) {
			h.respond(w, r, 0, nil, err)
			return
		}
		h.logger.ErrorContext(ctx, "custody chain verification failed",
			"asset", ref.String(),
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		resp.Verified = false
		resp.VerificationError = dErrors.Message(err)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// -----------------------------------------------------------------------------
// Inspection & quality
// -----------------------------------------------------------------------------

func (h *Handler) handleAddInspector(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	req, ok := decode[addInspectorRequest](h, w, r)
	if !ok {
		return
	}
	inspector, ok := parseAccount(w, req.Inspector)
	if !ok {
		return
	}
	in, err := h.ledger.AddInspector(r.Context(), middleware.GetAccountID(r), batchID, inspector, req.AssignedDate)
	h.respond(w, r, http.StatusCreated, in, err)
}

func (h *Handler) handleUpdateInspection(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	req, ok := decode[updateInspectionRequest](h, w, r)
	if !ok {
		return
	}
	status, err := models.ParseInspectionStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	evidence, ok := parseContent(w, req.EvidenceRef)
	if !ok {
		return
	}
	in, err := h.ledger.UpdateInspection(r.Context(), middleware.GetAccountID(r), batchID, status, req.InspectionDate, evidence)
	h.respond(w, r, http.StatusOK, in, err)
}

func (h *Handler) handleListInspections(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	list, err := h.ledger.Inspections(r.Context(), batchID)
	h.respond(w, r, http.StatusOK, list, err)
}

func (h *Handler) handleReportDefect(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	req, ok := decode[reportDefectRequest](h, w, r)
	if !ok {
		return
	}
	description, ok := parseContent(w, req.DescriptionRef)
	if !ok {
		return
	}
	defect, err := h.ledger.ReportDefect(r.Context(), middleware.GetAccountID(r), batchID, description)
	h.respond(w, r, http.StatusCreated, defect, err)
}

func (h *Handler) handleListDefects(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	list, err := h.ledger.Defects(r.Context(), batchID)
	h.respond(w, r, http.StatusOK, list, err)
}

func (h *Handler) handleRecall(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	req, ok := decode[recallRequest](h, w, r)
	if !ok {
		return
	}
	reason, ok := parseContent(w, req.ReasonRef)
	if !ok {
		return
	}
	recall, err := h.ledger.RecallProductBatch(r.Context(), middleware.GetAccountID(r), batchID, reason)
	h.respond(w, r, http.StatusOK, recall, err)
}

func (h *Handler) handleDispose(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchParam(w, r, "batchID")
	if !ok {
		return
	}
	batch, err := h.ledger.ReturnRecalledProduct(r.Context(), middleware.GetAccountID(r), batchID)
	h.respond(w, r, http.StatusOK, batch, err)
}

func (h *Handler) handleGetRecall(w http.ResponseWriter, r *http.Request) {
	recallID, ok := h.batchParam(w, r, "recallID")
	if !ok {
		return
	}
	recall, err := h.ledger.GetRecall(r.Context(), recallID)
	h.respond(w, r, http.StatusOK, recall, err)
}

func (h *Handler) handleResolveRecall(w http.ResponseWriter, r *http.Request) {
	recallID, ok := h.batchParam(w, r, "recallID")
	if !ok {
		return
	}
	recall, err := h.ledger.ResolveRecall(r.Context(), middleware.GetAccountID(r), recallID)
	h.respond(w, r, http.StatusOK, recall, err)
}

// -----------------------------------------------------------------------------
// Escrow settlement
// -----------------------------------------------------------------------------

func (h *Handler) handleCreateLotListing(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[createLotListingRequest](h, w, r)
	if !ok {
		return
	}
	listing, err := h.ledger.CreateLotListing(r.Context(), middleware.GetAccountID(r),
		id.BatchID(*req.BatchID), id.LotID(*req.LotID), req.PricePerUnit)
	h.respond(w, r, http.StatusCreated, listing, err)
}

func (h *Handler) handleCreateBatchListing(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[createBatchListingRequest](h, w, r)
	if !ok {
		return
	}
	listing, err := h.ledger.CreateBatchListing(r.Context(), middleware.GetAccountID(r),
		id.BatchID(*req.BatchID), req.PricePerUnit)
	h.respond(w, r, http.StatusCreated, listing, err)
}

func (h *Handler) handleGetListing(w http.ResponseWriter, r *http.Request) {
	kind, listingID, ok := h.listingParams(w, r)
	if !ok {
		return
	}
	listing, err := h.ledger.GetListing(r.Context(), kind, listingID)
	h.respond(w, r, http.StatusOK, listing, err)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	kind, listingID, ok := h.listingParams(w, r)
	if !ok {
		return
	}
	req, ok := decode[purchaseRequest](h, w, r)
	if !ok {
		return
	}
	ctx, caller := r.Context(), middleware.GetAccountID(r)
	var (
		listing *models.Listing
		err     error
	)
	if kind == id.AssetKindLot {
		listing, err = h.ledger.PurchaseLot(ctx, caller, listingID, req.Payment)
	} else {
		listing, err = h.ledger.PurchaseBatch(ctx, caller, listingID, req.Payment)
	}
	h.respond(w, r, http.StatusOK, listing, err)
}

func (h *Handler) handleRequestReturn(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.assetParam(w, r)
	if !ok {
		return
	}
	ctx, caller := r.Context(), middleware.GetAccountID(r)
	var (
		req *models.ReturnRequest
		err error
	)
	if ref.Kind == id.AssetKindLot {
		req, err = h.ledger.ReturnLot(ctx, caller, id.LotID(ref.ID))
	} else {
		req, err = h.ledger.ReturnBatch(ctx, caller, id.BatchID(ref.ID))
	}
	h.respond(w, r, http.StatusCreated, req, err)
}

func (h *Handler) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.assetParam(w, r)
	if !ok {
		return
	}
	req, err := h.ledger.GetReturn(r.Context(), ref)
	h.respond(w, r, http.StatusOK, req, err)
}

func (h *Handler) handleResolveReturn(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := h.assetParam(w, r)
		if !ok {
			return
		}
		req, err := h.ledger.ResolveReturn(r.Context(), middleware.GetAccountID(r), ref, approve)
		h.respond(w, r, http.StatusOK, req, err)
	}
}

// -----------------------------------------------------------------------------
// Event history
// -----------------------------------------------------------------------------

func (h *Handler) handleEntityEvents(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	switch kind {
	case "batch", "lot", "listing", "payment":
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "entity kind must be batch, lot, listing or payment"))
		return
	}
	events, err := h.ledger.EntityEvents(r.Context(), kind, chi.URLParam(r, "entityID"))
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponses(events))
}
