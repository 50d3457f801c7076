package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"provenance/internal/ledger/models"
	"provenance/internal/ledger/service"
	"provenance/internal/platform/metrics"
	"provenance/internal/platform/middleware"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	audit "provenance/pkg/platform/audit"
	"provenance/pkg/platform/httputil"
	"provenance/pkg/platform/middleware/metadata"
	"provenance/pkg/platform/middleware/requesttime"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	CreateBatch(ctx context.Context, caller id.AccountID, cmd service.CreateBatchCommand) (*models.Batch, error)
	CreateLot(ctx context.Context, caller id.AccountID, batchID id.BatchID, lotSize uint64) (*models.Lot, error)
	UpdateStatus(ctx context.Context, caller id.AccountID, batchID id.BatchID, next models.BatchStatus) (*models.Batch, error)
	ApproveTransfer(ctx context.Context, caller id.AccountID, ref id.AssetRef, spender id.AccountID) (*models.Approval, error)

	AddInspector(ctx context.Context, caller id.AccountID, batchID id.BatchID, inspector id.AccountID, assignedDate string) (*models.Inspection, error)
	UpdateInspection(ctx context.Context, caller id.AccountID, batchID id.BatchID, status models.InspectionStatus, inspectionDate string, evidence models.ContentRef) (*models.Inspection, error)
	ReportDefect(ctx context.Context, caller id.AccountID, batchID id.BatchID, description models.ContentRef) (*models.Defect, error)
	RecallProductBatch(ctx context.Context, caller id.AccountID, batchID id.BatchID, reason models.ContentRef) (*models.Recall, error)
	ResolveRecall(ctx context.Context, caller id.AccountID, recallID id.BatchID) (*models.Recall, error)
	ReturnRecalledProduct(ctx context.Context, caller id.AccountID, batchID id.BatchID) (*models.Batch, error)

	CreateLotListing(ctx context.Context, caller id.AccountID, batchID id.BatchID, lotID id.LotID, pricePerUnit uint64) (*models.Listing, error)
	CreateBatchListing(ctx context.Context, caller id.AccountID, batchID id.BatchID, pricePerUnit uint64) (*models.Listing, error)
	PurchaseLot(ctx context.Context, caller id.AccountID, listingID id.ListingID, amount uint64) (*models.Listing, error)
	PurchaseBatch(ctx context.Context, caller id.AccountID, listingID id.ListingID, amount uint64) (*models.Listing, error)
	ReturnLot(ctx context.Context, caller id.AccountID, lotID id.LotID) (*models.ReturnRequest, error)
	ReturnBatch(ctx context.Context, caller id.AccountID, batchID id.BatchID) (*models.ReturnRequest, error)
	ResolveReturn(ctx context.Context, caller id.AccountID, ref id.AssetRef, approve bool) (*models.ReturnRequest, error)

	GetBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	GetLot(ctx context.Context, lotID id.LotID) (*models.Lot, error)
	CustodyHistory(ctx context.Context, ref id.AssetRef) ([]models.CustodyRecord, error)
	VerifyCustodyChain(ctx context.Context, ref id.AssetRef) error
	Inspections(ctx context.Context, batchID id.BatchID) ([]models.Inspection, error)
	Defects(ctx context.Context, batchID id.BatchID) ([]models.Defect, error)
	GetRecall(ctx context.Context, recallID id.BatchID) (*models.Recall, error)
	GetListing(ctx context.Context, kind id.AssetKind, listingID id.ListingID) (*models.Listing, error)
	GetReturn(ctx context.Context, ref id.AssetRef) (*models.ReturnRequest, error)
	EntityEvents(ctx context.Context, kind, entityID string) ([]audit.Event, error)
}

// Handler serves the ledger API.
type Handler struct {
	logger       *slog.Logger
	ledger       Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	idempotency  middleware.IdempotencyStore
	timeout      time.Duration
}

type Option func(*Handler)

// WithIdempotency enables Idempotency-Key handling on write routes.
func WithIdempotency(store middleware.IdempotencyStore) Option {
	return func(h *Handler) {
		h.idempotency = store
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a ledger Handler.
func New(
	ledger Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
	opts ...Option) *Handler {
	h := &Handler{
		logger:       logger,
		ledger:       ledger,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the ledger routes on r.
func (h *Handler) Register(r chi.Router) {
	ledgerRouter := chi.NewRouter()
	ledgerRouter.Use(middleware.Recovery(h.logger))
	ledgerRouter.Use(middleware.RequestID)
	ledgerRouter.Use(metadata.ClientMetadata)
	ledgerRouter.Use(requesttime.Middleware)
	ledgerRouter.Use(middleware.Logger(h.logger))
	ledgerRouter.Use(middleware.Timeout(h.timeout))
	ledgerRouter.Use(middleware.ContentTypeJSON)
	ledgerRouter.Use(middleware.LatencyMiddleware(h.metrics))
	ledgerRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	ledgerRouter.Use(middleware.Idempotency(h.idempotency, h.logger, h.metrics))

	ledgerRouter.Route("/batches", func(r chi.Router) {
		r.Post("/", h.handleCreateBatch)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/", h.handleGetBatch)
			r.Post("/status", h.handleUpdateStatus)
			r.Post("/lots", h.handleCreateLot)
			r.Post("/inspectors", h.handleAddInspector)
			r.Put("/inspection", h.handleUpdateInspection)
			r.Get("/inspections", h.handleListInspections)
			r.Post("/defects", h.handleReportDefect)
			r.Get("/defects", h.handleListDefects)
			r.Post("/recall", h.handleRecall)
			r.Post("/dispose", h.handleDispose)
		})
	})
	ledgerRouter.Get("/lots/{lotID}", h.handleGetLot)
	ledgerRouter.Post("/assets/{kind}/{assetID}/approvals", h.handleApproveTransfer)
	ledgerRouter.Get("/assets/{kind}/{assetID}/custody", h.handleCustody)
	ledgerRouter.Get("/recalls/{recallID}", h.handleGetRecall)
	ledgerRouter.Post("/recalls/{recallID}/resolve", h.handleResolveRecall)
	ledgerRouter.Post("/listings/lot", h.handleCreateLotListing)
	ledgerRouter.Post("/listings/batch", h.handleCreateBatchListing)
	ledgerRouter.Get("/listings/{kind}/{listingID}", h.handleGetListing)
	ledgerRouter.Post("/listings/{kind}/{listingID}/purchase", h.handlePurchase)
	ledgerRouter.Post("/returns/{kind}/{assetID}", h.handleRequestReturn)
	ledgerRouter.Get("/returns/{kind}/{assetID}", h.handleGetReturn)
	ledgerRouter.Post("/returns/{kind}/{assetID}/approve", h.handleResolveReturn(true))
	ledgerRouter.Post("/returns/{kind}/{assetID}/deny", h.handleResolveReturn(false))
	ledgerRouter.Get("/events/{kind}/{entityID}", h.handleEntityEvents)

	r.Mount("/v1", ledgerRouter)
}

// respond writes v on success and the mapped error otherwise. Server-side
// failures are logged; client errors were already logged by the service.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "ledger request failed",
				"request_id", middleware.GetRequestID(r.Context()),
				"path", r.URL.Path,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, status, v)
}

// decode reads the body into T, writing the error response itself.
func decode[T any](h *Handler, w http.ResponseWriter, r *http.Request) (*T, bool) {
	return httputil.DecodeAndPrepare[T](w, r, h.logger, middleware.GetRequestID(r.Context()))
}

func (h *Handler) batchParam(w http.ResponseWriter, r *http.Request, name string) (id.BatchID, bool) {
	batchID, err := id.ParseBatchID(chi.URLParam(r, name))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return batchID, true
}

func (h *Handler) assetParam(w http.ResponseWriter, r *http.Request) (id.AssetRef, bool) {
	ref, err := id.ParseAssetRef(chi.URLParam(r, "kind"), chi.URLParam(r, "assetID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.AssetRef{}, false
	}
	return ref, true
}

func (h *Handler) listingParams(w http.ResponseWriter, r *http.Request) (id.AssetKind, id.ListingID, bool) {
	kind, err := id.ParseAssetKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	listingID, err := id.ParseListingID(chi.URLParam(r, "listingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	return kind, listingID, true
}

func parseAccount(w http.ResponseWriter, raw string) (id.AccountID, bool) {
	account, err := id.ParseAccountID(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return account, true
}

func parseContent(w http.ResponseWriter, raw string) (models.ContentRef, bool) {
	ref, err := models.ParseContentRef(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return ref, true
}
