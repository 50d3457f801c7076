package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"provenance/internal/ledger/models"
	"provenance/internal/ledger/payment"
	"provenance/internal/ledger/service"
	"provenance/internal/ledger/store"
	"provenance/internal/platform/metrics"
	"provenance/internal/platform/middleware"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/platform/audit/publisher"
	auditmemory "provenance/pkg/platform/audit/store/memory"
	"provenance/pkg/platform/httputil"
	"provenance/pkg/testutil"
)

const (
	manufacturer = "0xmanufacturer"
	buyer        = "0xbuyer"
	escrow       = "escrow"
)

// subjectValidator treats the bearer token as the subject itself.
type subjectValidator struct{}

func (subjectValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token == "expired" {
		return nil, errors.New("token expired")
	}
	return &middleware.JWTClaims{Subject: token, JTI: "jti-" + token}, nil
}

// memoryIdempotency is a map-backed IdempotencyStore.
type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) Reserve(_ context.Context, key string) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type LedgerHandlerSuite struct {
	suite.Suite
	payments *payment.InMemory
	router   chi.Router
}

func TestLedgerHandlerSuite(t *testing.T) {
	suite.Run(t, new(LedgerHandlerSuite))
}

func (s *LedgerHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := auditmemory.NewInMemoryStore()
	s.payments = payment.NewInMemory()

	ledger, err := service.New(store.NewInMemory(), s.payments, escrow,
		service.WithLogger(logger),
		service.WithAuditPublisher(publisher.NewPublisher(events)),
		service.WithAuditReader(events),
	)
	s.Require().NoError(err)

	s.router = newRouter(ledger, logger, WithIdempotency(&memoryIdempotency{keys: map[string]bool{}}))
}

func newRouter(ledger Service, logger *slog.Logger, opts ...Option) chi.Router {
	h := New(ledger, logger, metrics.New(prometheus.NewRegistry()), subjectValidator{}, opts...)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (s *LedgerHandlerSuite) do(account, method, path string, body any) *httptest.ResponseRecorder {
	s.T().Helper()
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if account != "" {
		testutil.WithBearer(req, account)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *LedgerHandlerSuite) createBatch(size uint64) *models.Batch {
	rr := s.do(manufacturer, http.MethodPost, "/v1/batches", map[string]any{
		"batch_size":         size,
		"manufacturing_date": "2022-03-01",
		"component_ids":      []string{"1", "2", "3"},
		"metadata_ref":       "ipfs://metadata",
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[models.Batch](s.T(), rr)
}

// =============================================================================
// Authentication & request shape
// =============================================================================

func (s *LedgerHandlerSuite) TestAuthentication() {
	s.Run("missing bearer token is unauthorized", func() {
		rr := s.do("", http.MethodGet, "/v1/batches/0", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("rejected token is unauthorized", func() {
		rr := s.do("expired", http.MethodGet, "/v1/batches/0", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("escrow account cannot write", func() {
		rr := s.do(escrow, http.MethodPost, "/v1/assets/lot/0/approvals", map[string]any{"spender": manufacturer})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})
}

func (s *LedgerHandlerSuite) TestMalformedRequests() {
	s.Run("unknown field is a bad request", func() {
		rr := s.do(manufacturer, http.MethodPost, "/v1/batches", map[string]any{"batch_size": 1, "colour": "red"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("non-numeric batch id is invalid input", func() {
		rr := s.do(manufacturer, http.MethodGet, "/v1/batches/abc", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	s.Run("truncated JSON is a bad request", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/batches", `{"batch_size": 5`)
		testutil.WithBearer(req, manufacturer)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("unknown asset kind is invalid input", func() {
		rr := s.do(manufacturer, http.MethodGet, "/v1/assets/pallet/0/custody", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	s.Run("inspection verdict outside approved and rejected fails validation", func() {
		b := s.createBatch(10)
		rr := s.do(manufacturer, http.MethodPut, "/v1/batches/"+b.ID.String()+"/inspection", map[string]any{"status": "pending"})
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		errResp := testutil.UnmarshalResponse[httputil.ErrorResponse](s.T(), rr)
		s.Contains(errResp.Fields, "status")
	})

	s.Run("listing without a batch id fails validation", func() {
		rr := s.do(manufacturer, http.MethodPost, "/v1/listings/batch", map[string]any{"price_per_unit": 1})
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

// =============================================================================
// Asset registry
// =============================================================================

func (s *LedgerHandlerSuite) TestCreateAndGetBatch() {
	b := s.createBatch(100)
	s.Equal(id.BatchID(0), b.ID)
	s.Equal(id.AccountID(manufacturer), b.Owner)
	s.Equal(models.StatusInProduction, b.Status)

	rr := s.do(buyer, http.MethodGet, "/v1/batches/0", nil)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "in_production")

	s.Run("unknown batch is not found", func() {
		rr := s.do(buyer, http.MethodGet, "/v1/batches/9999", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("zero batch size is invalid input", func() {
		rr := s.do(manufacturer, http.MethodPost, "/v1/batches", map[string]any{"batch_size": 0, "manufacturing_date": "2022-03-01"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}

func (s *LedgerHandlerSuite) TestUpdateStatus() {
	b := s.createBatch(10)
	path := "/v1/batches/" + b.ID.String() + "/status"

	s.Run("non-owner is forbidden", func() {
		rr := s.do(buyer, http.MethodPost, path, map[string]any{"status": "in_transit"})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})

	s.Run("owner moves the batch forward", func() {
		rr := s.do(manufacturer, http.MethodPost, path, map[string]any{"status": "in_transit"})
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "in_transit")
	})

	s.Run("unknown status name is invalid input", func() {
		rr := s.do(manufacturer, http.MethodPost, path, map[string]any{"status": "teleported"})
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *LedgerHandlerSuite) TestIdempotencyKeyRejectsReplay() {
	body := map[string]any{"batch_size": 5, "manufacturing_date": "2022-03-01"}

	first := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/batches", body)
	testutil.WithBearer(first, manufacturer)
	first.Header.Set(middleware.IdempotencyKeyHeader, "k1")
	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, first), http.StatusCreated)

	replay := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/batches", body)
	testutil.WithBearer(replay, manufacturer)
	replay.Header.Set(middleware.IdempotencyKeyHeader, "k1")
	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, replay), http.StatusConflict)

	rr := s.do(manufacturer, http.MethodGet, "/v1/batches/1", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

// =============================================================================
// Escrow settlement
// =============================================================================

func (s *LedgerHandlerSuite) TestLotSaleOverHTTP() {
	b := s.createBatch(100)

	rr := s.do(manufacturer, http.MethodPost, "/v1/batches/0/lots", map[string]any{"lot_size": 50})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	lot := testutil.UnmarshalResponse[models.Lot](s.T(), rr)
	s.Equal(b.ID, lot.BatchID)

	rr = s.do(manufacturer, http.MethodPost, "/v1/assets/lot/0/approvals", map[string]any{"spender": escrow})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(manufacturer, http.MethodPost, "/v1/listings/lot", map[string]any{"batch_id": 0, "lot_id": 0, "price_per_unit": 1})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	s.Run("underpayment is rejected and the listing stays open", func() {
		rr := s.do(buyer, http.MethodPost, "/v1/listings/lot/0/purchase", map[string]any{"payment": 49})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusPaymentRequired, string(dErrors.CodeInsufficientPayment))

		rr = s.do(buyer, http.MethodGet, "/v1/listings/lot/0", nil)
		testutil.AssertJSONContains(s.T(), rr, "is_fulfilled", false)
	})

	s.Run("exact payment fulfills the listing", func() {
		rr := s.do(buyer, http.MethodPost, "/v1/listings/lot/0/purchase", map[string]any{"payment": 50})
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		listing := testutil.UnmarshalResponse[models.Listing](s.T(), rr)
		s.True(listing.Fulfilled)
		s.Equal(id.AccountID(buyer), listing.Buyer)
		s.Equal(uint64(50), s.payments.Received(manufacturer))
	})

	s.Run("custody chain shows the sale and verifies", func() {
		rr := s.do(buyer, http.MethodGet, "/v1/assets/lot/0/custody", nil)
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		resp := testutil.UnmarshalResponse[custodyResponse](s.T(), rr)
		s.True(resp.Verified)
		s.Empty(resp.VerificationError)
		s.Require().Len(resp.Records, 3)
		s.Equal(id.AccountID(buyer), resp.Records[2].To)
		s.Equal(id.AccountID(escrow), resp.Records[2].From)
	})

	s.Run("fulfilled listing cannot be bought twice", func() {
		rr := s.do(buyer, http.MethodPost, "/v1/listings/lot/0/purchase", map[string]any{"payment": 50})
		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	})
}

func (s *LedgerHandlerSuite) TestReturnOverHTTP() {
	s.createBatch(10)
	s.Require().Equal(http.StatusOK, s.do(manufacturer, http.MethodPost, "/v1/assets/batch/0/approvals", map[string]any{"spender": escrow}).Code)
	s.Require().Equal(http.StatusCreated, s.do(manufacturer, http.MethodPost, "/v1/listings/batch", map[string]any{"batch_id": 0, "price_per_unit": 2}).Code)
	s.Require().Equal(http.StatusOK, s.do(buyer, http.MethodPost, "/v1/listings/batch/0/purchase", map[string]any{"payment": 20}).Code)

	rr := s.do(buyer, http.MethodPost, "/v1/returns/batch/0", nil)
	s.Equal(http.StatusForbidden, rr.Code, "buyer must first approve escrow")

	s.Require().Equal(http.StatusOK, s.do(buyer, http.MethodPost, "/v1/assets/batch/0/approvals", map[string]any{"spender": escrow}).Code)
	rr = s.do(buyer, http.MethodPost, "/v1/returns/batch/0", nil)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	testutil.AssertJSONContains(s.T(), rr, "status", "pending")

	s.Run("only the seller resolves", func() {
		rr := s.do(buyer, http.MethodPost, "/v1/returns/batch/0/approve", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	})

	s.Run("seller approval returns the batch", func() {
		rr := s.do(manufacturer, http.MethodPost, "/v1/returns/batch/0/approve", nil)
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		testutil.AssertJSONContains(s.T(), rr, "status", "approved")

		rr = s.do(manufacturer, http.MethodGet, "/v1/batches/0", nil)
		testutil.AssertJSONContains(s.T(), rr, "owner", manufacturer)
	})
}

// =============================================================================
// Quality & events
// =============================================================================

func (s *LedgerHandlerSuite) TestRecallAndDispose() {
	s.createBatch(10)

	rr := s.do(manufacturer, http.MethodPost, "/v1/batches/0/recall", map[string]any{"reason_ref": "ipfs://reason"})
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(buyer, http.MethodGet, "/v1/recalls/0", nil)
	testutil.AssertStatusOK(s.T(), rr)

	rr = s.do(manufacturer, http.MethodPost, "/v1/batches/0/dispose", nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	testutil.AssertJSONContains(s.T(), rr, "status", "disposed")

	rr = s.do(manufacturer, http.MethodPost, "/v1/batches/0/lots", map[string]any{"lot_size": 1})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeInvalidState))
}

func (s *LedgerHandlerSuite) TestEntityEvents() {
	s.createBatch(10)

	rr := s.do(buyer, http.MethodGet, "/v1/events/batch/0", nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	events := testutil.UnmarshalResponse[[]eventResponse](s.T(), rr)
	s.Require().NotEmpty(*events)
	s.Equal("batch_created", (*events)[0].Action)
	s.Equal(manufacturer, (*events)[0].Actor)

	s.Run("unknown entity kind is invalid input", func() {
		rr := s.do(buyer, http.MethodGet, "/v1/events/pallet/0", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}

// =============================================================================
// Failure mapping
// =============================================================================

// brokenLedger fails every read with an internal error.
type brokenLedger struct {
	Service
}

func (brokenLedger) GetBatch(context.Context, id.BatchID) (*models.Batch, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "state row corrupt")
}

func (brokenLedger) CustodyHistory(context.Context, id.AssetRef) ([]models.CustodyRecord, error) {
	return []models.CustodyRecord{{Asset: id.BatchAsset(0), To: manufacturer}}, nil
}

func (brokenLedger) VerifyCustodyChain(context.Context, id.AssetRef) error {
	return dErrors.New(dErrors.CodeInvariantViolation, "custody record 0 hash mismatch")
}

func TestInternalErrorsDoNotLeak(t *testing.T) {
	r := newRouter(brokenLedger{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := testutil.NewRequest(t, http.MethodGet, "/v1/batches/0")
	testutil.WithBearer(req, manufacturer)

	rr := testutil.DoRequest(r, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := testutil.UnmarshalResponse[httputil.ErrorResponse](t, rr)
	assert.Equal(t, string(dErrors.CodeInternal), resp.Error)
	assert.Empty(t, resp.Description)
}

func TestBrokenCustodyChainIsReportedInBody(t *testing.T) {
	r := newRouter(brokenLedger{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := testutil.NewRequest(t, http.MethodGet, "/v1/assets/batch/0/custody")
	testutil.WithBearer(req, manufacturer)

	rr := testutil.DoRequest(r, req)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[custodyResponse](t, rr)
	assert.False(t, resp.Verified)
	assert.Contains(t, resp.VerificationError, "hash mismatch")
	assert.Len(t, resp.Records, 1)
}

// =============================================================================
// Direct handler calls
// =============================================================================

func TestHandleCreateBatch_UsesAuthenticatedCaller(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger, err := service.New(store.NewInMemory(), payment.NewInMemory(), escrow, service.WithLogger(logger))
	require.NoError(t, err)
	h := New(ledger, logger, metrics.New(prometheus.NewRegistry()), subjectValidator{})

	testutil.Given(t, "a request authenticated as the manufacturer", func(t *testing.T) {
		body := testutil.MustMarshal(t, map[string]any{"batch_size": 3, "manufacturing_date": "2022-03-01"})
		req := testutil.WithAccount(testutil.NewRequestWithBody(t, http.MethodPost, "/v1/batches", body), manufacturer)

		testutil.When(t, "the batch is created", func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.handleCreateBatch(rr, req)

			testutil.Then(t, "the caller becomes owner and manufacturer", func(t *testing.T) {
				require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
				batch := testutil.UnmarshalResponse[models.Batch](t, rr)
				assert.Equal(t, id.AccountID(manufacturer), batch.Owner)
				assert.Equal(t, id.AccountID(manufacturer), batch.Manufacturer)

				testutil.And(t, "the batch starts in production", func(t *testing.T) {
					assert.Equal(t, models.StatusInProduction, batch.Status)
				})
			})
		})
	})

	testutil.Given(t, "a request without a caller", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/batches", map[string]any{"batch_size": 3, "manufacturing_date": "2022-03-01"})
		rr := httptest.NewRecorder()
		h.handleCreateBatch(rr, req)

		testutil.Then(t, "the service refuses it", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			testutil.AssertJSONHasKey(t, rr, "error")
		})
	})
}
