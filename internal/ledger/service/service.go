// Package service implements the ledger commands: the asset registry, the
// quality subsystem and the escrow settlement engine. Every command runs in
// one store transaction and either commits all of its effects or none.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"provenance/internal/ledger/metrics"
	"provenance/internal/ledger/models"
	"provenance/internal/ledger/payment"
	"provenance/internal/ledger/store"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	audit "provenance/pkg/platform/audit"
	"provenance/pkg/platform/sentinel"
	"provenance/pkg/requestcontext"
)

// AuditPublisher receives events after their command committed.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the ledger core. It is safe for concurrent use; the store
// serializes commands.
type Service struct {
	store    store.Store
	payments payment.Authority
	escrow   id.AccountID

	logger         *slog.Logger
	auditPublisher AuditPublisher
	auditReader    audit.Reader
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithAuditReader enables EntityEvents.
func WithAuditReader(reader audit.Reader) Option {
	return func(s *Service) {
		s.auditReader = reader
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service. escrow is the neutral account that holds listed
// assets.
func New(st store.Store, payments payment.Authority, escrow id.AccountID, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("ledger store is required")
	}
	if payments == nil {
		return nil, errors.New("payment authority is required")
	}
	if escrow.IsZero() {
		return nil, errors.New("escrow account is required")
	}
	s := &Service{
		store:    st,
		payments: payments,
		escrow:   escrow,
		logger:   slog.Default(),
		tracer:   otel.Tracer("provenance/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Escrow returns the escrow holder's account.
func (s *Service) Escrow() id.AccountID { return s.escrow }

// txn is the working set of one command.
type txn struct {
	st       *models.State
	now      time.Time
	caller   id.AccountID
	escrow   id.AccountID
	payments payment.Authority
	events   []audit.Event
	receipts []payment.Receipt
	moves    []models.CustodyReason
	sold     []id.AssetKind
}

func (t *txn) emit(action audit.AuditEvent, kind, entityID string, fill func(e *audit.Event)) {
	e := audit.Event{
		Action:     string(action),
		EntityKind: kind,
		EntityID:   entityID,
		Actor:      t.caller.String(),
		Timestamp:  t.now,
	}
	if fill != nil {
		fill(&e)
	}
	t.events = append(t.events, e)
}

// execute runs fn as one transaction on behalf of caller. Events are emitted
// only after the commit. If the commit fails after a payment settled, the
// payment is reversed.
func (s *Service) execute(ctx context.Context, op string, caller id.AccountID, fn func(ctx context.Context, t *txn) error) error {
	ctx, span := s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.String("ledger.operation", op),
		attribute.String("ledger.caller", caller.String()),
	))
	defer span.End()
	start := time.Now()

	err := s.run(ctx, caller, fn)

	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.logFailure(ctx, op, caller, err)
	}
	s.metrics.ObserveCommand(op, outcome, time.Since(start))
	return err
}

func (s *Service) run(ctx context.Context, caller id.AccountID, fn func(ctx context.Context, t *txn) error) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	if caller == s.escrow {
		return dErrors.New(dErrors.CodeForbidden, "the escrow holder cannot issue ledger commands")
	}

	var work *txn
	err := s.store.RunInTx(ctx, func(ctx context.Context, st *models.State) error {
		work = &txn{
			st:       st,
			now:      requestcontext.Now(ctx).UTC(),
			caller:   caller,
			escrow:   s.escrow,
			payments: s.payments,
		}
		return fn(ctx, work)
	})
	if err != nil {
		if work != nil && len(work.receipts) > 0 {
			s.reverse(ctx, work)
		}
		return translate(err)
	}

	for _, reason := range work.moves {
		s.metrics.IncCustodyTransfer(string(reason))
	}
	for _, kind := range work.sold {
		s.metrics.IncListingFulfilled(string(kind))
	}
	s.publish(ctx, work.events)
	return nil
}

func (s *Service) reverse(ctx context.Context, work *txn) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range work.receipts {
		if err := s.payments.Reverse(ctx, r); err != nil {
			s.metrics.IncPaymentReversal("failed")
			s.logger.ErrorContext(ctx, "failed to reverse payment after aborted commit",
				"receipt_id", r.ID,
				"reference", r.Transfer.Reference,
				"amount", r.Transfer.Amount,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			continue
		}
		s.metrics.IncPaymentReversal("reversed")
		s.publish(ctx, []audit.Event{{
			Action:     string(audit.EventPaymentReversed),
			EntityKind: "payment",
			EntityID:   r.ID,
			State:      r.Transfer.Reference,
			Actor:      work.caller.String(),
			From:       r.Transfer.Payee.String(),
			To:         r.Transfer.Payer.String(),
			Amount:     r.Transfer.Amount,
		}})
	}
}

// publish logs and forwards committed events. Emission never fails a
// command that already committed.
func (s *Service) publish(ctx context.Context, events []audit.Event) {
	requestID := requestcontext.RequestID(ctx)
	for _, e := range events {
		e.RequestID = requestID
		s.logAudit(ctx, e)
		if s.auditPublisher == nil {
			continue
		}
		if err := s.auditPublisher.Emit(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event",
				"action", e.Action,
				"entity_kind", e.EntityKind,
				"entity_id", e.EntityID,
				"error", err,
			)
		}
	}
}

func (s *Service) logAudit(ctx context.Context, e audit.Event) {
	args := []any{
		"entity_kind", e.EntityKind,
		"entity_id", e.EntityID,
		"actor", e.Actor,
	}
	if e.State != "" {
		args = append(args, "state", e.State)
	}
	if e.From != "" || e.To != "" {
		args = append(args, "from", e.From, "to", e.To)
	}
	if e.Amount > 0 {
		args = append(args, "amount", e.Amount)
	}
	if e.RequestID != "" {
		args = append(args, "request_id", e.RequestID)
	}
	args = append(args, "event", e.Action, "log_type", "audit")
	s.logger.InfoContext(ctx, e.Action, args...)
}

func (s *Service) logFailure(ctx context.Context, op string, caller id.AccountID, err error) {
	args := []any{
		"operation", op,
		"caller", caller.String(),
		"code", string(dErrors.CodeOf(err)),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation:
		s.logger.ErrorContext(ctx, "ledger command failed", args...)
	case dErrors.CodeOperationFailed, dErrors.CodeTimeout:
		s.logger.WarnContext(ctx, "ledger command failed", args...)
	default:
		s.logger.DebugContext(ctx, "ledger command rejected", args...)
	}
}

// view runs a read-only query against committed state.
func (s *Service) view(ctx context.Context, fn func(st *models.State) error) error {
	if err := s.store.View(ctx, fn); err != nil {
		return translate(err)
	}
	return nil
}

// translate keeps domain errors and maps infrastructure failures onto codes.
func translate(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger transaction timed out")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger state is not initialised")
	case errors.Is(err, sentinel.ErrCorrupt):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "ledger state is unreadable")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeOperationFailed, "ledger store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger transaction failed")
	}
}
