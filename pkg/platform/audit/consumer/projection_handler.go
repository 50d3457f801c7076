package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"provenance/internal/platform/kafka/consumer"
	audit "provenance/pkg/platform/audit"
	"provenance/pkg/platform/audit/store/postgres"
)

// ProjectionStore receives events keyed by their outbox id so redelivered
// records are written once.
type ProjectionStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// ProjectionHandler projects relayed ledger events into the queryable
// audit_events table.
type ProjectionHandler struct {
	store  ProjectionStore
	logger *slog.Logger
}

func NewProjectionHandler(store ProjectionStore, logger *slog.Logger) *ProjectionHandler {
	return &ProjectionHandler{
		store:  store,
		logger: logger,
	}
}

// Handle decodes one record. Malformed records are logged and skipped; store
// failures are returned so the offset is not committed.
func (h *ProjectionHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var payload postgres.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.WarnContext(ctx, "skipping undecodable audit record",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	eventID, err := uuid.Parse(payload.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "skipping audit record without event id",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	event, err := payload.Event()
	if err != nil {
		h.logger.WarnContext(ctx, "skipping audit record with bad timestamp",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		h.logger.ErrorContext(ctx, "failed to project audit event",
			"event_id", eventID,
			"action", event.Action,
			"error", err,
		)
		return err
	}
	return nil
}
