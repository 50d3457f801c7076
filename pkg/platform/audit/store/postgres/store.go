package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	audit "provenance/pkg/platform/audit"
	txcontext "provenance/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the outbox
// worker. The Kafka consumer materializes them into audit_events for queries.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// execer joins the caller's transaction when there is one.
func (s *Store) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

// Payload is the JSON structure published to Kafka.
type Payload struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	State      string `json:"state,omitempty"`
	Actor      string `json:"actor,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Amount     uint64 `json:"amount,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// NewPayload converts an event to its wire form, assigning an id when missing.
func NewPayload(event audit.Event) Payload {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Payload{
		ID:         eventID,
		Category:   string(audit.AuditEvent(event.Action).Category()),
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
		Action:     event.Action,
		EntityKind: event.EntityKind,
		EntityID:   event.EntityID,
		State:      event.State,
		Actor:      event.Actor,
		From:       event.From,
		To:         event.To,
		Amount:     event.Amount,
		RequestID:  event.RequestID,
	}
}

// Event converts a decoded payload back into an audit event.
func (p Payload) Event() (audit.Event, error) {
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse event timestamp: %w", err)
	}
	return audit.Event{
		ID:         p.ID,
		Category:   audit.EventCategory(p.Category),
		Timestamp:  ts,
		Action:     p.Action,
		EntityKind: p.EntityKind,
		EntityID:   p.EntityID,
		State:      p.State,
		Actor:      p.Actor,
		From:       p.From,
		To:         p.To,
		Amount:     p.Amount,
		RequestID:  p.RequestID,
	}, nil
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload := NewPayload(event)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		event.EntityKind,
		event.EntityID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID inserts an event into the audit_events table.
// Used by the projection to materialize events for querying. An in-process
// relay runs it inside the outbox transaction. Duplicate deliveries are
// ignored via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, entity_kind, entity_id,
			state, actor, from_account, to_account, amount, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.Timestamp,
		event.Action,
		event.EntityKind,
		event.EntityID,
		event.State,
		event.Actor,
		event.From,
		event.To,
		strconv.FormatUint(event.Amount, 10),
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByEntity returns the materialized history of one entity, oldest first.
func (s *Store) ListByEntity(ctx context.Context, kind, entityID string) ([]audit.Event, error) {
	query := `
		SELECT id::text, category, timestamp, action, entity_kind, entity_id,
			   state, actor, from_account, to_account, amount::text, request_id
		FROM audit_events
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id::text, category, timestamp, action, entity_kind, entity_id,
			   state, actor, from_account, to_account, amount::text, request_id
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event    audit.Event
			category string
			amount   string
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.Action,
			&event.EntityKind,
			&event.EntityID,
			&event.State,
			&event.Actor,
			&event.From,
			&event.To,
			&amount,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if event.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("parse audit event amount: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
