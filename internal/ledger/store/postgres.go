package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"provenance/internal/ledger/models"
	"provenance/pkg/platform/sentinel"
	txcontext "provenance/pkg/platform/tx"
)

// Postgres stores the whole ledger as one JSONB row. RunInTx locks the row
// with SELECT ... FOR UPDATE, which serializes writers across processes.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

type PostgresOption func(*Postgres)

func WithPostgresTxTimeout(d time.Duration) PostgresOption {
	return func(s *Postgres) {
		s.timeout = d
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	s := &Postgres{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init inserts the empty state row if none exists.
func (s *Postgres) Init(ctx context.Context) error {
	empty, err := json.Marshal(models.NewState())
	if err != nil {
		return fmt.Errorf("encode empty state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_state (id, state, version, updated_at)
		VALUES (1, $1, 0, now())
		ON CONFLICT (id) DO NOTHING
	`, empty)
	if err != nil {
		return fmt.Errorf("init ledger state: %w", err)
	}
	return nil
}

// RunInTx hands fn a context carrying the SQL transaction so stores that
// share the database (the audit outbox) can join it.
func (s *Postgres) RunInTx(ctx context.Context, fn TxFunc) error {
	if err := abortIfDone(ctx); err != nil {
		return err
	}
	ctx, cancel := withTxDeadline(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var raw []byte
	var version int64
	err = tx.QueryRowContext(ctx, `SELECT state, version FROM ledger_state WHERE id = 1 FOR UPDATE`).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ledger state row: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock ledger state: %w", err)
	}

	st, err := decodeState(raw)
	if err != nil {
		return err
	}
	if err := fn(txcontext.WithTx(ctx, tx), st); err != nil {
		return err
	}

	encoded, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode ledger state: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_state SET state = $1, version = $2, updated_at = now() WHERE id = 1`,
		encoded, version+1,
	); err != nil {
		return fmt.Errorf("write ledger state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (s *Postgres) View(ctx context.Context, fn func(st *models.State) error) error {
	if err := abortIfDone(ctx); err != nil {
		return err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM ledger_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ledger state row: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read ledger state: %w", err)
	}
	st, err := decodeState(raw)
	if err != nil {
		return err
	}
	return fn(st)
}

// Version returns the number of committed commands.
func (s *Postgres) Version(ctx context.Context) (int64, error) {
	var version int64
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM ledger_state WHERE id = 1`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read ledger version: %w", err)
	}
	return version, nil
}

func decodeState(raw []byte) (*models.State, error) {
	st := &models.State{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode ledger state: %w: %w", sentinel.ErrCorrupt, err)
	}
	return st.Normalize(), nil
}
