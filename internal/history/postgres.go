package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"house-price-workers/internal/common/database"
	apperrors "house-price-workers/internal/common/errors"
	"house-price-workers/internal/pricing"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS valuations (
		id          UUID PRIMARY KEY,
		features    JSONB NOT NULL,
		aligned     JSONB NOT NULL,
		estimates   JSONB NOT NULL,
		currency    TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS valuations_created_at_idx ON valuations (created_at DESC)`,
}

const (
	insertValuation = `INSERT INTO valuations (id, features, aligned, estimates, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	selectValuation = `SELECT id, features, aligned, estimates, currency, created_at
		FROM valuations WHERE id = $1`
)

// PostgresRecorder stores valuations in the valuations table.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// EnsureSchema creates the valuations table if needed.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	return database.Migrate(ctx, r.db, postgresSchema...)
}

func (r *PostgresRecorder) Record(ctx context.Context, v *pricing.Valuation) error {
	features, err := json.Marshal(v.Features)
	if err != nil {
		return apperrors.NewValuationRecordFailedError(fmt.Errorf("encode features: %w", err))
	}
	aligned, err := json.Marshal(v.Aligned)
	if err != nil {
		return apperrors.NewValuationRecordFailedError(fmt.Errorf("encode aligned record: %w", err))
	}
	estimates, err := json.Marshal(v.Estimates)
	if err != nil {
		return apperrors.NewValuationRecordFailedError(fmt.Errorf("encode estimates: %w", err))
	}

	if _, err := r.db.ExecContext(ctx, insertValuation,
		v.ID, features, aligned, estimates, v.Currency, v.CreatedAt,
	); err != nil {
		return apperrors.NewValuationRecordFailedError(fmt.Errorf("insert valuation %s: %w", v.ID, err))
	}
	return nil
}

func (r *PostgresRecorder) Get(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	var features, aligned, estimates []byte
	err := r.db.QueryRowContext(ctx, selectValuation, id).
		Scan(&e.ID, &features, &aligned, &estimates, &e.Currency, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewValuationNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionFailedError(fmt.Errorf("select valuation %s: %w", id, err))
	}

	if err := json.Unmarshal(features, &e.Features); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("decode features of %s: %w", id, err))
	}
	if err := json.Unmarshal(estimates, &e.Estimates); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("decode estimates of %s: %w", id, err))
	}
	e.Aligned = json.RawMessage(aligned)
	return &e, nil
}
