package results

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/fieldlens/fieldlens/shared/postgresql"
)

// PostgresSink persists points into the timeseries table. The unique
// constraint on (farm_id, variable, period_start) plus ON CONFLICT DO UPDATE
// makes repeated identical writes harmless, which is what fences duplicate
// output from expired leases.
type PostgresSink struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresSink creates a sink over an established connection.
func NewPostgresSink(pg *postgresql.Client, logger *slog.Logger) *PostgresSink {
	return &PostgresSink{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// EnsureSchema creates the timeseries table when it does not exist yet.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS timeseries (
			farm_id      TEXT NOT NULL,
			variable     TEXT NOT NULL,
			period_start TIMESTAMPTZ NOT NULL,
			period_end   TIMESTAMPTZ NOT NULL,
			value        DOUBLE PRECISION,
			quality_flag TEXT NOT NULL,
			computed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (farm_id, variable, period_start)
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create timeseries table: %w", err)
	}
	return nil
}

// Upsert implements Sink.
func (s *PostgresSink) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO timeseries (
			farm_id, variable, period_start, period_end,
			value, quality_flag, computed_at
		) VALUES (
			:farm_id, :variable, :period_start, :period_end,
			:value, :quality_flag, :computed_at
		)
		ON CONFLICT (farm_id, variable, period_start) DO UPDATE SET
			period_end   = EXCLUDED.period_end,
			value        = EXCLUDED.value,
			quality_flag = EXCLUDED.quality_flag,
			computed_at  = EXCLUDED.computed_at
	`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	for _, p := range points {
		if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
			return fmt.Errorf("%w: failed to upsert point: %v", ErrStorageUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", ErrStorageUnavailable, err)
	}

	s.logger.Debug("Time-series points upserted",
		slog.Int("count", len(points)),
		slog.String("farm_id", points[0].FarmID),
	)

	return nil
}
