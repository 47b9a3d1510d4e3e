package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldlens/fieldlens/internal/results"
	"github.com/fieldlens/fieldlens/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Storage reads the timeseries table written by the workers.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// SeriesFilter narrows a time-series query. Zero fields are ignored.
type SeriesFilter struct {
	Variable string
	From     *time.Time
	To       *time.Time
}

// Series returns the points of one farm ordered by period, oldest first.
func (s *Storage) Series(ctx context.Context, farmID string, filter SeriesFilter) ([]results.Point, error) {
	query := `
		SELECT
			farm_id, variable, period_start, period_end,
			value, quality_flag, computed_at
		FROM timeseries
		WHERE farm_id = $1
	`
	args := []interface{}{farmID}
	argIdx := 2

	if filter.Variable != "" {
		query += fmt.Sprintf(" AND variable = $%d", argIdx)
		args = append(args, filter.Variable)
		argIdx++
	}

	if filter.From != nil {
		query += fmt.Sprintf(" AND period_start >= $%d", argIdx)
		args = append(args, *filter.From)
		argIdx++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND period_start < $%d", argIdx)
		args = append(args, *filter.To)
		argIdx++
	}

	query += " ORDER BY variable ASC, period_start ASC"

	var points []results.Point
	err := s.db.SelectContext(ctx, &points, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}

	return points, nil
}

// Latest returns the most recent point of each variable for one farm.
func (s *Storage) Latest(ctx context.Context, farmID string) ([]results.Point, error) {
	query := `
		SELECT DISTINCT ON (variable)
			farm_id, variable, period_start, period_end,
			value, quality_flag, computed_at
		FROM timeseries
		WHERE farm_id = $1
		ORDER BY variable ASC, period_start DESC
	`

	var points []results.Point
	err := s.db.SelectContext(ctx, &points, query, farmID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest points: %w", err)
	}

	return points, nil
}

// VariableSummary aggregates the OK points of one variable. Count includes
// only points carrying a value; no-data points are excluded from all stats.
type VariableSummary struct {
	Variable string   `db:"variable"`
	Count    int      `db:"count"`
	Mean     *float64 `db:"mean"`
	Min      *float64 `db:"min"`
	Max      *float64 `db:"max"`
}

// Summary returns per-variable aggregates for one farm, optionally narrowed
// to a single variable.
func (s *Storage) Summary(ctx context.Context, farmID, variable string) ([]VariableSummary, error) {
	query := `
		SELECT
			variable,
			COUNT(value) AS count,
			AVG(value)   AS mean,
			MIN(value)   AS min,
			MAX(value)   AS max
		FROM timeseries
		WHERE farm_id = $1
	`
	args := []interface{}{farmID}

	if variable != "" {
		query += " AND variable = $2"
		args = append(args, variable)
	}

	query += " GROUP BY variable ORDER BY variable ASC"

	var summaries []VariableSummary
	err := s.db.SelectContext(ctx, &summaries, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}

	return summaries, nil
}
