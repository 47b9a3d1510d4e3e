// Package results defines the write contract for computed time-series
// points and the storage backends that satisfy it.
package results

import (
	"context"
	"errors"
	"time"
)

// QualityFlag classifies a time-series point.
const (
	FlagOK          = "OK"
	FlagNoDataCloud = "NO_DATA_CLOUD"
	FlagNoDataGap   = "NO_DATA_GAP"
)

var (
	// ErrStorageUnavailable marks transient sink failures; the owning job
	// is retried with backoff.
	ErrStorageUnavailable = errors.New("result storage unavailable")
)

// Point is one computed value for a (farm, variable, period) cell. Value is
// nil unless Flag is OK.
type Point struct {
	FarmID      string     `db:"farm_id" json:"farm_id"`
	Variable    string     `db:"variable" json:"variable"`
	PeriodStart time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time  `db:"period_end" json:"period_end"`
	Value       *float64   `db:"value" json:"value,omitempty"`
	Flag        string     `db:"quality_flag" json:"quality_flag"`
	ComputedAt  time.Time  `db:"computed_at" json:"computed_at"`
}

// Sink persists computed points. Upsert must be idempotent under repeated
// identical writes keyed on (farm_id, variable, period_start): a fenced
// worker replaying its output must not produce duplicate rows.
type Sink interface {
	Upsert(ctx context.Context, points []Point) error
}
