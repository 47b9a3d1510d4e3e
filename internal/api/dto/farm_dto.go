package dto

// SeriesRequest filters GET /farms/:farm_id/series.
type SeriesRequest struct {
	Variable string `form:"variable"`
	From     string `form:"from"`
	To       string `form:"to"`
}

// PointDTO is one time-series observation.
type PointDTO struct {
	Variable    string   `json:"variable"`
	PeriodStart string   `json:"period_start"`
	PeriodEnd   string   `json:"period_end"`
	Value       *float64 `json:"value"`
	QualityFlag string   `json:"quality_flag"`
	ComputedAt  string   `json:"computed_at"`
}

// SeriesResponse wraps the points for one farm.
type SeriesResponse struct {
	FarmID string     `json:"farm_id"`
	Points []PointDTO `json:"points"`
}

// LatestResponse carries the most recent point per variable.
type LatestResponse struct {
	FarmID string     `json:"farm_id"`
	Latest []PointDTO `json:"latest"`
}

// VariableSummaryDTO aggregates the usable points of one variable.
type VariableSummaryDTO struct {
	Variable string   `json:"variable"`
	Count    int      `json:"count"`
	Mean     *float64 `json:"mean"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
}

// SummaryResponse reports per-variable aggregates for one farm.
type SummaryResponse struct {
	FarmID    string               `json:"farm_id"`
	Variables []VariableSummaryDTO `json:"variables"`
}
