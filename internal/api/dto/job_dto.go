package dto

// SubmitJobRequest asks for a vegetation-index run over a farm boundary and
// date range. The boundary is either an array of [lon, lat] pairs or an
// inline KML document; exactly one must be present.
type SubmitJobRequest struct {
	FarmID    string      `json:"farm_id" binding:"required"`
	Variables []string    `json:"variables" binding:"required"`
	StartDate string      `json:"start_date" binding:"required"`
	EndDate   string      `json:"end_date" binding:"required"`
	Priority  int         `json:"priority"`
	Boundary  [][]float64 `json:"boundary,omitempty"`
	KML       string      `json:"kml,omitempty"`
}

// SubmitJobResponse reports the accepted (or deduplicated) job.
type SubmitJobResponse struct {
	JobID        string `json:"job_id"`
	State        string `json:"state"`
	Deduplicated bool   `json:"deduplicated"`
	CreatedAt    string `json:"created_at"`
}

// JobStatusResponse is the full queue-side view of a job.
type JobStatusResponse struct {
	JobID           string `json:"job_id"`
	State           string `json:"state"`
	Priority        int    `json:"priority"`
	AttemptCount    int    `json:"attempt_count"`
	MaxAttempts     int    `json:"max_attempts"`
	CancelRequested bool   `json:"cancel_requested"`
	LastError       string `json:"last_error,omitempty"`
	NextEligibleAt  string `json:"next_eligible_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}
