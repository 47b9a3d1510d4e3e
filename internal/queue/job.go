package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fieldlens/fieldlens/internal/geometry"
)

// Job states.
type State string

const (
	StatePending         State = "PENDING"
	StateLeased          State = "LEASED"
	StateSucceeded       State = "SUCCEEDED"
	StateFailedRetryable State = "FAILED_RETRYABLE"
	StateFailedTerminal  State = "FAILED_TERMINAL"
	StateCanceled        State = "CANCELED"
)

// Terminal reports whether the state can never transition again.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailedTerminal, StateCanceled:
		return true
	}
	return false
}

// InFlight reports whether a job in this state counts against the
// one-in-flight-per-idempotency-key invariant.
func (s State) InFlight() bool {
	switch s {
	case StatePending, StateLeased, StateFailedRetryable:
		return true
	}
	return false
}

var (
	// ErrJobNotFound is returned when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoEligibleJobs is returned by Lease when nothing is ready.
	ErrNoEligibleJobs = errors.New("no eligible jobs")

	// ErrLeaseFenced is returned when a worker reports on a lease it no
	// longer owns. The caller must discard the outcome; any result rows it
	// already wrote are absorbed by the sink's idempotent upsert.
	ErrLeaseFenced = errors.New("lease expired or owned by another worker")

	// ErrNotCancelable is returned when cancellation is requested for a
	// job already in a terminal state.
	ErrNotCancelable = errors.New("job is not cancelable")
)

// Payload describes one processing request: which farm, which vegetation
// indices, over which date range.
type Payload struct {
	FarmID    string           `json:"farm_id"`
	Geometry  geometry.Polygon `json:"geometry"`
	Variables []string         `json:"variables"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
}

// IdempotencyKey fingerprints the logical task. Variable order does not
// matter: two submissions for the same farm, variable set and date range map
// to the same key.
func (p Payload) IdempotencyKey() string {
	vars := make([]string, len(p.Variables))
	copy(vars, p.Variables)
	sort.Strings(vars)

	raw := fmt.Sprintf("%s|%s|%s|%s",
		p.FarmID,
		strings.Join(vars, ","),
		p.StartDate.UTC().Format("2006-01-02"),
		p.EndDate.UTC().Format("2006-01-02"),
	)

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Job is one unit of processing work tracked by the queue.
type Job struct {
	ID              string    `db:"id"`
	IdempotencyKey  string    `db:"idempotency_key"`
	Priority        int       `db:"priority"`
	State           State     `db:"state"`
	AttemptCount    int       `db:"attempt_count"`
	MaxAttempts     int       `db:"max_attempts"`
	NextEligibleAt  time.Time `db:"next_eligible_at"`
	LeaseOwner      string    `db:"lease_owner"`
	LeaseExpiry     time.Time `db:"lease_expiry"`
	CancelRequested bool      `db:"cancel_requested"`
	LastError       string    `db:"last_error"`
	Payload         Payload   `db:"-"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}
