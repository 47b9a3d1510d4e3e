package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fieldlens/fieldlens/shared/postgresql"
)

// PostgresQueue is the durable queue backend. Lease acquisition uses
// FOR UPDATE SKIP LOCKED so concurrent workers never claim the same row, and
// every completion report is fenced on (lease_owner, lease_expiry) in the
// WHERE clause.
type PostgresQueue struct {
	db      *sqlx.DB
	logger  *slog.Logger
	backoff BackoffPolicy
}

// NewPostgresQueue creates a queue over an established connection.
func NewPostgresQueue(pg *postgresql.Client, backoff BackoffPolicy, logger *slog.Logger) *PostgresQueue {
	return &PostgresQueue{
		db:      pg.GetDB(),
		logger:  logger,
		backoff: backoff,
	}
}

// EnsureSchema creates the jobs table and its in-flight uniqueness index.
func (q *PostgresQueue) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id               UUID PRIMARY KEY,
			idempotency_key  TEXT NOT NULL,
			priority         INT NOT NULL DEFAULT 0,
			state            TEXT NOT NULL DEFAULT 'PENDING',
			attempt_count    INT NOT NULL DEFAULT 0,
			max_attempts     INT NOT NULL DEFAULT 5,
			next_eligible_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			lease_owner      TEXT,
			lease_expiry     TIMESTAMPTZ,
			cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
			last_error       TEXT NOT NULL DEFAULT '',
			payload          JSONB NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// One in-flight job per logical task.
		`CREATE UNIQUE INDEX IF NOT EXISTS jobs_inflight_key_idx
			ON jobs (idempotency_key)
			WHERE state IN ('PENDING', 'LEASED', 'FAILED_RETRYABLE')`,
		`CREATE INDEX IF NOT EXISTS jobs_lease_idx
			ON jobs (state, priority, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := q.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create jobs schema: %w", err)
		}
	}
	return nil
}

// Enqueue implements Queue. The partial unique index turns a duplicate
// in-flight submission into a no-op insert; the existing job is returned.
func (q *PostgresQueue) Enqueue(ctx context.Context, payload Payload, opts EnqueueOptions) (*Job, bool, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal payload: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	key := payload.IdempotencyKey()

	insert := `
		INSERT INTO jobs (id, idempotency_key, priority, state, max_attempts, payload)
		VALUES ($1, $2, $3, 'PENDING', $4, $5)
		ON CONFLICT (idempotency_key)
			WHERE state IN ('PENDING', 'LEASED', 'FAILED_RETRYABLE')
			DO NOTHING
		RETURNING id
	`
	existing := `
		SELECT id FROM jobs
		WHERE idempotency_key = $1
		  AND state IN ('PENDING', 'LEASED', 'FAILED_RETRYABLE')
	`

	// The conflicting job can settle between the insert and the lookup,
	// which frees the key again; one more insert round covers that race.
	for attempt := 0; attempt < 2; attempt++ {
		var insertedID string
		err := q.db.QueryRowxContext(ctx, insert, uuid.NewString(), key, opts.Priority, maxAttempts, payloadJSON).Scan(&insertedID)
		if err == nil {
			job, err := q.fetch(ctx, insertedID)
			return job, false, err
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
		}

		var existingID string
		err = q.db.QueryRowxContext(ctx, existing, key).Scan(&existingID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up deduplicated job: %w", err)
		}

		job, err := q.fetch(ctx, existingID)
		if err != nil {
			return nil, false, err
		}

		q.logger.Info("Duplicate submission coalesced",
			slog.String("job_id", existingID),
			slog.String("idempotency_key", key),
		)
		return job, true, nil
	}

	return nil, false, fmt.Errorf("failed to enqueue job: idempotency key %s stayed contended", key)
}

// Lease implements Queue.
func (q *PostgresQueue) Lease(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error) {
	query := `
		UPDATE jobs SET
			state = 'LEASED',
			lease_owner = $1,
			lease_expiry = NOW() + make_interval(secs => $2),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE (state = 'PENDING' AND NOT cancel_requested)
			   OR (state = 'FAILED_RETRYABLE' AND NOT cancel_requested AND next_eligible_at <= NOW())
			ORDER BY priority ASC, created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`

	var id string
	err := q.db.QueryRowxContext(ctx, query, workerID, leaseDuration.Seconds()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEligibleJobs
		}
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}

	return q.fetch(ctx, id)
}

// Renew implements Queue.
func (q *PostgresQueue) Renew(ctx context.Context, jobID, workerID string, leaseDuration time.Duration) error {
	query := `
		UPDATE jobs SET
			lease_expiry = NOW() + make_interval(secs => $1),
			updated_at = NOW()
		WHERE id = $2 AND state = 'LEASED' AND lease_owner = $3 AND lease_expiry > NOW()
	`
	return q.fencedExec(ctx, query, leaseDuration.Seconds(), jobID, workerID)
}

// Ack implements Queue.
func (q *PostgresQueue) Ack(ctx context.Context, jobID, workerID string) error {
	query := `
		UPDATE jobs SET
			state = 'SUCCEEDED',
			lease_owner = NULL,
			lease_expiry = NULL,
			last_error = '',
			updated_at = NOW()
		WHERE id = $1 AND state = 'LEASED' AND lease_owner = $2 AND lease_expiry > NOW()
	`
	return q.fencedExec(ctx, query, jobID, workerID)
}

// Nack implements Queue. The attempt counter and backoff delay are decided
// inside one transaction so concurrent reports cannot double-count.
func (q *PostgresQueue) Nack(ctx context.Context, jobID, workerID, reason string, terminal bool) error {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin nack transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		attemptCount, maxAttempts int
		cancelRequested           bool
	)
	hold := `
		SELECT attempt_count, max_attempts, cancel_requested FROM jobs
		WHERE id = $1 AND state = 'LEASED' AND lease_owner = $2 AND lease_expiry > NOW()
		FOR UPDATE
	`
	if err := tx.QueryRowxContext(ctx, hold, jobID, workerID).Scan(&attemptCount, &maxAttempts, &cancelRequested); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLeaseFenced
		}
		return fmt.Errorf("failed to read job for nack: %w", err)
	}

	attemptCount++
	state := StateFailedRetryable
	delay := q.backoff.Delay(attemptCount)
	switch {
	case cancelRequested:
		// A pending cancel outranks the retry ladder: a retryable state with
		// cancel_requested set would never be leaseable again.
		state = StateCanceled
		reason = "canceled before retry"
		delay = 0
	case terminal || attemptCount >= maxAttempts:
		state = StateFailedTerminal
		delay = 0
	}

	update := `
		UPDATE jobs SET
			state = $1,
			attempt_count = $2,
			next_eligible_at = NOW() + make_interval(secs => $3),
			last_error = $4,
			lease_owner = NULL,
			lease_expiry = NULL,
			updated_at = NOW()
		WHERE id = $5
	`
	if _, err := tx.ExecContext(ctx, update, state, attemptCount, delay.Seconds(), reason, jobID); err != nil {
		return fmt.Errorf("failed to update job for nack: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit nack: %w", err)
	}

	if state == StateFailedTerminal {
		q.logger.Warn("Job dead-lettered",
			slog.String("job_id", jobID),
			slog.Int("attempt_count", attemptCount),
			slog.String("reason", reason),
		)
	}
	return nil
}

// Cancel implements Queue.
func (q *PostgresQueue) Cancel(ctx context.Context, jobID string) error {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cancel transaction: %w", err)
	}
	defer tx.Rollback()

	var state State
	if err := tx.QueryRowxContext(ctx, `SELECT state FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to read job for cancel: %w", err)
	}

	switch state {
	case StatePending, StateFailedRetryable:
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET
				state = 'CANCELED',
				last_error = 'canceled before processing',
				updated_at = NOW()
			WHERE id = $1
		`, jobID)
	case StateLeased:
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET cancel_requested = TRUE, updated_at = NOW() WHERE id = $1
		`, jobID)
	default:
		return fmt.Errorf("%w: state is %s", ErrNotCancelable, state)
	}
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	return tx.Commit()
}

// ConfirmCancel implements Queue.
func (q *PostgresQueue) ConfirmCancel(ctx context.Context, jobID, workerID string) error {
	query := `
		UPDATE jobs SET
			state = 'CANCELED',
			last_error = 'canceled during processing',
			lease_owner = NULL,
			lease_expiry = NULL,
			updated_at = NOW()
		WHERE id = $1 AND state = 'LEASED' AND lease_owner = $2 AND lease_expiry > NOW()
	`
	return q.fencedExec(ctx, query, jobID, workerID)
}

// ReapExpired implements Queue.
func (q *PostgresQueue) ReapExpired(ctx context.Context) (int, error) {
	query := `
		UPDATE jobs SET
			attempt_count = attempt_count + 1,
			state = CASE
				WHEN cancel_requested THEN 'CANCELED'
				WHEN attempt_count + 1 >= max_attempts THEN 'FAILED_TERMINAL'
				ELSE 'PENDING'
			END,
			last_error = CASE
				WHEN cancel_requested THEN 'canceled after lease expired'
				ELSE 'lease expired'
			END,
			lease_owner = NULL,
			lease_expiry = NULL,
			next_eligible_at = NOW(),
			updated_at = NOW()
		WHERE state = 'LEASED' AND lease_expiry <= NOW()
	`

	res, err := q.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reaped leases: %w", err)
	}

	if affected > 0 {
		q.logger.Info("Expired leases reclaimed",
			slog.Int64("count", affected),
		)
	}
	return int(affected), nil
}

// Status implements Queue.
func (q *PostgresQueue) Status(ctx context.Context, jobID string) (*Job, error) {
	return q.fetch(ctx, jobID)
}

// fencedExec runs an update fenced on lease ownership and maps "no rows
// touched" to ErrLeaseFenced.
func (q *PostgresQueue) fencedExec(ctx context.Context, query string, args ...interface{}) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrLeaseFenced
	}
	return nil
}

func (q *PostgresQueue) fetch(ctx context.Context, jobID string) (*Job, error) {
	query := `
		SELECT id, idempotency_key, priority, state, attempt_count, max_attempts,
		       next_eligible_at, lease_owner, lease_expiry, cancel_requested,
		       last_error, payload, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var (
		job         Job
		leaseOwner  sql.NullString
		leaseExpiry sql.NullTime
		payloadJSON []byte
	)

	err := q.db.QueryRowxContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.IdempotencyKey,
		&job.Priority,
		&job.State,
		&job.AttemptCount,
		&job.MaxAttempts,
		&job.NextEligibleAt,
		&leaseOwner,
		&leaseExpiry,
		&job.CancelRequested,
		&job.LastError,
		&payloadJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if leaseOwner.Valid {
		job.LeaseOwner = leaseOwner.String
	}
	if leaseExpiry.Valid {
		job.LeaseExpiry = leaseExpiry.Time
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	return &job, nil
}
