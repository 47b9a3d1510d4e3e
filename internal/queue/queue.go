// Package queue implements the durable priority job queue: enqueue with
// idempotent deduplication, lease/visibility-timeout acquisition, fenced
// completion reporting, retry with exponential backoff, and dead-lettering.
package queue

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Default retry policy values.
const (
	DefaultMaxAttempts   = 5
	DefaultBackoffBase   = 30 * time.Second
	DefaultBackoffCap    = 15 * time.Minute
	DefaultBackoffJitter = 0.2
)

// EnqueueOptions tune a single submission.
type EnqueueOptions struct {
	// Priority orders leasing; lower values are served first.
	Priority int
	// MaxAttempts caps retries before dead-lettering (default 5).
	MaxAttempts int
}

// Queue is the single coordination point of the processing pipeline. Every
// method is atomic with respect to the others; no two concurrent Lease calls
// ever return the same job.
type Queue interface {
	// Enqueue registers a new job, or returns the existing in-flight job
	// with the same idempotency key. The bool reports deduplication.
	Enqueue(ctx context.Context, payload Payload, opts EnqueueOptions) (*Job, bool, error)

	// Lease atomically claims the eligible job with the lowest priority
	// value (FIFO within a priority) for the given visibility window.
	// Returns ErrNoEligibleJobs when nothing is ready.
	Lease(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error)

	// Renew extends a held lease; fenced when it already expired.
	Renew(ctx context.Context, jobID, workerID string, leaseDuration time.Duration) error

	// Ack marks the job SUCCEEDED. Fenced when the lease is no longer
	// owned by workerID.
	Ack(ctx context.Context, jobID, workerID string) error

	// Nack records a failed attempt. Terminal failures and exhausted
	// attempts dead-letter the job; otherwise it becomes retryable after
	// a backoff delay. Fenced like Ack.
	Nack(ctx context.Context, jobID, workerID, reason string, terminal bool) error

	// Cancel cancels a PENDING job immediately, or flags a LEASED job so
	// the owning worker can observe the request (best effort).
	Cancel(ctx context.Context, jobID string) error

	// ConfirmCancel is called by a worker that observed a cancellation
	// signal mid-flight and aborted. Fenced like Ack.
	ConfirmCancel(ctx context.Context, jobID, workerID string) error

	// ReapExpired returns every LEASED job with an expired lease to the
	// eligible pool (or dead-letters it when attempts are exhausted) and
	// reports how many jobs were reclaimed.
	ReapExpired(ctx context.Context) (int, error)

	// Status returns the current job record.
	Status(ctx context.Context, jobID string) (*Job, error)
}

// BackoffPolicy computes retry delays: base * 2^attempt scaled by
// (1 ± jitter), capped.
type BackoffPolicy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
}

// DefaultBackoff returns the standard retry policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:   DefaultBackoffBase,
		Cap:    DefaultBackoffCap,
		Jitter: DefaultBackoffJitter,
	}
}

// Delay returns the wait before the given attempt (1-based) may run again.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	capDelay := p.Cap
	if capDelay <= 0 {
		capDelay = DefaultBackoffCap
	}

	delay := float64(base) * math.Pow(2, float64(attempt))
	if p.Jitter > 0 {
		spread := 1 + p.Jitter*(2*rand.Float64()-1)
		delay *= spread
	}
	if delay > float64(capDelay) {
		delay = float64(capDelay)
	}
	return time.Duration(delay)
}
