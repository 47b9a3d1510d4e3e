package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a mutex-guarded job table implementing the full queue
// contract in process: priority-then-FIFO leasing, idempotency-key
// deduplication, lease fencing, backoff and dead-lettering. It backs tests
// and single-node deployments; multi-node deployments use PostgresQueue.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	byKey   map[string]string // in-flight idempotency key -> job id
	order   map[string]uint64 // enqueue sequence for FIFO tie-breaks
	seq     uint64
	backoff BackoffPolicy

	// now is swapped out by tests to drive lease expiry.
	now func() time.Time
}

// NewMemoryQueue creates an empty queue with the given retry policy.
func NewMemoryQueue(backoff BackoffPolicy) *MemoryQueue {
	return &MemoryQueue{
		jobs:    make(map[string]*Job),
		byKey:   make(map[string]string),
		order:   make(map[string]uint64),
		backoff: backoff,
		now:     time.Now,
	}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, payload Payload, opts EnqueueOptions) (*Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := payload.IdempotencyKey()
	if existingID, ok := q.byKey[key]; ok {
		existing := q.jobs[existingID]
		return copyJob(existing), true, nil
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	now := q.now()
	job := &Job{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		Priority:       opts.Priority,
		State:          StatePending,
		MaxAttempts:    maxAttempts,
		NextEligibleAt: now,
		Payload:        payload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	q.seq++
	q.jobs[job.ID] = job
	q.byKey[key] = job.ID
	q.order[job.ID] = q.seq

	return copyJob(job), false, nil
}

// Lease implements Queue.
func (q *MemoryQueue) Lease(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var best *Job
	for _, job := range q.jobs {
		if !q.eligible(job, now) {
			continue
		}
		if best == nil || q.before(job, best) {
			best = job
		}
	}

	if best == nil {
		return nil, ErrNoEligibleJobs
	}

	best.State = StateLeased
	best.LeaseOwner = workerID
	best.LeaseExpiry = now.Add(leaseDuration)
	best.UpdatedAt = now

	return copyJob(best), nil
}

func (q *MemoryQueue) eligible(job *Job, now time.Time) bool {
	switch job.State {
	case StatePending:
		return !job.CancelRequested
	case StateFailedRetryable:
		return !job.CancelRequested && !now.Before(job.NextEligibleAt)
	}
	return false
}

// before orders candidates by priority, then enqueue time, then sequence.
func (q *MemoryQueue) before(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return q.order[a.ID] < q.order[b.ID]
}

// Renew implements Queue.
func (q *MemoryQueue) Renew(ctx context.Context, jobID, workerID string, leaseDuration time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.held(jobID, workerID)
	if err != nil {
		return err
	}

	now := q.now()
	job.LeaseExpiry = now.Add(leaseDuration)
	job.UpdatedAt = now
	return nil
}

// Ack implements Queue.
func (q *MemoryQueue) Ack(ctx context.Context, jobID, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.held(jobID, workerID)
	if err != nil {
		return err
	}

	q.settle(job, StateSucceeded, "")
	return nil
}

// Nack implements Queue.
func (q *MemoryQueue) Nack(ctx context.Context, jobID, workerID, reason string, terminal bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.held(jobID, workerID)
	if err != nil {
		return err
	}

	job.AttemptCount++
	if job.CancelRequested {
		// A pending cancel outranks the retry ladder: a retryable state with
		// cancel_requested set would never be leaseable again.
		q.settle(job, StateCanceled, "canceled before retry")
		return nil
	}
	if terminal || job.AttemptCount >= job.MaxAttempts {
		q.settle(job, StateFailedTerminal, reason)
		return nil
	}

	now := q.now()
	job.State = StateFailedRetryable
	job.LastError = reason
	job.LeaseOwner = ""
	job.LeaseExpiry = time.Time{}
	job.NextEligibleAt = now.Add(q.backoff.Delay(job.AttemptCount))
	job.UpdatedAt = now
	return nil
}

// Cancel implements Queue.
func (q *MemoryQueue) Cancel(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	switch job.State {
	case StatePending, StateFailedRetryable:
		q.settle(job, StateCanceled, "canceled before processing")
		return nil
	case StateLeased:
		job.CancelRequested = true
		job.UpdatedAt = q.now()
		return nil
	default:
		return fmt.Errorf("%w: state is %s", ErrNotCancelable, job.State)
	}
}

// ConfirmCancel implements Queue.
func (q *MemoryQueue) ConfirmCancel(ctx context.Context, jobID, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.held(jobID, workerID)
	if err != nil {
		return err
	}

	q.settle(job, StateCanceled, "canceled during processing")
	return nil
}

// ReapExpired implements Queue.
func (q *MemoryQueue) ReapExpired(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	reaped := 0
	for _, job := range q.jobs {
		if job.State != StateLeased || job.LeaseExpiry.After(now) {
			continue
		}

		job.AttemptCount++
		job.LeaseOwner = ""
		job.LeaseExpiry = time.Time{}
		if job.CancelRequested {
			q.settle(job, StateCanceled, "canceled after lease expired")
		} else if job.AttemptCount >= job.MaxAttempts {
			q.settle(job, StateFailedTerminal, "lease expired with no attempts remaining")
		} else {
			job.State = StatePending
			job.LastError = "lease expired"
			job.NextEligibleAt = now
			job.UpdatedAt = now
		}
		reaped++
	}
	return reaped, nil
}

// Status implements Queue.
func (q *MemoryQueue) Status(ctx context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyJob(job), nil
}

// held verifies that workerID still owns an unexpired lease on the job.
func (q *MemoryQueue) held(jobID, workerID string) (*Job, error) {
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.State != StateLeased || job.LeaseOwner != workerID || !job.LeaseExpiry.After(q.now()) {
		return nil, ErrLeaseFenced
	}
	return job, nil
}

// settle moves a job to a terminal state and releases its idempotency key
// so a fresh submission of the same logical task can be enqueued again.
func (q *MemoryQueue) settle(job *Job, state State, lastError string) {
	job.State = state
	job.LastError = lastError
	job.LeaseOwner = ""
	job.LeaseExpiry = time.Time{}
	job.UpdatedAt = q.now()
	if q.byKey[job.IdempotencyKey] == job.ID {
		delete(q.byKey, job.IdempotencyKey)
	}
}

func copyJob(job *Job) *Job {
	dup := *job
	return &dup
}
