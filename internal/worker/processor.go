package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fieldlens/fieldlens/internal/engine"
	"github.com/fieldlens/fieldlens/internal/geometry"
	"github.com/fieldlens/fieldlens/internal/queue"
)

// processJob runs one leased job end to end: heartbeat renewal, engine
// processing, result write, then the fenced Ack/Nack report.
func (s *Scheduler) processJob(ctx context.Context, workerName string, job *queue.Job) {
	s.metrics.JobsInFlight.Inc()
	defer s.metrics.JobsInFlight.Dec()

	start := time.Now()
	defer func() {
		s.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var canceled atomic.Bool
	heartbeatDone := make(chan struct{})
	go s.keepLease(jobCtx, workerName, job.ID, cancel, &canceled, heartbeatDone)
	defer close(heartbeatDone)

	points, err := s.engine.Process(jobCtx, job.Payload)

	if canceled.Load() && errors.Is(err, context.Canceled) {
		if confirmErr := s.queue.ConfirmCancel(ctx, job.ID, workerName); confirmErr != nil {
			s.reportFenced(workerName, job.ID, confirmErr)
		}
		s.logger.Info("Job canceled mid-flight",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.ID),
		)
		return
	}

	if err != nil {
		s.failJob(ctx, workerName, job, err)
		return
	}

	if err := s.sink.Upsert(jobCtx, points); err != nil {
		s.failJob(ctx, workerName, job, err)
		return
	}
	s.metrics.PointsWritten.Add(float64(len(points)))

	if err := s.queue.Ack(ctx, job.ID, workerName); err != nil {
		// The lease was lost after the results were written. The sink's
		// idempotent upsert absorbs the duplicate; nothing to undo.
		s.reportFenced(workerName, job.ID, err)
		return
	}

	s.metrics.JobsCompleted.Inc()
	s.logger.Info("Job completed",
		slog.String("worker_name", workerName),
		slog.String("job_id", job.ID),
		slog.String("farm_id", job.Payload.FarmID),
		slog.Int("points", len(points)),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// failJob classifies the failure and nacks accordingly.
func (s *Scheduler) failJob(ctx context.Context, workerName string, job *queue.Job, procErr error) {
	terminal := terminalFailure(procErr)

	s.logger.Error("Job processing failed",
		slog.String("worker_name", workerName),
		slog.String("job_id", job.ID),
		slog.Bool("terminal", terminal),
		slog.String("error", procErr.Error()),
	)

	if err := s.queue.Nack(ctx, job.ID, workerName, procErr.Error(), terminal); err != nil {
		s.reportFenced(workerName, job.ID, err)
		return
	}

	if terminal || job.AttemptCount+1 >= job.MaxAttempts {
		s.metrics.JobsDead.Inc()
	} else {
		s.metrics.JobsRetried.Inc()
	}
}

// keepLease renews the lease ahead of expiry and watches for cancellation
// requests. Losing the lease cancels the job context: from the queue's view
// this worker is already dead, so continuing would only duplicate work.
func (s *Scheduler) keepLease(ctx context.Context, workerName, jobID string, cancel context.CancelFunc, canceled *atomic.Bool, done <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.queue.Renew(ctx, jobID, workerName, s.leaseDuration); err != nil {
				if errors.Is(err, queue.ErrLeaseFenced) {
					s.logger.Warn("Lease lost during processing",
						slog.String("worker_name", workerName),
						slog.String("job_id", jobID),
					)
					s.metrics.LeaseFenced.Inc()
					cancel()
					return
				}
				s.logger.Warn("Failed to renew lease",
					slog.String("worker_name", workerName),
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
				continue
			}

			status, err := s.queue.Status(ctx, jobID)
			if err == nil && status.CancelRequested {
				s.logger.Info("Cancellation observed",
					slog.String("worker_name", workerName),
					slog.String("job_id", jobID),
				)
				canceled.Store(true)
				cancel()
				return
			}
		}
	}
}

func (s *Scheduler) reportFenced(workerName, jobID string, err error) {
	if errors.Is(err, queue.ErrLeaseFenced) {
		s.metrics.LeaseFenced.Inc()
		s.logger.Warn("Completion report fenced",
			slog.String("worker_name", workerName),
			slog.String("job_id", jobID),
		)
		return
	}
	s.logger.Error("Failed to report job outcome",
		slog.String("worker_name", workerName),
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
}

// terminalFailure reports whether the error can never succeed on retry.
// Provider and storage outages are retryable; malformed input is not.
func terminalFailure(err error) bool {
	return errors.Is(err, geometry.ErrInvalidGeometry) ||
		errors.Is(err, engine.ErrInvalidRequest)
}
