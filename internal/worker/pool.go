package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldlens/fieldlens/internal/queue"
)

// workerLoop is the main loop of one pool goroutine: lease, process, report,
// idle until woken.
func (s *Scheduler) workerLoop(ctx context.Context, workerNum int) {
	defer s.wg.Done()

	workerName := fmt.Sprintf("%s-%d", s.workerID, workerNum)
	s.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-s.stopChan:
			s.logger.Info("Worker goroutine stopping",
				slog.String("worker_name", workerName),
			)
			return
		case <-ctx.Done():
			s.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return
		default:
		}

		job, err := s.queue.Lease(ctx, workerName, s.leaseDuration)
		if err != nil {
			if errors.Is(err, queue.ErrNoEligibleJobs) {
				s.idle(ctx)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to lease job",
				slog.String("worker_name", workerName),
				slog.String("error", err.Error()),
			)
			s.idle(ctx)
			continue
		}

		s.logger.Info("Job leased",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.ID),
			slog.String("farm_id", job.Payload.FarmID),
			slog.Int("priority", job.Priority),
			slog.Int("attempt_count", job.AttemptCount),
		)

		s.processJob(ctx, workerName, job)
	}
}

// idle waits for a wake-up notification, the poll interval, or shutdown.
func (s *Scheduler) idle(ctx context.Context) {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	if s.notify == nil {
		select {
		case <-s.stopChan:
		case <-ctx.Done():
		case <-timer.C:
		}
		return
	}

	select {
	case <-s.stopChan:
	case <-ctx.Done():
	case <-s.notify:
	case <-timer.C:
	}
}
