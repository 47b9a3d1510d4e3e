// Package worker runs the scheduler: a pool of goroutines leasing jobs from
// the queue, driving the processing engine, and reporting outcomes back.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldlens/fieldlens/internal/engine"
	"github.com/fieldlens/fieldlens/internal/metrics"
	"github.com/fieldlens/fieldlens/internal/queue"
	"github.com/fieldlens/fieldlens/internal/results"
)

// Default scheduler timings.
const (
	DefaultLeaseDuration     = 2 * time.Minute
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPollInterval      = 2 * time.Second
	DefaultReapInterval      = 30 * time.Second
)

// Config holds scheduler configuration.
type Config struct {
	Logger  *slog.Logger
	Queue   queue.Queue
	Engine  *engine.Engine
	Sink    results.Sink
	Metrics *metrics.Collector

	// Notifications optionally wakes idle workers when a job was just
	// enqueued; leasing order still comes from the queue alone.
	Notifications <-chan struct{}

	Concurrency       int
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	ReapInterval      time.Duration
}

// Scheduler owns the worker pool and the lease reaper.
type Scheduler struct {
	logger  *slog.Logger
	queue   queue.Queue
	engine  *engine.Engine
	sink    results.Sink
	metrics *metrics.Collector
	notify  <-chan struct{}

	workerID          string
	concurrency       int
	leaseDuration     time.Duration
	heartbeatInterval time.Duration
	pollInterval      time.Duration
	reapInterval      time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler, applying defaults for zero timings.
func NewScheduler(cfg *Config) *Scheduler {
	s := &Scheduler{
		logger:            cfg.Logger,
		queue:             cfg.Queue,
		engine:            cfg.Engine,
		sink:              cfg.Sink,
		metrics:           cfg.Metrics,
		notify:            cfg.Notifications,
		workerID:          uuid.NewString(),
		concurrency:       cfg.Concurrency,
		leaseDuration:     cfg.LeaseDuration,
		heartbeatInterval: cfg.HeartbeatInterval,
		pollInterval:      cfg.PollInterval,
		reapInterval:      cfg.ReapInterval,
	}

	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.leaseDuration <= 0 {
		s.leaseDuration = DefaultLeaseDuration
	}
	if s.heartbeatInterval <= 0 {
		s.heartbeatInterval = DefaultHeartbeatInterval
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.reapInterval <= 0 {
		s.reapInterval = DefaultReapInterval
	}
	s.stopChan = make(chan struct{})

	return s
}

// WorkerID returns this scheduler instance's identity, used as the lease
// owner prefix.
func (s *Scheduler) WorkerID() string {
	return s.workerID
}

// Start launches the worker pool and the lease reaper, then blocks until the
// context is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting worker scheduler",
		slog.String("worker_id", s.workerID),
		slog.Int("concurrency", s.concurrency),
		slog.Duration("lease_duration", s.leaseDuration),
		slog.Duration("heartbeat_interval", s.heartbeatInterval),
	)

	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i)
	}

	s.wg.Add(1)
	go s.reaperLoop(ctx)

	select {
	case <-ctx.Done():
	case <-s.stopChan:
	}

	s.logger.Info("Worker scheduler stopping",
		slog.String("worker_id", s.workerID),
	)
	return nil
}

// Stop stops leasing new jobs and waits for in-flight jobs to finish.
// Callers bound the drain with their own timeout; abandoned jobs are
// recovered by lease reaping.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.logger.Info("Worker scheduler stopped",
		slog.String("worker_id", s.workerID),
	)
}

// reaperLoop periodically returns expired leases to the eligible pool so
// crashed workers never strand jobs.
func (s *Scheduler) reaperLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := s.queue.ReapExpired(ctx)
			if err != nil {
				s.logger.Error("Lease reaping failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if reaped > 0 {
				s.metrics.JobsReaped.Add(float64(reaped))
				s.logger.Warn("Reclaimed expired leases",
					slog.Int("count", reaped),
				)
			}
		}
	}
}
