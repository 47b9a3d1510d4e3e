package handler

import (
	"context"
	"log/slog"

	"github.com/fieldlens/fieldlens/internal/api/storage"
	"github.com/fieldlens/fieldlens/internal/queue"
	"github.com/fieldlens/fieldlens/internal/results"
)

// FarmStore reads computed time-series points.
type FarmStore interface {
	Series(ctx context.Context, farmID string, filter storage.SeriesFilter) ([]results.Point, error)
	Latest(ctx context.Context, farmID string) ([]results.Point, error)
	Summary(ctx context.Context, farmID, variable string) ([]storage.VariableSummary, error)
}

// Notifier wakes idle workers after an enqueue. May be nil when the broker
// is disabled; workers fall back to polling.
type Notifier interface {
	PublishJobReady(ctx context.Context, jobID string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Queue    queue.Queue
	Store    FarmStore
	Notifier Notifier

	// MaxAttempts caps retries of submitted jobs; 0 keeps the queue default.
	MaxAttempts int
}

// JobHandler handles job submission and lifecycle requests
type JobHandler struct {
	logger      *slog.Logger
	queue       queue.Queue
	notifier    Notifier
	maxAttempts int
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		queue:       deps.Queue,
		notifier:    deps.Notifier,
		maxAttempts: deps.MaxAttempts,
	}
}

// FarmHandler serves computed vegetation-index data
type FarmHandler struct {
	logger *slog.Logger
	store  FarmStore
}

// NewFarmHandler creates a new FarmHandler instance
func NewFarmHandler(deps *Dependencies) *FarmHandler {
	return &FarmHandler{
		logger: deps.Logger,
		store:  deps.Store,
	}
}
