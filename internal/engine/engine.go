// Package engine orchestrates one processing job: scene fetch, cloud
// filtering, temporal compositing and index computation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldlens/fieldlens/internal/composite"
	"github.com/fieldlens/fieldlens/internal/imagery"
	"github.com/fieldlens/fieldlens/internal/index"
	"github.com/fieldlens/fieldlens/internal/queue"
	"github.com/fieldlens/fieldlens/internal/results"
)

var (
	// ErrInvalidRequest marks a payload that can never succeed (empty
	// variable list, inverted date range, unregistered index). Jobs
	// failing with it are dead-lettered immediately.
	ErrInvalidRequest = errors.New("invalid processing request")
)

// Config wires the engine's collaborators.
type Config struct {
	Fetcher  imagery.SceneFetcher
	Registry *index.Registry
	Filter   composite.Config
	Period   composite.Period
	Logger   *slog.Logger
}

// Engine computes a cloud-filtered time series for one job payload.
type Engine struct {
	fetcher  imagery.SceneFetcher
	registry *index.Registry
	filter   composite.Config
	period   composite.Period
	logger   *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	period := cfg.Period
	if period == "" {
		period = composite.PeriodMonthly
	}
	return &Engine{
		fetcher:  cfg.Fetcher,
		registry: cfg.Registry,
		filter:   cfg.Filter,
		period:   period,
		logger:   cfg.Logger,
	}
}

// Process runs the full pipeline for one payload and returns one point per
// (variable, period). Per-variable computation failures become quality flags
// on the output, never errors; only provider, storage and input failures
// surface as errors.
func (e *Engine) Process(ctx context.Context, payload queue.Payload) ([]results.Point, error) {
	if err := e.validate(payload); err != nil {
		return nil, err
	}

	scenes, err := e.fetcher.FetchScenes(ctx, payload.Geometry, payload.StartDate, payload.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scenes: %w", err)
	}

	windows := composite.Windows(e.period, payload.StartDate, payload.EndDate)
	composites := e.filter.Build(scenes, windows)

	e.logger.Debug("Scenes composited",
		slog.String("farm_id", payload.FarmID),
		slog.Int("scenes", len(scenes)),
		slog.Int("periods", len(windows)),
	)

	now := time.Now().UTC()
	points := make([]results.Point, 0, len(composites)*len(payload.Variables))
	for _, comp := range composites {
		for _, variable := range payload.Variables {
			points = append(points, e.point(payload.FarmID, variable, comp, now))
		}
	}

	return points, nil
}

// point evaluates one variable against one composite and classifies the
// outcome.
func (e *Engine) point(farmID, variable string, comp composite.Composite, computedAt time.Time) results.Point {
	p := results.Point{
		FarmID:      farmID,
		Variable:    variable,
		PeriodStart: comp.Start,
		PeriodEnd:   comp.End,
		ComputedAt:  computedAt,
	}

	switch {
	case comp.TotalScenes == 0:
		// No acquisitions at all in this period.
		p.Flag = results.FlagNoDataGap
	case !comp.HasData():
		// Scenes existed but every one was too cloudy.
		p.Flag = results.FlagNoDataCloud
	default:
		value, err := e.registry.Evaluate(variable, index.Bands(comp.Bands))
		if err != nil {
			e.logger.Debug("Index not computable for period",
				slog.String("farm_id", farmID),
				slog.String("variable", variable),
				slog.Time("period_start", comp.Start),
				slog.String("reason", err.Error()),
			)
			p.Flag = results.FlagNoDataGap
		} else {
			p.Flag = results.FlagOK
			p.Value = &value
		}
	}

	return p
}

func (e *Engine) validate(payload queue.Payload) error {
	if len(payload.Variables) == 0 {
		return fmt.Errorf("%w: no variables requested", ErrInvalidRequest)
	}
	if payload.EndDate.Before(payload.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s",
			ErrInvalidRequest,
			payload.EndDate.Format("2006-01-02"),
			payload.StartDate.Format("2006-01-02"),
		)
	}
	for _, variable := range payload.Variables {
		if _, err := e.registry.Get(variable); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if err := payload.Geometry.Validate(); err != nil {
		return err
	}
	return nil
}
