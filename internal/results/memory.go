package results

import (
	"context"
	"sort"
	"sync"
	"time"
)

type pointKey struct {
	farmID      string
	variable    string
	periodStart time.Time
}

// MemorySink is an in-process Sink with the same idempotent upsert semantics
// as the database-backed one. Used in tests and single-node deployments.
type MemorySink struct {
	mu     sync.Mutex
	points map[pointKey]Point
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{points: make(map[pointKey]Point)}
}

// Upsert implements Sink. Later writes for the same key replace earlier ones.
func (s *MemorySink) Upsert(ctx context.Context, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[pointKey{p.FarmID, p.Variable, p.PeriodStart}] = p
	}
	return nil
}

// Series returns the stored points for a farm, optionally filtered by
// variable, ordered by period then variable.
func (s *MemorySink) Series(farmID, variable string) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Point
	for key, p := range s.points {
		if key.farmID != farmID {
			continue
		}
		if variable != "" && key.variable != variable {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		return out[i].Variable < out[j].Variable
	})
	return out
}

// Len returns the number of stored points.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}
