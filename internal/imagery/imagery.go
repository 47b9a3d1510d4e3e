package imagery

import (
	"context"
	"errors"
	"time"

	"github.com/fieldlens/fieldlens/internal/geometry"
)

// Band identifies a surface-reflectance band in a scene raster.
type Band string

const (
	BandBlue  Band = "BLUE"
	BandRed   Band = "RED"
	BandNIR   Band = "NIR"
	BandSWIR1 Band = "SWIR1"
)

var (
	// ErrProviderUnavailable marks transient provider failures; the job is
	// retried with backoff.
	ErrProviderUnavailable = errors.New("imagery provider unavailable")
)

// Scene is one satellite observation of a farm boundary: per-pixel band
// values plus a per-pixel cloud probability in [0, 1]. All slices are equal
// length; scenes are fetched per job and never persisted.
type Scene struct {
	Date      time.Time
	Bands     map[Band][]float64
	CloudProb []float64
}

// PixelCount returns the number of pixels covering the farm geometry.
func (s Scene) PixelCount() int {
	return len(s.CloudProb)
}

// CloudFraction is the fraction of pixels at or above the given cloud
// probability threshold.
func (s Scene) CloudFraction(pixelThreshold float64) float64 {
	if len(s.CloudProb) == 0 {
		return 1
	}
	cloudy := 0
	for _, p := range s.CloudProb {
		if p >= pixelThreshold {
			cloudy++
		}
	}
	return float64(cloudy) / float64(len(s.CloudProb))
}

// SceneFetcher supplies raw scenes for a geometry and date range.
//
// Implementations return geometry.ErrInvalidGeometry for boundaries the
// provider cannot resolve (terminal) and ErrProviderUnavailable for
// transient failures (retryable).
type SceneFetcher interface {
	FetchScenes(ctx context.Context, g geometry.Polygon, start, end time.Time) ([]Scene, error)
}
