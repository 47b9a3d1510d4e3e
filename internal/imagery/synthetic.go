package imagery

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/fieldlens/fieldlens/internal/geometry"
)

// revisitInterval approximates the Sentinel-2 revisit cadence.
const revisitInterval = 5 * 24 * time.Hour

// SyntheticFetcher generates deterministic pseudo scenes for a geometry and
// date range. It stands in for the real imagery provider in development and
// tests: values follow a seasonal curve with noise, and cloud cover varies
// per scene, so the downstream cloud filter sees realistic inputs.
type SyntheticFetcher struct {
	// Pixels is the edge length of the square raster grid (default 16).
	Pixels int
}

// FetchScenes implements SceneFetcher.
func (f *SyntheticFetcher) FetchScenes(ctx context.Context, g geometry.Polygon, start, end time.Time) ([]Scene, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	edge := f.Pixels
	if edge <= 0 {
		edge = 16
	}
	pixels := edge * edge

	min, max := g.BoundingBox()
	seed := int64(math.Float64bits(min.Lon) ^ math.Float64bits(max.Lat))
	rng := rand.New(rand.NewSource(seed))

	var scenes []Scene
	for date := start; !date.After(end); date = date.Add(revisitInterval) {
		dayOfYear := float64(date.YearDay())
		seasonal := 0.1 * math.Sin(2*math.Pi*dayOfYear/365)

		// Per-scene cloudiness base; some scenes are mostly clear, some
		// mostly overcast.
		cloudBase := rng.Float64()

		scene := Scene{
			Date: date,
			Bands: map[Band][]float64{
				BandBlue:  make([]float64, pixels),
				BandRed:   make([]float64, pixels),
				BandNIR:   make([]float64, pixels),
				BandSWIR1: make([]float64, pixels),
			},
			CloudProb: make([]float64, pixels),
		}

		for i := 0; i < pixels; i++ {
			noise := rng.NormFloat64() * 0.02
			nir := clamp(0.45+seasonal+noise, 0.05, 0.95)
			red := clamp(0.12-seasonal/2+rng.NormFloat64()*0.01, 0.02, 0.6)
			blue := clamp(0.08+rng.NormFloat64()*0.01, 0.01, 0.4)
			swir := clamp(0.20-seasonal/3+rng.NormFloat64()*0.015, 0.02, 0.6)

			scene.Bands[BandNIR][i] = nir
			scene.Bands[BandRed][i] = red
			scene.Bands[BandBlue][i] = blue
			scene.Bands[BandSWIR1][i] = swir
			scene.CloudProb[i] = clamp(cloudBase+rng.NormFloat64()*0.15, 0, 1)
		}

		scenes = append(scenes, scene)
	}

	return scenes, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
