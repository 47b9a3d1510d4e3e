// Package composite turns a sequence of satellite scenes into cloud-filtered
// per-period composites. It is deterministic and performs no I/O.
package composite

import (
	"sort"
	"time"

	"github.com/fieldlens/fieldlens/internal/imagery"
)

// Default thresholds for the cloud filter.
const (
	// DefaultPixelCloudThreshold is the per-pixel cloud probability at or
	// above which a pixel is unusable.
	DefaultPixelCloudThreshold = 0.65

	// DefaultSceneCloudThreshold is the farm-level unusable-pixel fraction
	// above which a whole scene is rejected.
	DefaultSceneCloudThreshold = 0.30
)

// Config tunes the cloud filter.
type Config struct {
	PixelCloudThreshold float64
	SceneCloudThreshold float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		PixelCloudThreshold: DefaultPixelCloudThreshold,
		SceneCloudThreshold: DefaultSceneCloudThreshold,
	}
}

func (c Config) withDefaults() Config {
	if c.PixelCloudThreshold <= 0 {
		c.PixelCloudThreshold = DefaultPixelCloudThreshold
	}
	if c.SceneCloudThreshold <= 0 {
		c.SceneCloudThreshold = DefaultSceneCloudThreshold
	}
	return c
}

// Composite is the aggregated, cloud-filtered value set for one period.
// Bands holds the per-pixel median reduced to a scalar median per band; it is
// nil when the period had no usable scenes.
type Composite struct {
	Start        time.Time
	End          time.Time
	Bands        map[imagery.Band]float64
	TotalScenes  int
	UsableScenes int
	ClearPixels  int
}

// HasData reports whether the period produced a usable value set.
func (c Composite) HasData() bool {
	return c.UsableScenes > 0 && c.ClearPixels > 0
}

// RejectScene reports whether the scene's unusable-pixel fraction over the
// farm geometry exceeds the farm-level threshold. Rejected scenes contribute
// no data to any period.
func (c Config) RejectScene(s imagery.Scene) bool {
	cfg := c.withDefaults()
	return s.CloudFraction(cfg.PixelCloudThreshold) > cfg.SceneCloudThreshold
}

// Build groups scenes into the given windows and produces one composite per
// window. Windows with zero usable scenes yield a Composite with no band
// values; gaps are explicit, never interpolated.
func (c Config) Build(scenes []imagery.Scene, windows []Window) []Composite {
	cfg := c.withDefaults()

	composites := make([]Composite, len(windows))
	for i, w := range windows {
		var kept []imagery.Scene
		total := 0
		for _, s := range scenes {
			if !w.Contains(s.Date) {
				continue
			}
			total++
			if !cfg.RejectScene(s) {
				kept = append(kept, s)
			}
		}
		composites[i] = cfg.compose(w, total, kept)
	}
	return composites
}

// compose takes the per-pixel median of usable pixels across the kept
// scenes, then reduces each band to its scalar median over pixels.
func (c Config) compose(w Window, total int, kept []imagery.Scene) Composite {
	out := Composite{
		Start:        w.Start,
		End:          w.End,
		TotalScenes:  total,
		UsableScenes: len(kept),
	}
	if len(kept) == 0 {
		return out
	}

	pixels := 0
	for _, s := range kept {
		if s.PixelCount() > pixels {
			pixels = s.PixelCount()
		}
	}
	if pixels == 0 {
		out.UsableScenes = 0
		return out
	}

	bandSet := map[imagery.Band]bool{}
	for _, s := range kept {
		for band := range s.Bands {
			bandSet[band] = true
		}
	}

	pixelThreshold := c.withDefaults().PixelCloudThreshold
	usable := make([]bool, pixels)
	out.Bands = make(map[imagery.Band]float64, len(bandSet))

	for band := range bandSet {
		var pixelMedians []float64
		for i := 0; i < pixels; i++ {
			var samples []float64
			for _, s := range kept {
				values, ok := s.Bands[band]
				if !ok || i >= len(values) || i >= len(s.CloudProb) {
					continue
				}
				if s.CloudProb[i] >= pixelThreshold {
					continue
				}
				samples = append(samples, values[i])
			}
			if len(samples) == 0 {
				continue
			}
			usable[i] = true
			pixelMedians = append(pixelMedians, median(samples))
		}
		if len(pixelMedians) > 0 {
			out.Bands[band] = median(pixelMedians)
		}
	}

	for _, ok := range usable {
		if ok {
			out.ClearPixels++
		}
	}
	if out.ClearPixels == 0 {
		out.Bands = nil
	}

	return out
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
