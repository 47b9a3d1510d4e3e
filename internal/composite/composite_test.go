package composite

import (
	"testing"
	"time"

	"github.com/fieldlens/fieldlens/internal/imagery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// scene builds a 4-pixel scene with a uniform NIR/RED value and the given
// per-pixel cloud probabilities.
func scene(day time.Time, nir, red float64, cloud []float64) imagery.Scene {
	n := len(cloud)
	nirVals := make([]float64, n)
	redVals := make([]float64, n)
	for i := range cloud {
		nirVals[i] = nir
		redVals[i] = red
	}
	return imagery.Scene{
		Date: day,
		Bands: map[imagery.Band][]float64{
			imagery.BandNIR: nirVals,
			imagery.BandRed: redVals,
		},
		CloudProb: cloud,
	}
}

func TestConfig_RejectScene(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name   string
		cloud  []float64
		reject bool
	}{
		{
			name:   "clear scene is kept",
			cloud:  []float64{0.0, 0.1, 0.2, 0.0},
			reject: false,
		},
		{
			name:   "exactly at scene threshold is kept",
			cloud:  []float64{0.9, 0.9, 0.9, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0},
			reject: false,
		},
		{
			name:   "mostly cloudy scene is rejected",
			cloud:  []float64{0.9, 0.9, 0.7, 0.0},
			reject: true,
		},
		{
			name:   "pixel below threshold does not count as cloudy",
			cloud:  []float64{0.64, 0.64, 0.64, 0.64},
			reject: false,
		},
		{
			name:   "pixel at threshold counts as cloudy",
			cloud:  []float64{0.65, 0.65, 0.65, 0.0},
			reject: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scene(date(2024, 1, 10), 0.5, 0.2, tt.cloud)
			assert.Equal(t, tt.reject, cfg.RejectScene(s))
		})
	}
}

func TestConfig_BuildMediansPerPixel(t *testing.T) {
	cfg := DefaultConfig()
	windows := Windows(PeriodMonthly, date(2024, 1, 1), date(2024, 1, 31))
	require.Len(t, windows, 1)

	scenes := []imagery.Scene{
		scene(date(2024, 1, 5), 0.3, 0.1, []float64{0, 0, 0, 0}),
		scene(date(2024, 1, 15), 0.5, 0.2, []float64{0, 0, 0, 0}),
		scene(date(2024, 1, 25), 0.7, 0.3, []float64{0, 0, 0, 0}),
	}

	composites := cfg.Build(scenes, windows)
	require.Len(t, composites, 1)

	comp := composites[0]
	assert.Equal(t, 3, comp.TotalScenes)
	assert.Equal(t, 3, comp.UsableScenes)
	assert.Equal(t, 4, comp.ClearPixels)
	assert.True(t, comp.HasData())
	assert.InDelta(t, 0.5, comp.Bands[imagery.BandNIR], 1e-9)
	assert.InDelta(t, 0.2, comp.Bands[imagery.BandRed], 1e-9)
}

func TestConfig_BuildSkipsCloudyPixels(t *testing.T) {
	cfg := DefaultConfig()
	windows := Windows(PeriodMonthly, date(2024, 1, 1), date(2024, 1, 31))

	// Pixel 0 is cloudy in one scene; its median comes from the others.
	scenes := []imagery.Scene{
		scene(date(2024, 1, 5), 0.2, 0.1, []float64{0.9, 0, 0, 0}),
		scene(date(2024, 1, 15), 0.4, 0.1, []float64{0, 0, 0, 0}),
		scene(date(2024, 1, 25), 0.6, 0.1, []float64{0, 0, 0, 0}),
	}

	composites := cfg.Build(scenes, windows)
	require.Len(t, composites, 1)

	comp := composites[0]
	assert.Equal(t, 3, comp.UsableScenes)
	assert.Equal(t, 4, comp.ClearPixels)
	// Pixels 1-3 see {0.2, 0.4, 0.6}; pixel 0 sees {0.4, 0.6}.
	// Scalar = median(0.5, 0.4, 0.4, 0.4) = 0.4.
	assert.InDelta(t, 0.4, comp.Bands[imagery.BandNIR], 1e-9)
}

func TestConfig_BuildRejectedScenesContributeNothing(t *testing.T) {
	cfg := DefaultConfig()
	windows := Windows(PeriodMonthly, date(2024, 1, 1), date(2024, 1, 31))

	scenes := []imagery.Scene{
		scene(date(2024, 1, 5), 0.3, 0.1, []float64{0, 0, 0, 0}),
		scene(date(2024, 1, 15), 0.9, 0.9, []float64{0.9, 0.9, 0.9, 0}),
	}

	composites := cfg.Build(scenes, windows)
	require.Len(t, composites, 1)

	comp := composites[0]
	assert.Equal(t, 2, comp.TotalScenes)
	assert.Equal(t, 1, comp.UsableScenes)
	assert.InDelta(t, 0.3, comp.Bands[imagery.BandNIR], 1e-9)
}

func TestConfig_BuildMonthWithPartialCloudCover(t *testing.T) {
	cfg := DefaultConfig()
	windows := Windows(PeriodMonthly, date(2024, 1, 1), date(2024, 1, 31))
	require.Len(t, windows, 1)

	// Ten acquisitions in one month: four fully cloudy, six clear with
	// distinct reflectances.
	cloudy := []float64{0.9, 0.9, 0.9, 0.9}
	clear := []float64{0, 0, 0, 0}
	scenes := []imagery.Scene{
		scene(date(2024, 1, 2), 0.1, 0.05, clear),
		scene(date(2024, 1, 5), 0.0, 0.0, cloudy),
		scene(date(2024, 1, 8), 0.2, 0.10, clear),
		scene(date(2024, 1, 11), 0.3, 0.15, clear),
		scene(date(2024, 1, 14), 0.0, 0.0, cloudy),
		scene(date(2024, 1, 17), 0.4, 0.20, clear),
		scene(date(2024, 1, 20), 0.0, 0.0, cloudy),
		scene(date(2024, 1, 23), 0.5, 0.25, clear),
		scene(date(2024, 1, 26), 0.0, 0.0, cloudy),
		scene(date(2024, 1, 29), 0.6, 0.30, clear),
	}

	composites := cfg.Build(scenes, windows)
	require.Len(t, composites, 1)

	comp := composites[0]
	assert.Equal(t, 10, comp.TotalScenes)
	assert.Equal(t, 6, comp.UsableScenes)
	assert.Equal(t, 4, comp.ClearPixels)
	assert.True(t, comp.HasData())

	// Each pixel sees NIR {0.1..0.6}: median 0.35, and 0.175 for RED.
	assert.InDelta(t, 0.35, comp.Bands[imagery.BandNIR], 1e-9)
	assert.InDelta(t, 0.175, comp.Bands[imagery.BandRed], 1e-9)
}

func TestConfig_BuildAllScenesRejected(t *testing.T) {
	cfg := DefaultConfig()
	windows := Windows(PeriodMonthly, date(2024, 1, 1), date(2024, 1, 31))

	cloudy := []float64{0.9, 0.9, 0.9, 0.9}
	scenes := []imagery.Scene{
		scene(date(2024, 1, 5), 0.3, 0.1, cloudy),
		scene(date(2024, 1, 15), 0.4, 0.2, cloudy),
	}

	composites := cfg.Build(scenes, windows)
	require.Len(t, composites, 1)

	comp := composites[0]
	assert.Equal(t, 2, comp.TotalScenes)
	assert.Equal(t, 0, comp.UsableScenes)
	assert.False(t, comp.HasData())
	assert.Nil(t, comp.Bands)
}

func TestConfig_BuildEmptyWindow(t *testing.T) {
	cfg := DefaultConfig()
	windows := Windows(PeriodMonthly, date(2024, 1, 1), date(2024, 2, 29))
	require.Len(t, windows, 2)

	scenes := []imagery.Scene{
		scene(date(2024, 1, 5), 0.3, 0.1, []float64{0, 0, 0, 0}),
	}

	composites := cfg.Build(scenes, windows)
	require.Len(t, composites, 2)

	// February saw no scenes at all: an explicit gap.
	feb := composites[1]
	assert.Equal(t, 0, feb.TotalScenes)
	assert.False(t, feb.HasData())
	assert.Nil(t, feb.Bands)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 2, 3}))
	assert.Equal(t, 7.0, median([]float64{7}))
}
