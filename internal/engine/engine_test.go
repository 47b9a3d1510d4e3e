package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fieldlens/fieldlens/internal/composite"
	"github.com/fieldlens/fieldlens/internal/geometry"
	"github.com/fieldlens/fieldlens/internal/imagery"
	"github.com/fieldlens/fieldlens/internal/index"
	"github.com/fieldlens/fieldlens/internal/queue"
	"github.com/fieldlens/fieldlens/internal/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves a fixed scene list (or a fixed error).
type stubFetcher struct {
	scenes []imagery.Scene
	err    error
}

func (f *stubFetcher) FetchScenes(ctx context.Context, farm geometry.Polygon, start, end time.Time) ([]imagery.Scene, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scenes, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(fetcher imagery.SceneFetcher) *Engine {
	return New(Config{
		Fetcher:  fetcher,
		Registry: index.NewRegistry(index.Params{}),
		Filter:   composite.DefaultConfig(),
		Period:   composite.PeriodMonthly,
		Logger:   discardLogger(),
	})
}

func testFarm() geometry.Polygon {
	return geometry.Polygon{Exterior: []geometry.Coordinate{
		{Lon: 145.0, Lat: -37.0},
		{Lon: 145.1, Lat: -37.0},
		{Lon: 145.1, Lat: -37.1},
		{Lon: 145.0, Lat: -37.0},
	}}
}

func testPayload(variables ...string) queue.Payload {
	return queue.Payload{
		FarmID:    "farm-1",
		Geometry:  testFarm(),
		Variables: variables,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	}
}

// uniformScene covers every pixel with the same reflectances.
func uniformScene(day time.Time, nir, red float64, cloudProb float64) imagery.Scene {
	const pixels = 4
	cloud := make([]float64, pixels)
	nirVals := make([]float64, pixels)
	redVals := make([]float64, pixels)
	for i := 0; i < pixels; i++ {
		cloud[i] = cloudProb
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

func TestEngine_ProcessComputesSeries(t *testing.T) {
	fetcher := &stubFetcher{scenes: []imagery.Scene{
		uniformScene(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 0.5, 0.2, 0.0),
		uniformScene(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), 0.5, 0.2, 0.0),
		uniformScene(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 0.6, 0.2, 0.0),
	}}
	e := testEngine(fetcher)

	points, err := e.Process(context.Background(), testPayload("NDVI"))
	require.NoError(t, err)

	// One point per (variable, period): 2 months x 1 variable.
	require.Len(t, points, 2)

	jan := points[0]
	assert.Equal(t, "farm-1", jan.FarmID)
	assert.Equal(t, "NDVI", jan.Variable)
	assert.Equal(t, results.FlagOK, jan.Flag)
	require.NotNil(t, jan.Value)
	assert.InDelta(t, 0.4286, *jan.Value, 1e-4)

	feb := points[1]
	assert.Equal(t, results.FlagOK, feb.Flag)
	require.NotNil(t, feb.Value)
	assert.InDelta(t, 0.5, *feb.Value, 1e-4)
}

func TestEngine_ProcessMultipleVariables(t *testing.T) {
	fetcher := &stubFetcher{scenes: []imagery.Scene{
		uniformScene(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 0.5, 0.2, 0.0),
	}}
	e := testEngine(fetcher)

	payload := testPayload("NDVI", "SAVI")
	payload.EndDate = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	points, err := e.Process(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "NDVI", points[0].Variable)
	assert.Equal(t, "SAVI", points[1].Variable)
	for _, p := range points {
		assert.Equal(t, results.FlagOK, p.Flag)
		assert.NotNil(t, p.Value)
	}
}

func TestEngine_ProcessEmptyPeriodIsGap(t *testing.T) {
	// Scenes only in January; February is a gap, never interpolated.
	fetcher := &stubFetcher{scenes: []imagery.Scene{
		uniformScene(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 0.5, 0.2, 0.0),
	}}
	e := testEngine(fetcher)

	points, err := e.Process(context.Background(), testPayload("NDVI"))
	require.NoError(t, err)
	require.Len(t, points, 2)

	feb := points[1]
	assert.Equal(t, results.FlagNoDataGap, feb.Flag)
	assert.Nil(t, feb.Value)
}

func TestEngine_ProcessAllCloudyPeriod(t *testing.T) {
	// February has acquisitions, but every scene is rejected as cloudy.
	fetcher := &stubFetcher{scenes: []imagery.Scene{
		uniformScene(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 0.5, 0.2, 0.0),
		uniformScene(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 0.5, 0.2, 0.95),
		uniformScene(time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), 0.5, 0.2, 0.95),
	}}
	e := testEngine(fetcher)

	points, err := e.Process(context.Background(), testPayload("NDVI"))
	require.NoError(t, err)
	require.Len(t, points, 2)

	feb := points[1]
	assert.Equal(t, results.FlagNoDataCloud, feb.Flag)
	assert.Nil(t, feb.Value)
}

func TestEngine_ProcessZeroDenominatorIsGap(t *testing.T) {
	// NIR and RED both zero: NDVI has no defined value for the period.
	fetcher := &stubFetcher{scenes: []imagery.Scene{
		uniformScene(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 0.0, 0.0, 0.0),
	}}
	e := testEngine(fetcher)

	payload := testPayload("NDVI")
	payload.EndDate = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	points, err := e.Process(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, points, 1)

	assert.Equal(t, results.FlagNoDataGap, points[0].Flag)
	assert.Nil(t, points[0].Value)
}

func TestEngine_ProcessFetcherErrorSurfaces(t *testing.T) {
	fetcher := &stubFetcher{err: imagery.ErrProviderUnavailable}
	e := testEngine(fetcher)

	_, err := e.Process(context.Background(), testPayload("NDVI"))
	assert.ErrorIs(t, err, imagery.ErrProviderUnavailable)
}

func TestEngine_ProcessValidation(t *testing.T) {
	e := testEngine(&stubFetcher{})

	t.Run("no variables", func(t *testing.T) {
		_, err := e.Process(context.Background(), testPayload())
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unknown variable", func(t *testing.T) {
		_, err := e.Process(context.Background(), testPayload("NOPE"))
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("inverted date range", func(t *testing.T) {
		payload := testPayload("NDVI")
		payload.StartDate, payload.EndDate = payload.EndDate, payload.StartDate
		_, err := e.Process(context.Background(), payload)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("invalid geometry", func(t *testing.T) {
		payload := testPayload("NDVI")
		payload.Geometry = geometry.Polygon{}
		_, err := e.Process(context.Background(), payload)
		assert.ErrorIs(t, err, geometry.ErrInvalidGeometry)
	})
}

func TestEngine_ProcessWithSyntheticFetcher(t *testing.T) {
	e := testEngine(&imagery.SyntheticFetcher{Pixels: 8})

	points, err := e.Process(context.Background(), testPayload("NDVI", "EVI", "SAVI", "NDMI"))
	require.NoError(t, err)

	// 2 months x 4 variables.
	require.Len(t, points, 8)
	for _, p := range points {
		if p.Flag == results.FlagOK {
			require.NotNil(t, p.Value)
		} else {
			assert.Nil(t, p.Value)
		}
	}
}

func TestEngine_ProcessErrorsAreNotRetryableClassification(t *testing.T) {
	e := testEngine(&stubFetcher{err: errors.New("transient upstream blip")})

	_, err := e.Process(context.Background(), testPayload("NDVI"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidRequest))
}
