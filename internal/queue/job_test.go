package queue

import (
	"testing"
	"time"

	"github.com/fieldlens/fieldlens/internal/geometry"
	"github.com/stretchr/testify/assert"
)

func testPolygon() geometry.Polygon {
	return geometry.Polygon{Exterior: []geometry.Coordinate{
		{Lon: 145.0, Lat: -37.0},
		{Lon: 145.1, Lat: -37.0},
		{Lon: 145.1, Lat: -37.1},
		{Lon: 145.0, Lat: -37.0},
	}}
}

func testPayload(farmID string, variables ...string) Payload {
	return Payload{
		FarmID:    farmID,
		Geometry:  testPolygon(),
		Variables: variables,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestPayload_IdempotencyKey(t *testing.T) {
	t.Run("variable order does not matter", func(t *testing.T) {
		a := testPayload("farm-1", "NDVI", "EVI", "SAVI")
		b := testPayload("farm-1", "SAVI", "NDVI", "EVI")

		assert.Equal(t, a.IdempotencyKey(), b.IdempotencyKey())
	})

	t.Run("different farm changes the key", func(t *testing.T) {
		a := testPayload("farm-1", "NDVI")
		b := testPayload("farm-2", "NDVI")

		assert.NotEqual(t, a.IdempotencyKey(), b.IdempotencyKey())
	})

	t.Run("different date range changes the key", func(t *testing.T) {
		a := testPayload("farm-1", "NDVI")
		b := testPayload("farm-1", "NDVI")
		b.EndDate = b.EndDate.AddDate(0, 1, 0)

		assert.NotEqual(t, a.IdempotencyKey(), b.IdempotencyKey())
	})

	t.Run("key is stable across calls", func(t *testing.T) {
		p := testPayload("farm-1", "NDVI", "EVI")

		assert.Equal(t, p.IdempotencyKey(), p.IdempotencyKey())
		assert.Len(t, p.IdempotencyKey(), 64)
	})
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailedTerminal.Terminal())
	assert.True(t, StateCanceled.Terminal())

	assert.False(t, StatePending.Terminal())
	assert.False(t, StateLeased.Terminal())
	assert.False(t, StateFailedRetryable.Terminal())
}

func TestState_InFlight(t *testing.T) {
	assert.True(t, StatePending.InFlight())
	assert.True(t, StateLeased.InFlight())
	assert.True(t, StateFailedRetryable.InFlight())

	assert.False(t, StateSucceeded.InFlight())
	assert.False(t, StateFailedTerminal.InFlight())
	assert.False(t, StateCanceled.InFlight())
}

func TestBackoffPolicy_Delay(t *testing.T) {
	policy := BackoffPolicy{
		Base:   30 * time.Second,
		Cap:    15 * time.Minute,
		Jitter: 0.2,
	}

	for attempt := 1; attempt <= 10; attempt++ {
		delay := policy.Delay(attempt)

		exact := 30 * time.Second * time.Duration(1<<attempt)
		low := time.Duration(float64(exact) * 0.8)
		if low > 15*time.Minute {
			low = 15 * time.Minute
		}

		assert.GreaterOrEqual(t, delay, low, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, 15*time.Minute, "attempt %d", attempt)
	}
}

func TestBackoffPolicy_DelayWithoutJitter(t *testing.T) {
	policy := BackoffPolicy{Base: time.Second, Cap: time.Hour}

	assert.Equal(t, 2*time.Second, policy.Delay(1))
	assert.Equal(t, 4*time.Second, policy.Delay(2))
	assert.Equal(t, 8*time.Second, policy.Delay(3))
}
