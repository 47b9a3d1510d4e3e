package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPairs(t *testing.T) {
	t.Run("closes an open ring", func(t *testing.T) {
		p, err := FromPairs([][]float64{
			{145.0, -37.0},
			{145.1, -37.0},
			{145.1, -37.1},
		})
		require.NoError(t, err)
		require.Len(t, p.Exterior, 4)
		assert.Equal(t, p.Exterior[0], p.Exterior[3])
	})

	t.Run("keeps an already closed ring", func(t *testing.T) {
		p, err := FromPairs([][]float64{
			{145.0, -37.0},
			{145.1, -37.0},
			{145.1, -37.1},
			{145.0, -37.0},
		})
		require.NoError(t, err)
		assert.Len(t, p.Exterior, 4)
	})

	t.Run("too few points", func(t *testing.T) {
		_, err := FromPairs([][]float64{{145.0, -37.0}, {145.1, -37.0}})
		assert.ErrorIs(t, err, ErrInvalidGeometry)
	})

	t.Run("short pair", func(t *testing.T) {
		_, err := FromPairs([][]float64{{145.0, -37.0}, {145.1}, {145.1, -37.1}})
		assert.ErrorIs(t, err, ErrInvalidGeometry)
	})

	t.Run("coordinates out of range", func(t *testing.T) {
		_, err := FromPairs([][]float64{
			{245.0, -37.0},
			{145.1, -37.0},
			{145.1, -37.1},
		})
		assert.ErrorIs(t, err, ErrInvalidGeometry)
	})
}

func TestPolygon_Validate(t *testing.T) {
	t.Run("open ring", func(t *testing.T) {
		p := Polygon{Exterior: []Coordinate{
			{Lon: 145.0, Lat: -37.0},
			{Lon: 145.1, Lat: -37.0},
			{Lon: 145.1, Lat: -37.1},
			{Lon: 145.0, Lat: -37.1},
		}}
		assert.ErrorIs(t, p.Validate(), ErrInvalidGeometry)
	})

	t.Run("latitude out of range", func(t *testing.T) {
		p := Polygon{Exterior: []Coordinate{
			{Lon: 145.0, Lat: -97.0},
			{Lon: 145.1, Lat: -37.0},
			{Lon: 145.1, Lat: -37.1},
			{Lon: 145.0, Lat: -97.0},
		}}
		assert.ErrorIs(t, p.Validate(), ErrInvalidGeometry)
	})
}

func TestPolygon_BoundingBox(t *testing.T) {
	p := Polygon{Exterior: []Coordinate{
		{Lon: 145.0, Lat: -37.0},
		{Lon: 145.2, Lat: -37.0},
		{Lon: 145.1, Lat: -37.3},
		{Lon: 145.0, Lat: -37.0},
	}}

	min, max := p.BoundingBox()
	assert.Equal(t, Coordinate{Lon: 145.0, Lat: -37.3}, min)
	assert.Equal(t, Coordinate{Lon: 145.2, Lat: -37.0}, max)
}

func TestPolygon_AreaHectares(t *testing.T) {
	// 0.01 x 0.01 degrees is roughly 1.11km x 1.11km.
	p := Polygon{Exterior: []Coordinate{
		{Lon: 145.00, Lat: -37.00},
		{Lon: 145.01, Lat: -37.00},
		{Lon: 145.01, Lat: -37.01},
		{Lon: 145.00, Lat: -37.00},
	}}

	assert.InDelta(t, 123.21, p.AreaHectares(), 0.01)
	assert.Zero(t, Polygon{}.AreaHectares())
}
