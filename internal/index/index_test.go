package index

import (
	"testing"

	"github.com/fieldlens/fieldlens/internal/imagery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_EvaluateNDVI(t *testing.T) {
	r := NewRegistry(Params{})

	got, err := r.Evaluate("NDVI", Bands{
		imagery.BandNIR: 0.5,
		imagery.BandRed: 0.2,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.4286, got, 1e-4)
}

func TestRegistry_EvaluateSAVI(t *testing.T) {
	t.Run("default soil factor", func(t *testing.T) {
		r := NewRegistry(Params{})

		got, err := r.Evaluate("SAVI", Bands{
			imagery.BandNIR: 0.5,
			imagery.BandRed: 0.2,
		})
		require.NoError(t, err)
		// (0.5-0.2)/(0.5+0.2+0.5) * 1.5
		assert.InDelta(t, 0.375, got, 1e-9)
	})

	t.Run("configured soil factor", func(t *testing.T) {
		r := NewRegistry(Params{SoilFactor: 1.0})

		got, err := r.Evaluate("SAVI", Bands{
			imagery.BandNIR: 0.5,
			imagery.BandRed: 0.2,
		})
		require.NoError(t, err)
		// (0.5-0.2)/(0.5+0.2+1.0) * 2.0
		assert.InDelta(t, 0.3529, got, 1e-4)
	})
}

func TestRegistry_EvaluateEVI(t *testing.T) {
	r := NewRegistry(Params{})

	got, err := r.Evaluate("EVI", Bands{
		imagery.BandNIR:  0.5,
		imagery.BandRed:  0.2,
		imagery.BandBlue: 0.1,
	})
	require.NoError(t, err)
	// 2.5 * (0.5-0.2) / (0.5 + 6*0.2 - 7.5*0.1 + 1)
	assert.InDelta(t, 0.3846, got, 1e-4)
}

func TestRegistry_EvaluateNDMI(t *testing.T) {
	r := NewRegistry(Params{})

	got, err := r.Evaluate("NDMI", Bands{
		imagery.BandNIR:   0.4,
		imagery.BandSWIR1: 0.1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got, 1e-9)
}

func TestRegistry_EvaluateZeroDenominator(t *testing.T) {
	r := NewRegistry(Params{})

	_, err := r.Evaluate("NDVI", Bands{
		imagery.BandNIR: 0.0,
		imagery.BandRed: 0.0,
	})
	assert.ErrorIs(t, err, ErrZeroDenominator)
}

func TestRegistry_EvaluateUnknownIndex(t *testing.T) {
	r := NewRegistry(Params{})

	_, err := r.Evaluate("NDWI", Bands{})
	assert.ErrorIs(t, err, ErrUnknownIndex)
}

func TestRegistry_EvaluateMissingBand(t *testing.T) {
	r := NewRegistry(Params{})

	_, err := r.Evaluate("NDVI", Bands{
		imagery.BandNIR: 0.5,
	})
	assert.ErrorIs(t, err, ErrMissingBand)
}

func TestRegistry_RegisterCustomIndex(t *testing.T) {
	r := NewRegistry(Params{})

	r.Register(Definition{
		Name:     "GRVI",
		Requires: []imagery.Band{imagery.BandNIR, imagery.BandRed},
		Compute: func(b Bands) (float64, error) {
			return ratio(b[imagery.BandNIR], b[imagery.BandRed])
		},
	})

	got, err := r.Evaluate("GRVI", Bands{
		imagery.BandNIR: 0.6,
		imagery.BandRed: 0.2,
	})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got, 1e-9)
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry(Params{})

	assert.Equal(t, []string{"EVI", "NDMI", "NDVI", "SAVI"}, r.Names())
}
