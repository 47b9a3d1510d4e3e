// Package index computes vegetation indices from composite band values.
// Indices are registered by name with their required bands, so new indices
// can be added without touching the processing engine.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fieldlens/fieldlens/internal/imagery"
)

var (
	// ErrUnknownIndex is returned when a requested variable has no
	// registered definition.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrZeroDenominator marks an index whose denominator evaluated to
	// zero for this composite. The period is reported as a data gap, not
	// a failure.
	ErrZeroDenominator = errors.New("index denominator is zero")

	// ErrMissingBand is returned when the composite lacks a band the
	// index requires.
	ErrMissingBand = errors.New("composite is missing a required band")
)

// Bands holds one scalar reflectance value per band, reduced from a
// composite's per-pixel median.
type Bands map[imagery.Band]float64

// ComputeFunc evaluates one index against composite band values.
type ComputeFunc func(b Bands) (float64, error)

// Definition describes a registered index.
type Definition struct {
	Name     string
	Requires []imagery.Band
	Compute  ComputeFunc
}

// Registry maps variable names to index definitions.
type Registry struct {
	mu      sync.RWMutex
	indices map[string]Definition
}

// Params tunes the configurable constants used by the default indices.
type Params struct {
	// SoilFactor is the SAVI soil-brightness constant L.
	SoilFactor float64
}

// DefaultSoilFactor is the SAVI L constant used when none is configured.
const DefaultSoilFactor = 0.5

// NewRegistry returns a registry preloaded with NDVI, EVI, SAVI and NDMI.
func NewRegistry(p Params) *Registry {
	l := p.SoilFactor
	if l == 0 {
		l = DefaultSoilFactor
	}

	r := &Registry{indices: make(map[string]Definition)}

	r.Register(Definition{
		Name:     "NDVI",
		Requires: []imagery.Band{imagery.BandNIR, imagery.BandRed},
		Compute: func(b Bands) (float64, error) {
			return ratio(b[imagery.BandNIR]-b[imagery.BandRed], b[imagery.BandNIR]+b[imagery.BandRed])
		},
	})

	r.Register(Definition{
		Name:     "EVI",
		Requires: []imagery.Band{imagery.BandNIR, imagery.BandRed, imagery.BandBlue},
		Compute: func(b Bands) (float64, error) {
			nir, red, blue := b[imagery.BandNIR], b[imagery.BandRed], b[imagery.BandBlue]
			v, err := ratio(nir-red, nir+6*red-7.5*blue+1)
			if err != nil {
				return 0, err
			}
			return 2.5 * v, nil
		},
	})

	r.Register(Definition{
		Name:     "SAVI",
		Requires: []imagery.Band{imagery.BandNIR, imagery.BandRed},
		Compute: func(b Bands) (float64, error) {
			nir, red := b[imagery.BandNIR], b[imagery.BandRed]
			v, err := ratio(nir-red, nir+red+l)
			if err != nil {
				return 0, err
			}
			return v * (1 + l), nil
		},
	})

	r.Register(Definition{
		Name:     "NDMI",
		Requires: []imagery.Band{imagery.BandNIR, imagery.BandSWIR1},
		Compute: func(b Bands) (float64, error) {
			return ratio(b[imagery.BandNIR]-b[imagery.BandSWIR1], b[imagery.BandNIR]+b[imagery.BandSWIR1])
		},
	})

	return r
}

// Register adds or replaces an index definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indices[def.Name] = def
}

// Get looks up an index by variable name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.indices[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownIndex, name)
	}
	return def, nil
}

// Names returns all registered variable names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.indices))
	for name := range r.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate checks required bands and computes the index value.
func (r *Registry) Evaluate(name string, b Bands) (float64, error) {
	def, err := r.Get(name)
	if err != nil {
		return 0, err
	}

	for _, band := range def.Requires {
		if _, ok := b[band]; !ok {
			return 0, fmt.Errorf("%w: %s needs %s", ErrMissingBand, name, band)
		}
	}

	return def.Compute(b)
}

func ratio(numerator, denominator float64) (float64, error) {
	if denominator == 0 {
		return 0, ErrZeroDenominator
	}
	return numerator / denominator, nil
}
