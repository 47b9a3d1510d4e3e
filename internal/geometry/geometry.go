package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry is returned when a farm boundary cannot be used for
	// processing. Jobs failing with this error are never retried.
	ErrInvalidGeometry = errors.New("invalid farm geometry")
)

// Coordinate is a lon/lat pair in WGS84 degrees.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Polygon is a farm boundary as a single closed exterior ring.
type Polygon struct {
	Exterior []Coordinate `json:"exterior"`
}

// FromPairs builds a polygon from [lon, lat] pairs, closing the ring if the
// input leaves it open.
func FromPairs(pairs [][]float64) (Polygon, error) {
	if len(pairs) < 3 {
		return Polygon{}, fmt.Errorf("%w: need at least 3 boundary points, got %d", ErrInvalidGeometry, len(pairs))
	}

	ring := make([]Coordinate, 0, len(pairs)+1)
	for i, pair := range pairs {
		if len(pair) < 2 {
			return Polygon{}, fmt.Errorf("%w: point %d has %d components", ErrInvalidGeometry, i, len(pair))
		}
		ring = append(ring, Coordinate{Lon: pair[0], Lat: pair[1]})
	}

	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}

	p := Polygon{Exterior: ring}
	if err := p.Validate(); err != nil {
		return Polygon{}, err
	}
	return p, nil
}

// Validate checks that the polygon is a closed ring with plausible
// coordinates.
func (p Polygon) Validate() error {
	if len(p.Exterior) < 4 {
		return fmt.Errorf("%w: ring has %d points, need at least 4", ErrInvalidGeometry, len(p.Exterior))
	}

	if p.Exterior[0] != p.Exterior[len(p.Exterior)-1] {
		return fmt.Errorf("%w: ring is not closed", ErrInvalidGeometry)
	}

	for i, c := range p.Exterior {
		if c.Lon < -180 || c.Lon > 180 {
			return fmt.Errorf("%w: point %d longitude %f out of range", ErrInvalidGeometry, i, c.Lon)
		}
		if c.Lat < -90 || c.Lat > 90 {
			return fmt.Errorf("%w: point %d latitude %f out of range", ErrInvalidGeometry, i, c.Lat)
		}
	}

	return nil
}

// BoundingBox returns the min/max corners of the polygon.
func (p Polygon) BoundingBox() (min, max Coordinate) {
	min = p.Exterior[0]
	max = p.Exterior[0]
	for _, c := range p.Exterior[1:] {
		if c.Lon < min.Lon {
			min.Lon = c.Lon
		}
		if c.Lon > max.Lon {
			max.Lon = c.Lon
		}
		if c.Lat < min.Lat {
			min.Lat = c.Lat
		}
		if c.Lat > max.Lat {
			max.Lat = c.Lat
		}
	}
	return min, max
}

// AreaHectares is a rough equirectangular estimate of the bounding-box area,
// used only for logging and status endpoints.
func (p Polygon) AreaHectares() float64 {
	if len(p.Exterior) < 4 {
		return 0
	}
	min, max := p.BoundingBox()
	const metersPerDegree = 111000.0
	areaM2 := (max.Lon - min.Lon) * metersPerDegree * (max.Lat - min.Lat) * metersPerDegree
	return areaM2 / 10000
}
