package geometry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const polygonKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>North paddock</name>
      <Polygon>
        <outerBoundaryIs>
          <LinearRing>
            <coordinates>
              145.0,-37.0,0 145.1,-37.0,0 145.1,-37.1,0 145.0,-37.0,0
            </coordinates>
          </LinearRing>
        </outerBoundaryIs>
      </Polygon>
    </Placemark>
  </Document>
</kml>`

func TestParseKML_Polygon(t *testing.T) {
	p, err := ParseKML(strings.NewReader(polygonKML))
	require.NoError(t, err)

	require.Len(t, p.Exterior, 4)
	assert.Equal(t, Coordinate{Lon: 145.0, Lat: -37.0}, p.Exterior[0])
	assert.Equal(t, p.Exterior[0], p.Exterior[len(p.Exterior)-1])
}

func TestParseKML_LargestPolygonWins(t *testing.T) {
	kml := `<kml>
  <Document>
    <Placemark>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>
        10.0,10.0 10.1,10.0 10.1,10.1 10.0,10.0
      </coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark>
    <Placemark>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>
        20.0,20.0 20.1,20.0 20.1,20.1 20.0,20.1 20.0,20.05 20.0,20.0
      </coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark>
  </Document>
</kml>`

	p, err := ParseKML(strings.NewReader(kml))
	require.NoError(t, err)

	// The ring with more boundary points is taken as the farm boundary.
	assert.Equal(t, Coordinate{Lon: 20.0, Lat: 20.0}, p.Exterior[0])
	assert.Len(t, p.Exterior, 6)
}

func TestParseKML_ClosesOpenRing(t *testing.T) {
	kml := `<kml><Document><Placemark>
    <Polygon><outerBoundaryIs><LinearRing><coordinates>
      145.0,-37.0 145.1,-37.0 145.1,-37.1
    </coordinates></LinearRing></outerBoundaryIs></Polygon>
  </Placemark></Document></kml>`

	p, err := ParseKML(strings.NewReader(kml))
	require.NoError(t, err)

	require.Len(t, p.Exterior, 4)
	assert.Equal(t, p.Exterior[0], p.Exterior[3])
}

func TestParseKML_PointFallback(t *testing.T) {
	kml := `<kml><Document>
    <Placemark><Point><coordinates>145.05,-37.05,0</coordinates></Point></Placemark>
    <Placemark><Point><coordinates>145.07,-37.03,0</coordinates></Point></Placemark>
  </Document></kml>`

	p, err := ParseKML(strings.NewReader(kml))
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	// Padded bounding box around the markers.
	min, max := p.BoundingBox()
	assert.InDelta(t, 145.049, min.Lon, 1e-9)
	assert.InDelta(t, -37.051, min.Lat, 1e-9)
	assert.InDelta(t, 145.071, max.Lon, 1e-9)
	assert.InDelta(t, -37.029, max.Lat, 1e-9)
}

func TestParseKML_BarePlacemark(t *testing.T) {
	kml := `<kml><Placemark>
    <Polygon><outerBoundaryIs><LinearRing><coordinates>
      145.0,-37.0 145.1,-37.0 145.1,-37.1 145.0,-37.0
    </coordinates></LinearRing></outerBoundaryIs></Polygon>
  </Placemark></kml>`

	p, err := ParseKML(strings.NewReader(kml))
	require.NoError(t, err)
	assert.Len(t, p.Exterior, 4)
}

func TestParseKML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		kml  string
	}{
		{name: "malformed xml", kml: `<kml><Document>`},
		{name: "no placemarks", kml: `<kml><Document></Document></kml>`},
		{name: "no usable geometry", kml: `<kml><Document><Placemark><name>x</name></Placemark></Document></kml>`},
		{name: "garbage coordinates", kml: `<kml><Document><Placemark>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>a,b c,d</coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark></Document></kml>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKML(strings.NewReader(tt.kml))
			assert.ErrorIs(t, err, ErrInvalidGeometry)
		})
	}
}
