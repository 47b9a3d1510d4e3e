package geometry

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// boundingPadding widens a point-derived boundary slightly so that single
// GPS markers still cover a usable raster footprint.
const boundingPadding = 0.001

type kmlDocument struct {
	XMLName    xml.Name       `xml:"kml"`
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`
	// Some exports skip the Document wrapper.
	BarePlacemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name    string      `xml:"name"`
	Polygon *kmlPolygon `xml:"Polygon"`
	Point   *kmlPoint   `xml:"Point"`
}

type kmlPolygon struct {
	Coordinates string `xml:"outerBoundaryIs>LinearRing>coordinates"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

// ParseKML extracts a farm boundary from a KML export. When the file holds
// several polygons the one with the most boundary points wins; when it holds
// only point placemarks a padded bounding box around them is used instead.
func ParseKML(r io.Reader) (Polygon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Polygon{}, fmt.Errorf("failed to read KML: %w", err)
	}

	var doc kmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Polygon{}, fmt.Errorf("%w: malformed KML: %v", ErrInvalidGeometry, err)
	}

	placemarks := doc.Placemarks
	if len(placemarks) == 0 {
		placemarks = doc.BarePlacemarks
	}
	if len(placemarks) == 0 {
		return Polygon{}, fmt.Errorf("%w: KML contains no placemarks", ErrInvalidGeometry)
	}

	var best []Coordinate
	var points []Coordinate

	for _, pm := range placemarks {
		if pm.Polygon != nil {
			ring := parseCoordinateList(pm.Polygon.Coordinates)
			if len(ring) >= 3 && len(ring) > len(best) {
				best = ring
			}
		}
		if pm.Point != nil {
			if pts := parseCoordinateList(pm.Point.Coordinates); len(pts) > 0 {
				points = append(points, pts[0])
			}
		}
	}

	if len(best) >= 3 {
		if best[0] != best[len(best)-1] {
			best = append(best, best[0])
		}
		p := Polygon{Exterior: best}
		if err := p.Validate(); err != nil {
			return Polygon{}, err
		}
		return p, nil
	}

	if len(points) > 0 {
		return boundingPolygon(points), nil
	}

	return Polygon{}, fmt.Errorf("%w: KML contains no usable geometry", ErrInvalidGeometry)
}

// parseCoordinateList parses the KML "lon,lat[,alt]" whitespace-separated
// coordinate syntax, skipping entries that do not parse.
func parseCoordinateList(raw string) []Coordinate {
	var coords []Coordinate
	for _, token := range strings.Fields(raw) {
		parts := strings.Split(token, ",")
		if len(parts) < 2 {
			continue
		}
		lon, errLon := strconv.ParseFloat(parts[0], 64)
		lat, errLat := strconv.ParseFloat(parts[1], 64)
		if errLon != nil || errLat != nil {
			continue
		}
		coords = append(coords, Coordinate{Lon: lon, Lat: lat})
	}
	return coords
}

func boundingPolygon(points []Coordinate) Polygon {
	min, max := Polygon{Exterior: points}.BoundingBox()
	min.Lon -= boundingPadding
	min.Lat -= boundingPadding
	max.Lon += boundingPadding
	max.Lat += boundingPadding

	return Polygon{Exterior: []Coordinate{
		{Lon: min.Lon, Lat: min.Lat},
		{Lon: max.Lon, Lat: min.Lat},
		{Lon: max.Lon, Lat: max.Lat},
		{Lon: min.Lon, Lat: max.Lat},
		{Lon: min.Lon, Lat: min.Lat},
	}}
}
