package kml

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// placemarkGeometry resolves the geometry for one placemark. MultiGeometry
// wins over a direct Polygon; a placemark with neither, or whose geometry
// fails to parse, yields nil.
func placemarkGeometry(pm *etree.Element) geom.T {
	if mg := findFirst(pm, "MultiGeometry"); mg != nil {
		return multiPolygon(mg)
	}

	poly := findFirst(pm, "Polygon")
	if poly == nil {
		return nil
	}
	ring, err := outerRing(poly)
	if err != nil {
		zap.L().Warn("kml: invalid polygon coordinates", zap.Error(err))
		return nil
	}
	return polygonFromRing(ring)
}

// multiPolygon builds a MultiPolygon from every Polygon under mg. Polygons
// that fail to parse are skipped; if none survive, there is no geometry.
func multiPolygon(mg *etree.Element) geom.T {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, poly := range findAll(mg, "Polygon") {
		ring, err := outerRing(poly)
		if err != nil {
			zap.L().Warn("kml: skipping invalid polygon in MultiGeometry", zap.Error(err))
			continue
		}
		if err := mp.Push(polygonFromRing(ring)); err != nil {
			zap.L().Warn("kml: skipping malformed polygon", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// outerRing extracts and parses the outer boundary coordinates of a
// Polygon element. Inner (hole) rings are ignored.
func outerRing(poly *etree.Element) ([]geom.Coord, error) {
	ob := findFirst(poly, "outerBoundaryIs")
	if ob == nil {
		return nil, eris.New("kml: polygon has no outer boundary")
	}
	coordEl := findFirst(ob, "coordinates")
	if coordEl == nil || strings.TrimSpace(coordEl.Text()) == "" {
		return nil, eris.New("kml: outer boundary has no coordinates")
	}
	return parseCoordinates(coordEl.Text())
}

// parseCoordinates converts KML coordinate text into lng/lat pairs.
//
// KML format: "lng,lat,alt lng,lat,alt ..." with tuples separated by
// whitespace. The altitude component is dropped. Tuples with fewer than
// two components are skipped with a warning; an unparseable number or a
// ring with zero valid tuples fails the whole ring.
func parseCoordinates(text string) ([]geom.Coord, error) {
	var coords []geom.Coord
	for _, tuple := range strings.Fields(text) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			zap.L().Warn("kml: invalid coordinate tuple", zap.String("tuple", tuple))
			continue
		}
		lng, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "kml: invalid longitude %q", parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "kml: invalid latitude %q", parts[1])
		}
		coords = append(coords, geom.Coord{lng, lat})
	}
	if len(coords) == 0 {
		return nil, eris.New("kml: no valid coordinates found")
	}
	return coords, nil
}

// polygonFromRing wraps a single outer ring as a GeoJSON-shaped Polygon.
func polygonFromRing(ring []geom.Coord) *geom.Polygon {
	p := geom.NewPolygon(geom.XY)
	if err := p.Push(geom.NewLinearRingFlat(geom.XY, flatCoords(ring))); err != nil {
		// Layout is fixed to XY on both sides, so this cannot happen.
		zap.L().Error("kml: push ring", zap.Error(err))
	}
	return p
}

func flatCoords(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}
