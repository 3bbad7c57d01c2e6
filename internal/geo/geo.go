// Package geo provides the small set of geographic primitives used by the
// track engine: great-circle distance between coordinates and point-in-bounds
// containment tests.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Coord is a WGS84 latitude/longitude pair in decimal degrees.
type Coord struct {
	Lat float64
	Lon float64
}

// Bounds is an axis-aligned geographic bounding box.
// Min holds the south-west corner, Max the north-east corner.
type Bounds struct {
	Min Coord
	Max Coord
}

// EmptyBounds returns a Bounds that contains nothing and acts as the
// identity for Extend and Union.
func EmptyBounds() Bounds {
	return Bounds{
		Min: Coord{Lat: math.Inf(1), Lon: math.Inf(1)},
		Max: Coord{Lat: math.Inf(-1), Lon: math.Inf(-1)},
	}
}

// IsEmpty reports whether the bounds contain no coordinates.
func (b Bounds) IsEmpty() bool {
	return b.Min.Lat > b.Max.Lat || b.Min.Lon > b.Max.Lon
}

// Contains reports whether c lies inside the bounds (edges inclusive).
func (b Bounds) Contains(c Coord) bool {
	return c.Lat >= b.Min.Lat && c.Lat <= b.Max.Lat &&
		c.Lon >= b.Min.Lon && c.Lon <= b.Max.Lon
}

// Extend returns the smallest bounds containing both b and c.
func (b Bounds) Extend(c Coord) Bounds {
	return Bounds{
		Min: Coord{Lat: math.Min(b.Min.Lat, c.Lat), Lon: math.Min(b.Min.Lon, c.Lon)},
		Max: Coord{Lat: math.Max(b.Max.Lat, c.Lat), Lon: math.Max(b.Max.Lon, c.Lon)},
	}
}

// Union returns the smallest bounds containing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	return Bounds{
		Min: Coord{Lat: math.Min(b.Min.Lat, o.Min.Lat), Lon: math.Min(b.Min.Lon, o.Min.Lon)},
		Max: Coord{Lat: math.Max(b.Max.Lat, o.Max.Lat), Lon: math.Max(b.Max.Lon, o.Max.Lon)},
	}
}

// Distance returns the great-circle distance between a and b in meters,
// computed with the haversine formula.
func Distance(a, b Coord) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}
