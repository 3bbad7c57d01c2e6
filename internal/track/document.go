package track

import (
	"time"

	"github.com/dshills/trackdeck/internal/geo"
)

// Style holds the rendering attributes carried by a track.
type Style struct {
	Color   string
	Width   float64
	Opacity float64
}

// DefaultStyle returns the style applied to tracks without explicit styling.
func DefaultStyle() Style {
	return Style{Color: "#0000ee", Width: 3, Opacity: 1}
}

// Point is a single trackpoint: coordinate, elevation and optional timestamp.
// A zero Time means the point carries no timestamp.
type Point struct {
	Coord     geo.Coord
	Elevation float64
	Time      time.Time
}

// Equal reports value equality with o.
func (p Point) Equal(o Point) bool {
	return p.Coord == o.Coord && p.Elevation == o.Elevation && p.Time.Equal(o.Time)
}

// Segment is an ordered run of points within a track.
type Segment struct {
	Points []Point
	Hidden bool
}

// Clone returns a deep copy of the segment.
func (s Segment) Clone() Segment {
	out := s
	out.Points = make([]Point, len(s.Points))
	copy(out.Points, s.Points)
	return out
}

// Equal reports value equality with o.
func (s Segment) Equal(o Segment) bool {
	if s.Hidden != o.Hidden || len(s.Points) != len(o.Points) {
		return false
	}
	for i := range s.Points {
		if !s.Points[i].Equal(o.Points[i]) {
			return false
		}
	}
	return true
}

// Track is an ordered sequence of segments with style attributes.
type Track struct {
	Name     string
	Segments []Segment
	Style    Style
	Hidden   bool
}

// Clone returns a deep copy of the track.
func (t Track) Clone() Track {
	out := t
	out.Segments = make([]Segment, len(t.Segments))
	for i, seg := range t.Segments {
		out.Segments[i] = seg.Clone()
	}
	return out
}

// Equal reports value equality with o.
func (t Track) Equal(o Track) bool {
	if t.Name != o.Name || t.Style != o.Style || t.Hidden != o.Hidden ||
		len(t.Segments) != len(o.Segments) {
		return false
	}
	for i := range t.Segments {
		if !t.Segments[i].Equal(o.Segments[i]) {
			return false
		}
	}
	return true
}

// PointCount returns the number of points across all segments.
func (t Track) PointCount() int {
	n := 0
	for _, seg := range t.Segments {
		n += len(seg.Points)
	}
	return n
}

// Waypoint is a standalone labeled point attached to a file, independent of
// track geometry.
type Waypoint struct {
	Name      string
	Coord     geo.Coord
	Elevation float64
	Time      time.Time
	Hidden    bool
}

// Equal reports value equality with o.
func (w Waypoint) Equal(o Waypoint) bool {
	return w.Name == o.Name && w.Coord == o.Coord && w.Elevation == o.Elevation &&
		w.Time.Equal(o.Time) && w.Hidden == o.Hidden
}

// File is one GPS track collection document. ID is a stable unique string
// assigned at import and never reused within a session.
type File struct {
	ID        string
	Name      string
	Tracks    []Track
	Waypoints []Waypoint
	Hidden    bool
}

// Clone returns a deep copy of the file.
func (f *File) Clone() *File {
	out := *f
	out.Tracks = make([]Track, len(f.Tracks))
	for i, tr := range f.Tracks {
		out.Tracks[i] = tr.Clone()
	}
	out.Waypoints = make([]Waypoint, len(f.Waypoints))
	copy(out.Waypoints, f.Waypoints)
	return &out
}

// Equal reports value equality with o.
func (f *File) Equal(o *File) bool {
	if f == nil || o == nil {
		return f == o
	}
	if f.ID != o.ID || f.Name != o.Name || f.Hidden != o.Hidden ||
		len(f.Tracks) != len(o.Tracks) || len(f.Waypoints) != len(o.Waypoints) {
		return false
	}
	for i := range f.Tracks {
		if !f.Tracks[i].Equal(o.Tracks[i]) {
			return false
		}
	}
	for i := range f.Waypoints {
		if !f.Waypoints[i].Equal(o.Waypoints[i]) {
			return false
		}
	}
	return true
}

// PointCount returns the number of trackpoints in the file, waypoints
// excluded.
func (f *File) PointCount() int {
	n := 0
	for _, tr := range f.Tracks {
		n += tr.PointCount()
	}
	return n
}

// IsEmpty reports whether the file holds no trackpoints and no waypoints.
func (f *File) IsEmpty() bool {
	return f.PointCount() == 0 && len(f.Waypoints) == 0
}
