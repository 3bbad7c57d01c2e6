// Package stats builds and queries the hierarchical statistics tree that
// mirrors a track document's structure.
//
// A Tree is computed once per committed file and never mutated; queries walk
// the cached nodes. Metrics merge associatively and commutatively, so
// aggregating a selection across sibling documents is order-independent.
package stats

import (
	"time"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/selection"
	"github.com/dshills/trackdeck/internal/track"
)

// DefaultMovingThreshold is the speed, in meters per second, below which an
// interval counts as stopped time.
const DefaultMovingThreshold = 0.5

// Metrics holds the aggregate values for one tree node.
type Metrics struct {
	Distance       float64 // meters
	Duration       time.Duration
	MovingDuration time.Duration
	ElevationGain  float64 // meters
	ElevationLoss  float64 // meters
	PointCount     int
	Bounds         geo.Bounds
}

// MovingSpeed returns the average speed over moving time, in m/s.
func (m Metrics) MovingSpeed() float64 {
	if m.MovingDuration <= 0 {
		return 0
	}
	return m.Distance / m.MovingDuration.Seconds()
}

// TotalSpeed returns the average speed over total time, in m/s.
func (m Metrics) TotalSpeed() float64 {
	if m.Duration <= 0 {
		return 0
	}
	return m.Distance / m.Duration.Seconds()
}

// Merge combines two metrics values. Distances and durations sum, bounds
// union; the derived speeds recompute from the summed components, which is
// what makes the merge order irrelevant.
func Merge(a, b Metrics) Metrics {
	return Metrics{
		Distance:       a.Distance + b.Distance,
		Duration:       a.Duration + b.Duration,
		MovingDuration: a.MovingDuration + b.MovingDuration,
		ElevationGain:  a.ElevationGain + b.ElevationGain,
		ElevationLoss:  a.ElevationLoss + b.ElevationLoss,
		PointCount:     a.PointCount + b.PointCount,
		Bounds:         a.Bounds.Union(b.Bounds),
	}
}

// TrackNode caches one track's metrics and those of its segments.
type TrackNode struct {
	Total    Metrics
	Segments []Metrics
}

// WaypointBucket summarizes a file's flattened waypoint list. Coords keep
// per-waypoint positions so a single-waypoint selection aggregates to that
// waypoint's own bounds.
type WaypointBucket struct {
	Count  int
	Bounds geo.Bounds
	Coords []geo.Coord
}

// Tree is the per-document statistics tree.
type Tree struct {
	DocID     string
	Total     Metrics
	Tracks    []TrackNode
	Waypoints WaypointBucket
}

// Build computes the statistics tree for f. movingThreshold is the m/s
// cutoff for moving time; pass DefaultMovingThreshold when in doubt.
func Build(f *track.File, movingThreshold float64) *Tree {
	t := &Tree{DocID: f.ID, Total: zeroMetrics()}

	for _, tr := range f.Tracks {
		node := TrackNode{Total: zeroMetrics()}
		for _, seg := range tr.Segments {
			m := segmentMetrics(seg, movingThreshold)
			node.Segments = append(node.Segments, m)
			node.Total = Merge(node.Total, m)
		}
		t.Tracks = append(t.Tracks, node)
		t.Total = Merge(t.Total, node.Total)
	}

	t.Waypoints.Bounds = geo.EmptyBounds()
	for _, wp := range f.Waypoints {
		t.Waypoints.Count++
		t.Waypoints.Bounds = t.Waypoints.Bounds.Extend(wp.Coord)
		t.Waypoints.Coords = append(t.Waypoints.Coords, wp.Coord)
	}

	return t
}

// AggregateFor returns the metrics for one selection item. An absent node
// (stale index) yields zero metrics; selections are re-resolved from live
// indices, so this is a silent skip, not an error.
func (t *Tree) AggregateFor(item selection.Item) Metrics {
	switch item.Level {
	case selection.LevelFile:
		return t.Total
	case selection.LevelTrack:
		if item.TrackIdx < 0 || item.TrackIdx >= len(t.Tracks) {
			return zeroMetrics()
		}
		return t.Tracks[item.TrackIdx].Total
	case selection.LevelSegment:
		if item.TrackIdx < 0 || item.TrackIdx >= len(t.Tracks) {
			return zeroMetrics()
		}
		segs := t.Tracks[item.TrackIdx].Segments
		if item.SegmentIdx < 0 || item.SegmentIdx >= len(segs) {
			return zeroMetrics()
		}
		return segs[item.SegmentIdx]
	case selection.LevelWaypoint:
		m := zeroMetrics()
		if item.WaypointIdx < 0 || item.WaypointIdx >= len(t.Waypoints.Coords) {
			return m
		}
		m.PointCount = 1
		m.Bounds = m.Bounds.Extend(t.Waypoints.Coords[item.WaypointIdx])
		return m
	case selection.LevelAllWaypoints:
		m := zeroMetrics()
		m.PointCount = t.Waypoints.Count
		m.Bounds = t.Waypoints.Bounds
		return m
	default:
		return zeroMetrics()
	}
}

func zeroMetrics() Metrics {
	return Metrics{Bounds: geo.EmptyBounds()}
}

func segmentMetrics(seg track.Segment, movingThreshold float64) Metrics {
	m := zeroMetrics()
	m.PointCount = len(seg.Points)

	for _, p := range seg.Points {
		m.Bounds = m.Bounds.Extend(p.Coord)
	}

	for i := 1; i < len(seg.Points); i++ {
		prev, cur := seg.Points[i-1], seg.Points[i]

		d := geo.Distance(prev.Coord, cur.Coord)
		m.Distance += d

		dEle := cur.Elevation - prev.Elevation
		if dEle > 0 {
			m.ElevationGain += dEle
		} else {
			m.ElevationLoss += -dEle
		}

		if prev.Time.IsZero() || cur.Time.IsZero() {
			continue
		}
		dt := cur.Time.Sub(prev.Time)
		if dt <= 0 {
			continue
		}
		m.Duration += dt
		if d/dt.Seconds() >= movingThreshold {
			m.MovingDuration += dt
		}
	}

	return m
}
