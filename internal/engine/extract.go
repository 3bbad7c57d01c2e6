package engine

import (
	"fmt"
	"math"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/patch"
	"github.com/dshills/trackdeck/internal/track"
)

// waypointTieEpsilon bounds the distance delta under which a waypoint counts
// as equidistant from two extracted parts and is copied into both.
const waypointTieEpsilon = 1e-9

// Extract explodes a document into one document per track, or per segment
// when the document holds a single track, and deletes the original. Each
// waypoint follows the part it sits closest to; equidistant waypoints are
// duplicated into every tied part. A document with fewer than two parts is
// left alone.
func (e *Engine) Extract(docID string) ([]string, error) {
	var ids []string
	err := e.transact(func(s patch.State) (patch.State, error) {
		f, ok := s[docID]
		if !ok {
			return s, nil
		}

		var parts []*track.File
		if len(f.Tracks) > 1 {
			for i, tr := range f.Tracks {
				c := f.Clone()
				c.Tracks = []track.Track{c.Tracks[i]}
				c.Waypoints = nil
				name := tr.Name
				if name == "" {
					name = fmt.Sprintf("%s #%d", f.Name, i+1)
				}
				c.Name = name
				parts = append(parts, c)
			}
		} else if len(f.Tracks) == 1 && len(f.Tracks[0].Segments) > 1 {
			for i := range f.Tracks[0].Segments {
				c := f.Clone()
				c.Tracks[0].Segments = []track.Segment{c.Tracks[0].Segments[i]}
				c.Waypoints = nil
				c.Name = fmt.Sprintf("%s #%d", f.Name, i+1)
				parts = append(parts, c)
			}
		}
		if len(parts) < 2 {
			return s, nil
		}

		assignWaypoints(f.Waypoints, parts)

		out := s.Clone()
		delete(out, docID)
		ids = ids[:0]
		for _, p := range parts {
			p.ID = freshID(out)
			out[p.ID] = p
			ids = append(ids, p.ID)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// assignWaypoints hands each waypoint to its nearest part, duplicating it
// into every part within waypointTieEpsilon of the minimum.
func assignWaypoints(wps []track.Waypoint, parts []*track.File) {
	for _, wp := range wps {
		dists := make([]float64, len(parts))
		best := math.Inf(1)
		for i, p := range parts {
			dists[i] = partDistance(p, wp.Coord)
			if dists[i] < best {
				best = dists[i]
			}
		}
		if math.IsInf(best, 1) {
			// No part has points; keep the waypoint with the first.
			parts[0].Waypoints = append(parts[0].Waypoints, wp)
			continue
		}
		for i, p := range parts {
			if dists[i]-best <= waypointTieEpsilon {
				p.Waypoints = append(p.Waypoints, wp)
			}
		}
	}
}

// partDistance is the distance from c to the nearest trackpoint of p.
func partDistance(p *track.File, c geo.Coord) float64 {
	best := math.Inf(1)
	for _, tr := range p.Tracks {
		for _, seg := range tr.Segments {
			for _, pt := range seg.Points {
				if d := geo.Distance(pt.Coord, c); d < best {
					best = d
				}
			}
		}
	}
	return best
}
