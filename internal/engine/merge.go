package engine

import (
	"sort"
	"time"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/patch"
	"github.com/dshills/trackdeck/internal/selection"
	"github.com/dshills/trackdeck/internal/track"
)

// trackRef addresses one track by document and position.
type trackRef struct {
	docID string
	idx   int
}

// MergeSelection folds the selected items into the first-selected one at
// their own level. A file-level selection appends the other documents'
// tracks and waypoints into the first-selected document and deletes the
// sources; a track-level selection appends the other tracks' segments into
// the first-selected track and removes the source tracks, deleting any
// document emptied by that. With blend, the merged scope collapses into a
// single segment whose timestamps are rewritten to a constant pace, so the
// result reads as one continuous recording.
func (e *Engine) MergeSelection(sel selection.Provider, blend bool) error {
	if e.selectionEmpty(sel) {
		return nil
	}
	err := e.transact(func(s patch.State) (patch.State, error) {
		var fileOrder []string
		var trackOrder []trackRef
		seenFile := map[string]bool{}
		seenTrack := map[trackRef]bool{}

		verr := sel.Traverse(false, func(docID string, level selection.Level, items []selection.Item) error {
			switch level {
			case selection.LevelFile:
				if _, ok := s[docID]; ok && !seenFile[docID] {
					seenFile[docID] = true
					fileOrder = append(fileOrder, docID)
				}
			case selection.LevelTrack:
				f, ok := s[docID]
				if !ok {
					return nil
				}
				for _, it := range items {
					if it.TrackIdx < 0 || it.TrackIdx >= len(f.Tracks) {
						continue
					}
					r := trackRef{docID: docID, idx: it.TrackIdx}
					if seenTrack[r] {
						continue
					}
					seenTrack[r] = true
					trackOrder = append(trackOrder, r)
				}
			}
			return nil
		})
		if verr != nil {
			return s, verr
		}

		if len(fileOrder) >= 2 {
			return e.mergeFiles(s, fileOrder, blend), nil
		}
		if len(trackOrder) >= 2 {
			return e.mergeTracks(s, trackOrder, blend), nil
		}
		return s, nil
	})
	if err != nil {
		return err
	}
	e.pruneSelection(sel)
	return nil
}

// mergeFiles appends every later document's tracks and waypoints into the
// first and deletes the sources.
func (e *Engine) mergeFiles(s patch.State, order []string, blend bool) patch.State {
	out := s.Clone()
	target := out[order[0]].Clone()
	for _, id := range order[1:] {
		src := out[id]
		for _, tr := range src.Tracks {
			target.Tracks = append(target.Tracks, tr.Clone())
		}
		target.Waypoints = append(target.Waypoints, src.Waypoints...)
		delete(out, id)
	}

	if blend && len(target.Tracks) > 0 {
		var segs []track.Segment
		for _, tr := range target.Tracks {
			segs = append(segs, tr.Segments...)
		}
		first := target.Tracks[0]
		first.Segments = e.blendSegments(segs)
		target.Tracks = []track.Track{first}
	}

	out[order[0]] = target
	return out
}

// mergeTracks appends every later track's segments into the first and
// removes the source tracks, deleting any document emptied by that.
func (e *Engine) mergeTracks(s patch.State, order []trackRef, blend bool) patch.State {
	out := s.Clone()
	tgt := order[0]

	// Source segments come from the committed snapshot so same-document
	// merges read the pre-edit tracks.
	var segs []track.Segment
	removedByDoc := map[string][]int{}
	for _, src := range order[1:] {
		for _, seg := range s[src.docID].Tracks[src.idx].Segments {
			segs = append(segs, seg.Clone())
		}
		removedByDoc[src.docID] = append(removedByDoc[src.docID], src.idx)
	}

	c := s[tgt.docID].Clone()
	c.Tracks[tgt.idx].Segments = append(c.Tracks[tgt.idx].Segments, segs...)
	out[tgt.docID] = c

	targetIdx := tgt.idx
	for docID, idxs := range removedByDoc {
		f := out[docID].Clone()
		sort.Sort(sort.Reverse(sort.IntSlice(idxs)))
		for _, i := range idxs {
			f.Tracks = track.ReplaceRange(f.Tracks, i, i, nil)
			if docID == tgt.docID && i < targetIdx {
				targetIdx--
			}
		}
		if f.IsEmpty() {
			delete(out, docID)
		} else {
			out[docID] = f
		}
	}

	if blend {
		f := out[tgt.docID].Clone()
		tr := &f.Tracks[targetIdx]
		tr.Segments = e.blendSegments(tr.Segments)
		out[tgt.docID] = f
	}
	return out
}

// blendSegments flattens segs into a single segment re-timed at the pace
// observed in the original data, falling back to the configured blend speed
// when the data carries no usable moving stretch.
func (e *Engine) blendSegments(segs []track.Segment) []track.Segment {
	var pts []track.Point
	for _, seg := range segs {
		pts = append(pts, seg.Points...)
	}
	if len(pts) == 0 {
		return segs
	}

	speed := observedSpeed(segs, e.cfg.MovingThreshold)
	if speed <= 0 {
		speed = e.cfg.BlendSpeed
	}
	retimePoints(pts, speed)
	return []track.Segment{{Points: pts}}
}

// retimePoints rewrites timestamps to a constant pace anchored at the first
// available timestamp; a sequence with no timestamps at all is left alone.
// A zero-distance hop still advances time by one second so timestamps stay
// strictly increasing.
func retimePoints(pts []track.Point, speed float64) {
	var start time.Time
	for _, p := range pts {
		if !p.Time.IsZero() {
			start = p.Time
			break
		}
	}
	if start.IsZero() || speed <= 0 {
		return
	}

	pts[0].Time = start
	t := start
	for i := 1; i < len(pts); i++ {
		d := geo.Distance(pts[i-1].Coord, pts[i].Coord)
		step := time.Second
		if d > 0 {
			step = time.Duration(d / speed * float64(time.Second))
			if step < time.Second {
				step = time.Second
			}
		}
		t = t.Add(step)
		pts[i].Time = t
	}
}

// observedSpeed derives the average moving speed (m/s) of the segments'
// timestamped stretches. Returns 0 when no stretch qualifies.
func observedSpeed(segs []track.Segment, movingThreshold float64) float64 {
	var dist float64
	var dur time.Duration
	for _, seg := range segs {
		for i := 1; i < len(seg.Points); i++ {
			a, b := seg.Points[i-1], seg.Points[i]
			if a.Time.IsZero() || b.Time.IsZero() || !b.Time.After(a.Time) {
				continue
			}
			d := geo.Distance(a.Coord, b.Coord)
			dt := b.Time.Sub(a.Time)
			if d/dt.Seconds() < movingThreshold {
				continue
			}
			dist += d
			dur += dt
		}
	}
	if dur <= 0 {
		return 0
	}
	return dist / dur.Seconds()
}
