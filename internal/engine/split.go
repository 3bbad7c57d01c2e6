package engine

import (
	"fmt"
	"math"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/patch"
	"github.com/dshills/trackdeck/internal/track"
)

// SplitMode selects the granularity a split produces.
type SplitMode int

const (
	// SplitFile divides a document into two documents.
	SplitFile SplitMode = iota
	// SplitTrack divides one track into two tracks.
	SplitTrack
	// SplitSegment divides one segment into two segments.
	SplitSegment
)

// ParseSplitMode maps a configuration string to a SplitMode.
func ParseSplitMode(s string) (SplitMode, error) {
	switch s {
	case "file":
		return SplitFile, nil
	case "track":
		return SplitTrack, nil
	case "segment":
		return SplitSegment, nil
	}
	return 0, fmt.Errorf("unknown split mode %q", s)
}

// Split divides a document at the trackpoint nearest to at. The nearest point
// stays on the left side; ties resolve to the lowest global index. SplitFile
// produces a sibling document and returns its id; the other modes return "".
// Splitting at either extremity, where one side would come out empty, is a
// no-op.
func (e *Engine) Split(docID string, at geo.Coord, mode SplitMode) (string, error) {
	var newID string
	err := e.transact(func(s patch.State) (patch.State, error) {
		f, ok := s[docID]
		if !ok {
			return s, nil
		}

		ti, si, pi, found := nearestPoint(f, at)
		if !found {
			return s, nil
		}

		out := s.Clone()
		switch mode {
		case SplitSegment:
			tr := &f.Tracks[ti]
			if pi == len(tr.Segments[si].Points)-1 {
				return s, nil
			}
			c := f.Clone()
			seg := c.Tracks[ti].Segments[si]
			left := track.Segment{Points: seg.Points[:pi+1], Hidden: seg.Hidden}
			right := track.Segment{Points: seg.Points[pi+1:], Hidden: seg.Hidden}
			c.Tracks[ti].Segments = track.ReplaceRange(c.Tracks[ti].Segments, si, si,
				[]track.Segment{left, right})
			out[docID] = c

		case SplitTrack:
			tr := f.Tracks[ti]
			if si == len(tr.Segments)-1 && pi == len(tr.Segments[si].Points)-1 {
				return s, nil
			}
			c := f.Clone()
			leftSegs, rightSegs := splitSegments(c.Tracks[ti].Segments, si, pi)
			left := c.Tracks[ti]
			left.Segments = leftSegs
			right := track.Track{Name: left.Name, Segments: rightSegs, Style: left.Style, Hidden: left.Hidden}
			c.Tracks = track.ReplaceRange(c.Tracks, ti, ti, []track.Track{left, right})
			out[docID] = c

		case SplitFile:
			if ti == len(f.Tracks)-1 &&
				si == len(f.Tracks[ti].Segments)-1 &&
				pi == len(f.Tracks[ti].Segments[si].Points)-1 {
				return s, nil
			}
			leftDoc := f.Clone()
			rightDoc := f.Clone()

			leftSegs, rightSegs := splitSegments(leftDoc.Tracks[ti].Segments, si, pi)
			cut := leftDoc.Tracks[ti]
			cut.Segments = leftSegs
			leftDoc.Tracks = append(leftDoc.Tracks[:ti:ti], cut)

			cutR := rightDoc.Tracks[ti]
			cutR.Segments = rightSegs
			rightDoc.Tracks = append([]track.Track{cutR}, rightDoc.Tracks[ti+1:]...)
			// Waypoints stay with the original document.
			rightDoc.Waypoints = nil
			newID = freshID(out)
			rightDoc.ID = newID
			rightDoc.Name = f.Name + " (split)"

			out[docID] = leftDoc
			out[newID] = rightDoc
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

// splitSegments cuts a segment slice after point pi of segment si, returning
// the left and right halves. Both halves are non-empty by the caller's
// extremity checks.
func splitSegments(segs []track.Segment, si, pi int) (left, right []track.Segment) {
	seg := segs[si]
	left = append(left, segs[:si]...)
	left = append(left, track.Segment{Points: seg.Points[:pi+1], Hidden: seg.Hidden})
	if pi+1 < len(seg.Points) {
		right = append(right, track.Segment{Points: seg.Points[pi+1:], Hidden: seg.Hidden})
	}
	right = append(right, segs[si+1:]...)
	return left, right
}

// nearestPoint locates the trackpoint closest to at, preferring the lowest
// global index on exact distance ties.
func nearestPoint(f *track.File, at geo.Coord) (ti, si, pi int, found bool) {
	best := math.Inf(1)
	for t, tr := range f.Tracks {
		for s, seg := range tr.Segments {
			for p, pt := range seg.Points {
				d := geo.Distance(pt.Coord, at)
				if d < best {
					best = d
					ti, si, pi = t, s, p
					found = true
				}
			}
		}
	}
	return ti, si, pi, found
}
