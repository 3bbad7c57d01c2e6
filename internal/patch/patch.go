package patch

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dshills/trackdeck/internal/track"
)

// ErrInconsistent reports a patch applied to a snapshot it was not computed
// against. It indicates a violation of the single-writer transaction model
// and always aborts the transaction.
var ErrInconsistent = errors.New("patch inconsistent with target state")

// State is the authoritative mapping of document id to document snapshot.
// It is never mutated in place; Apply returns a fresh mapping.
type State map[string]*track.File

// Clone returns a shallow copy of the state map. Files themselves are
// immutable once committed, so sharing them is safe.
func (s State) Clone() State {
	return maps.Clone(s)
}

// Kind identifies the structural operation an Op performs.
type Kind uint8

const (
	// KindPutFile inserts or replaces a whole document.
	KindPutFile Kind = iota
	// KindDeleteFile removes a document.
	KindDeleteFile
	// KindSetFileMeta replaces a document's name and hidden flag.
	KindSetFileMeta
	// KindReplaceTracks range-replaces a document's tracks.
	KindReplaceTracks
	// KindReplaceSegments range-replaces one track's segments.
	KindReplaceSegments
	// KindReplacePoints range-replaces one segment's points.
	KindReplacePoints
	// KindReplaceWaypoints range-replaces a document's waypoints.
	KindReplaceWaypoints
)

// String returns a short op-kind name.
func (k Kind) String() string {
	switch k {
	case KindPutFile:
		return "put-file"
	case KindDeleteFile:
		return "delete-file"
	case KindSetFileMeta:
		return "set-file-meta"
	case KindReplaceTracks:
		return "replace-tracks"
	case KindReplaceSegments:
		return "replace-segments"
	case KindReplacePoints:
		return "replace-points"
	case KindReplaceWaypoints:
		return "replace-waypoints"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Meta carries the document-level attributes handled by KindSetFileMeta.
type Meta struct {
	Name   string
	Hidden bool
}

// Op is one structural operation. DocID is always set; TrackIdx and SegIdx
// narrow the path for segment- and point-level replacements. Start and
// Removed describe the replaced child range; exactly one of the payload
// slices (or File/Meta) is populated, matching Kind.
type Op struct {
	Kind   Kind
	DocID  string
	TrackIdx, SegIdx int
	Start, Removed   int

	File      *track.File
	Meta      *Meta
	Tracks    []track.Track
	Segments  []track.Segment
	Points    []track.Point
	Waypoints []track.Waypoint
}

// Patch is an ordered list of ops transforming one state into another.
type Patch []Op

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool { return len(p) == 0 }

// DocIDs returns the ids of all documents the patch touches, sorted and
// deduplicated.
func (p Patch) DocIDs() []string {
	seen := make(map[string]struct{}, len(p))
	for _, op := range p {
		seen[op.DocID] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Diff computes the minimal structural diff between two states and returns
// the forward and inverse patches. Both patches cover the entire state, so
// a transaction spanning several documents yields one atomic pair.
func Diff(before, after State) (forward, inverse Patch) {
	ids := make(map[string]struct{}, len(before)+len(after))
	for id := range before {
		ids[id] = struct{}{}
	}
	for id := range after {
		ids[id] = struct{}{}
	}

	for _, id := range slices.Sorted(maps.Keys(ids)) {
		b, inBefore := before[id]
		a, inAfter := after[id]

		switch {
		case !inBefore:
			forward = append(forward, Op{Kind: KindPutFile, DocID: id, File: a.Clone()})
			inverse = append(inverse, Op{Kind: KindDeleteFile, DocID: id})
		case !inAfter:
			forward = append(forward, Op{Kind: KindDeleteFile, DocID: id})
			inverse = append(inverse, Op{Kind: KindPutFile, DocID: id, File: b.Clone()})
		case !b.Equal(a):
			fwd, inv := diffFile(id, b, a)
			forward = append(forward, fwd...)
			inverse = append(inverse, inv...)
		}
	}
	return forward, inverse
}

func diffFile(id string, before, after *track.File) (forward, inverse Patch) {
	if before.Name != after.Name || before.Hidden != after.Hidden {
		forward = append(forward, Op{Kind: KindSetFileMeta, DocID: id,
			Meta: &Meta{Name: after.Name, Hidden: after.Hidden}})
		inverse = append(inverse, Op{Kind: KindSetFileMeta, DocID: id,
			Meta: &Meta{Name: before.Name, Hidden: before.Hidden}})
	}

	if fwd, inv, changed := diffWaypoints(id, before.Waypoints, after.Waypoints); changed {
		forward = append(forward, fwd)
		inverse = append(inverse, inv)
	}

	if fwd, inv := diffTracks(id, before.Tracks, after.Tracks); len(fwd) > 0 {
		forward = append(forward, fwd...)
		inverse = append(inverse, inv...)
	}

	return forward, inverse
}

// window locates the changed child range by trimming the common prefix and
// suffix under eq. It returns the prefix length and the lengths of the
// changed windows in a and b. changed is false when the slices are equal.
func window[T any](a, b []T, eq func(T, T) bool) (prefix, na, nb int, changed bool) {
	for prefix < len(a) && prefix < len(b) && eq(a[prefix], b[prefix]) {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		eq(a[len(a)-1-suffix], b[len(b)-1-suffix]) {
		suffix++
	}
	na = len(a) - prefix - suffix
	nb = len(b) - prefix - suffix
	return prefix, na, nb, na > 0 || nb > 0
}

func diffWaypoints(id string, before, after []track.Waypoint) (fwd, inv Op, changed bool) {
	p, na, nb, changed := window(before, after, track.Waypoint.Equal)
	if !changed {
		return Op{}, Op{}, false
	}
	fwd = Op{Kind: KindReplaceWaypoints, DocID: id, Start: p, Removed: na,
		Waypoints: slices.Clone(after[p : p+nb])}
	inv = Op{Kind: KindReplaceWaypoints, DocID: id, Start: p, Removed: nb,
		Waypoints: slices.Clone(before[p : p+na])}
	return fwd, inv, true
}

func diffTracks(id string, before, after []track.Track) (forward, inverse Patch) {
	p, na, nb, changed := window(before, after, track.Track.Equal)
	if !changed {
		return nil, nil
	}

	// A single track modified in place diffs at segment granularity, unless
	// its attributes changed too.
	if na == 1 && nb == 1 && sameTrackAttrs(before[p], after[p]) {
		return diffSegments(id, p, before[p].Segments, after[p].Segments)
	}

	forward = Patch{{Kind: KindReplaceTracks, DocID: id, Start: p, Removed: na,
		Tracks: cloneTracks(after[p : p+nb])}}
	inverse = Patch{{Kind: KindReplaceTracks, DocID: id, Start: p, Removed: nb,
		Tracks: cloneTracks(before[p : p+na])}}
	return forward, inverse
}

func diffSegments(id string, trackIdx int, before, after []track.Segment) (forward, inverse Patch) {
	p, na, nb, changed := window(before, after, track.Segment.Equal)
	if !changed {
		return nil, nil
	}

	if na == 1 && nb == 1 && before[p].Hidden == after[p].Hidden {
		return diffPoints(id, trackIdx, p, before[p].Points, after[p].Points)
	}

	forward = Patch{{Kind: KindReplaceSegments, DocID: id, TrackIdx: trackIdx,
		Start: p, Removed: na, Segments: cloneSegments(after[p : p+nb])}}
	inverse = Patch{{Kind: KindReplaceSegments, DocID: id, TrackIdx: trackIdx,
		Start: p, Removed: nb, Segments: cloneSegments(before[p : p+na])}}
	return forward, inverse
}

func diffPoints(id string, trackIdx, segIdx int, before, after []track.Point) (forward, inverse Patch) {
	p, na, nb, changed := window(before, after, track.Point.Equal)
	if !changed {
		return nil, nil
	}

	forward = Patch{{Kind: KindReplacePoints, DocID: id, TrackIdx: trackIdx, SegIdx: segIdx,
		Start: p, Removed: na, Points: slices.Clone(after[p : p+nb])}}
	inverse = Patch{{Kind: KindReplacePoints, DocID: id, TrackIdx: trackIdx, SegIdx: segIdx,
		Start: p, Removed: nb, Points: slices.Clone(before[p : p+na])}}
	return forward, inverse
}

func sameTrackAttrs(a, b track.Track) bool {
	return a.Name == b.Name && a.Style == b.Style && a.Hidden == b.Hidden
}

func cloneTracks(ts []track.Track) []track.Track {
	out := make([]track.Track, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

func cloneSegments(ss []track.Segment) []track.Segment {
	out := make([]track.Segment, len(ss))
	for i, s := range ss {
		out[i] = s.Clone()
	}
	return out
}

// Apply applies p to s and returns the resulting state. s is not modified.
// Any op whose target is missing reports ErrInconsistent.
func Apply(s State, p Patch) (State, error) {
	out := s.Clone()
	touched := make(map[string]*track.File)

	// workingCopy hands out one mutable clone per document per apply.
	workingCopy := func(id string) (*track.File, error) {
		if f, ok := touched[id]; ok {
			return f, nil
		}
		f, ok := out[id]
		if !ok {
			return nil, fmt.Errorf("%w: document %q not found", ErrInconsistent, id)
		}
		c := f.Clone()
		touched[id] = c
		out[id] = c
		return c, nil
	}

	for _, op := range p {
		switch op.Kind {
		case KindPutFile:
			c := op.File.Clone()
			out[op.DocID] = c
			touched[op.DocID] = c

		case KindDeleteFile:
			if _, ok := out[op.DocID]; !ok {
				return nil, fmt.Errorf("%w: delete of missing document %q", ErrInconsistent, op.DocID)
			}
			delete(out, op.DocID)
			delete(touched, op.DocID)

		case KindSetFileMeta:
			f, err := workingCopy(op.DocID)
			if err != nil {
				return nil, err
			}
			f.Name = op.Meta.Name
			f.Hidden = op.Meta.Hidden

		case KindReplaceTracks:
			f, err := workingCopy(op.DocID)
			if err != nil {
				return nil, err
			}
			if err := checkRange(op, len(f.Tracks)); err != nil {
				return nil, err
			}
			f.Tracks = spliceRange(f.Tracks, op.Start, op.Removed, cloneTracks(op.Tracks))

		case KindReplaceSegments:
			f, err := workingCopy(op.DocID)
			if err != nil {
				return nil, err
			}
			if op.TrackIdx < 0 || op.TrackIdx >= len(f.Tracks) {
				return nil, fmt.Errorf("%w: %s track %d of %q", ErrInconsistent, op.Kind, op.TrackIdx, op.DocID)
			}
			tr := &f.Tracks[op.TrackIdx]
			if err := checkRange(op, len(tr.Segments)); err != nil {
				return nil, err
			}
			tr.Segments = spliceRange(tr.Segments, op.Start, op.Removed, cloneSegments(op.Segments))

		case KindReplacePoints:
			f, err := workingCopy(op.DocID)
			if err != nil {
				return nil, err
			}
			if op.TrackIdx < 0 || op.TrackIdx >= len(f.Tracks) {
				return nil, fmt.Errorf("%w: %s track %d of %q", ErrInconsistent, op.Kind, op.TrackIdx, op.DocID)
			}
			tr := &f.Tracks[op.TrackIdx]
			if op.SegIdx < 0 || op.SegIdx >= len(tr.Segments) {
				return nil, fmt.Errorf("%w: %s segment %d of %q", ErrInconsistent, op.Kind, op.SegIdx, op.DocID)
			}
			seg := &tr.Segments[op.SegIdx]
			if err := checkRange(op, len(seg.Points)); err != nil {
				return nil, err
			}
			seg.Points = spliceRange(seg.Points, op.Start, op.Removed, slices.Clone(op.Points))

		case KindReplaceWaypoints:
			f, err := workingCopy(op.DocID)
			if err != nil {
				return nil, err
			}
			if err := checkRange(op, len(f.Waypoints)); err != nil {
				return nil, err
			}
			f.Waypoints = spliceRange(f.Waypoints, op.Start, op.Removed, slices.Clone(op.Waypoints))

		default:
			return nil, fmt.Errorf("%w: unknown op kind %d", ErrInconsistent, op.Kind)
		}
	}

	return out, nil
}

func checkRange(op Op, n int) error {
	if op.Start < 0 || op.Removed < 0 || op.Start+op.Removed > n {
		return fmt.Errorf("%w: %s range [%d,+%d) of %q exceeds %d children",
			ErrInconsistent, op.Kind, op.Start, op.Removed, op.DocID, n)
	}
	return nil
}

// spliceRange replaces removed children starting at start with repl. Unlike
// track.ReplaceRange it is exact: callers validated the range already.
func spliceRange[T any](items []T, start, removed int, repl []T) []T {
	out := make([]T, 0, len(items)-removed+len(repl))
	out = append(out, items[:start]...)
	out = append(out, repl...)
	out = append(out, items[start+removed:]...)
	return out
}

// Equal reports whether two states are equal by value.
func Equal(a, b State) bool {
	if len(a) != len(b) {
		return false
	}
	for id, f := range a {
		o, ok := b[id]
		if !ok || !f.Equal(o) {
			return false
		}
	}
	return true
}
