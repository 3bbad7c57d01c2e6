package track

// ReplaceRange replaces the inclusive index range [start, end] of items with
// repl and returns the resulting slice. end < start means pure insertion at
// start. Out-of-range indices are clamped; the call never panics.
//
// The same primitive serves tracks, segments, waypoints and points.
func ReplaceRange[T any](items []T, start, end int, repl []T) []T {
	if start < 0 {
		start = 0
	}
	if start > len(items) {
		start = len(items)
	}
	if end >= len(items) {
		end = len(items) - 1
	}

	cut := 0
	if end >= start {
		cut = end - start + 1
	}

	out := make([]T, 0, len(items)-cut+len(repl))
	out = append(out, items[:start]...)
	out = append(out, repl...)
	out = append(out, items[start+cut:]...)
	return out
}

// Crop keeps only the trackpoints whose global index (counting across tracks,
// then segments, in order) falls in the inclusive range [start, end].
// Segments and tracks left without points are removed. If no point survives
// the file is gone: Crop returns nil and the caller deletes the document.
// An empty range (end < start) therefore deletes the file, and a range
// covering every point is the identity.
func (f *File) Crop(start, end int) *File {
	out := f.Clone()
	idx := 0

	var tracks []Track
	for _, tr := range out.Tracks {
		var segs []Segment
		for _, seg := range tr.Segments {
			lo := start - idx
			hi := end - idx
			idx += len(seg.Points)

			if lo < 0 {
				lo = 0
			}
			if hi >= len(seg.Points) {
				hi = len(seg.Points) - 1
			}
			if hi < lo {
				continue
			}
			seg.Points = seg.Points[lo : hi+1]
			segs = append(segs, seg)
		}
		if len(segs) == 0 {
			continue
		}
		tr.Segments = segs
		tracks = append(tracks, tr)
	}

	if len(tracks) == 0 {
		return nil
	}
	out.Tracks = tracks
	return out
}

// Reverse reverses the global point order of the file: track order, segment
// order within each track, and point order within each segment. Timestamps
// travel with their points.
func (f *File) Reverse() *File {
	out := f.Clone()
	reverseSlice(out.Tracks)
	for i := range out.Tracks {
		out.Tracks[i].reverseInPlace()
	}
	return out
}

// Reverse reverses the segment order and the point order within each segment.
func (t Track) Reverse() Track {
	out := t.Clone()
	out.reverseInPlace()
	return out
}

func (t *Track) reverseInPlace() {
	reverseSlice(t.Segments)
	for i := range t.Segments {
		reverseSlice(t.Segments[i].Points)
	}
}

// Reverse reverses the point order.
func (s Segment) Reverse() Segment {
	out := s.Clone()
	reverseSlice(out.Points)
	return out
}

func reverseSlice[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

// SetStyle applies style to the tracks at the given indices. A nil index
// slice targets every track. Indices that no longer exist are skipped.
func (f *File) SetStyle(style Style, trackIndices []int) *File {
	out := f.Clone()
	for _, i := range trackIndexSet(out, trackIndices) {
		out.Tracks[i].Style = style
	}
	return out
}

// SetHidden applies the hidden flag at file granularity when trackIndices is
// nil, otherwise to the tracks at the given indices.
func (f *File) SetHidden(hidden bool, trackIndices []int) *File {
	out := f.Clone()
	if trackIndices == nil {
		out.Hidden = hidden
		return out
	}
	for _, i := range trackIndexSet(out, trackIndices) {
		out.Tracks[i].Hidden = hidden
	}
	return out
}

// SetSegmentHidden applies the hidden flag to one segment. Out-of-range
// indices leave the file unchanged.
func (f *File) SetSegmentHidden(hidden bool, trackIdx, segIdx int) *File {
	out := f.Clone()
	if trackIdx < 0 || trackIdx >= len(out.Tracks) {
		return out
	}
	tr := &out.Tracks[trackIdx]
	if segIdx < 0 || segIdx >= len(tr.Segments) {
		return out
	}
	tr.Segments[segIdx].Hidden = hidden
	return out
}

// SetWaypointsHidden applies the hidden flag to the waypoints at the given
// indices, or to all waypoints when indices is nil.
func (f *File) SetWaypointsHidden(hidden bool, indices []int) *File {
	out := f.Clone()
	if indices == nil {
		for i := range out.Waypoints {
			out.Waypoints[i].Hidden = hidden
		}
		return out
	}
	for _, i := range indices {
		if i < 0 || i >= len(out.Waypoints) {
			continue
		}
		out.Waypoints[i].Hidden = hidden
	}
	return out
}

func trackIndexSet(f *File, indices []int) []int {
	if indices == nil {
		all := make([]int, len(f.Tracks))
		for i := range all {
			all[i] = i
		}
		return all
	}
	var valid []int
	for _, i := range indices {
		if i >= 0 && i < len(f.Tracks) {
			valid = append(valid, i)
		}
	}
	return valid
}
