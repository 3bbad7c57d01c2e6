package engine

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/patch"
	"github.com/dshills/trackdeck/internal/selection"
	"github.com/dshills/trackdeck/internal/track"
)

// AddMultiple imports files as new documents in one transaction and returns
// their ids. Files without an id, or whose id is already taken, get a fresh
// one; ids are never reused within a session.
func (e *Engine) AddMultiple(files []*track.File) ([]string, error) {
	var ids []string
	err := e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		for _, f := range files {
			c := f.Clone()
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			if _, taken := out[c.ID]; taken {
				c.ID = uuid.NewString()
			}
			out[c.ID] = c
			ids = append(ids, c.ID)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// freshID returns a document id not present in s.
func freshID(s patch.State) string {
	for {
		id := uuid.NewString()
		if _, taken := s[id]; !taken {
			return id
		}
	}
}

// NewFile creates an empty named document and returns its id.
func (e *Engine) NewFile(name string) (string, error) {
	id := uuid.NewString()
	err := e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		out[id] = &track.File{ID: id, Name: name}
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Rename sets a document's name. A missing document is a silent no-op.
func (e *Engine) Rename(docID, name string) error {
	return e.transact(func(s patch.State) (patch.State, error) {
		f, ok := s[docID]
		if !ok {
			return s, nil
		}
		out := s.Clone()
		c := f.Clone()
		c.Name = name
		out[docID] = c
		return out, nil
	})
}

// Delete removes whole documents.
func (e *Engine) Delete(docIDs ...string) error {
	return e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		for _, id := range docIDs {
			delete(out, id)
		}
		return out, nil
	})
}

// selectionEmpty reports whether sel selects nothing in any committed
// document. Selection ops check it up front so an empty selection never
// opens a transaction.
func (e *Engine) selectionEmpty(sel selection.Provider) bool {
	for _, id := range e.DocumentIDs() {
		if sel.IsAnySelected(id, nil) {
			return false
		}
	}
	return true
}

// CropSelection keeps only the points of each selected entity whose index,
// counted within that entity, falls in the inclusive range [start, end].
// Containers left empty are deleted in turn; a file whose point count drops
// to zero is deleted outright.
func (e *Engine) CropSelection(sel selection.Provider, start, end int) error {
	if e.selectionEmpty(sel) {
		return nil
	}
	err := e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		verr := sel.Traverse(false, func(docID string, level selection.Level, items []selection.Item) error {
			f, ok := out[docID]
			if !ok {
				return nil
			}
			for _, item := range items {
				cropped := cropScope(f, item, start, end)
				if cropped == nil {
					delete(out, docID)
					break
				}
				f = cropped
				out[docID] = f
			}
			return nil
		})
		return out, verr
	})
	if err != nil {
		return err
	}
	e.pruneSelection(sel)
	return nil
}

// cropScope crops one selected entity, returning nil when no point survives
// anywhere in the file.
func cropScope(f *track.File, item selection.Item, start, end int) *track.File {
	switch item.Level {
	case selection.LevelFile:
		return f.Crop(start, end)

	case selection.LevelTrack:
		if item.TrackIdx < 0 || item.TrackIdx >= len(f.Tracks) {
			return f
		}
		// Translate the track-local range to the file-global range.
		offset := 0
		for i := 0; i < item.TrackIdx; i++ {
			offset += f.Tracks[i].PointCount()
		}
		n := f.Tracks[item.TrackIdx].PointCount()
		return cropWindow(f, offset, n, start, end)

	case selection.LevelSegment:
		if item.TrackIdx < 0 || item.TrackIdx >= len(f.Tracks) {
			return f
		}
		tr := f.Tracks[item.TrackIdx]
		if item.SegmentIdx < 0 || item.SegmentIdx >= len(tr.Segments) {
			return f
		}
		offset := 0
		for i := 0; i < item.TrackIdx; i++ {
			offset += f.Tracks[i].PointCount()
		}
		for i := 0; i < item.SegmentIdx; i++ {
			offset += len(tr.Segments[i].Points)
		}
		n := len(tr.Segments[item.SegmentIdx].Points)
		return cropWindow(f, offset, n, start, end)

	default:
		return f
	}
}

// cropWindow crops a file to "everything outside the entity window, plus
// [start, end] within it". The entity occupies global indices
// [offset, offset+n).
func cropWindow(f *track.File, offset, n, start, end int) *track.File {
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}

	total := f.PointCount()
	keep := make([]bool, total)
	for i := 0; i < total; i++ {
		inEntity := i >= offset && i < offset+n
		if !inEntity || (i-offset >= start && i-offset <= end) {
			keep[i] = true
		}
	}
	return filterPoints(f, func(globalIdx int, _ track.Point) bool { return keep[globalIdx] })
}

// filterPoints rebuilds the file keeping only points the predicate accepts,
// dropping emptied segments and tracks. Returns nil when no point survives.
func filterPoints(f *track.File, keep func(globalIdx int, p track.Point) bool) *track.File {
	out := f.Clone()
	idx := 0

	var tracks []track.Track
	for _, tr := range out.Tracks {
		var segs []track.Segment
		for _, seg := range tr.Segments {
			var pts []track.Point
			for _, p := range seg.Points {
				if keep(idx, p) {
					pts = append(pts, p)
				}
				idx++
			}
			if len(pts) == 0 {
				continue
			}
			seg.Points = pts
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

// DeleteSelection removes the selected items at whatever level they sit.
// A document stripped of all content is deleted outright.
func (e *Engine) DeleteSelection(sel selection.Provider) error {
	if e.selectionEmpty(sel) {
		return nil
	}
	err := e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		verr := sel.Traverse(false, func(docID string, level selection.Level, items []selection.Item) error {
			f, ok := out[docID]
			if !ok {
				return nil
			}

			switch level {
			case selection.LevelFile:
				delete(out, docID)
				return nil

			case selection.LevelTrack:
				c := f.Clone()
				for _, i := range descIndices(items, func(it selection.Item) int { return it.TrackIdx }) {
					if i >= 0 && i < len(c.Tracks) {
						c.Tracks = track.ReplaceRange(c.Tracks, i, i, nil)
					}
				}
				out[docID] = c

			case selection.LevelSegment:
				c := f.Clone()
				// Group per track, deleting higher segment indices first.
				byTrack := map[int][]int{}
				for _, it := range items {
					byTrack[it.TrackIdx] = append(byTrack[it.TrackIdx], it.SegmentIdx)
				}
				for ti, segIdxs := range byTrack {
					if ti < 0 || ti >= len(c.Tracks) {
						continue
					}
					sort.Sort(sort.Reverse(sort.IntSlice(segIdxs)))
					for _, si := range segIdxs {
						if si >= 0 && si < len(c.Tracks[ti].Segments) {
							c.Tracks[ti].Segments = track.ReplaceRange(c.Tracks[ti].Segments, si, si, nil)
						}
					}
				}
				// Tracks emptied by segment deletion go too.
				c.Tracks = compactTracks(c.Tracks)
				out[docID] = c

			case selection.LevelWaypoint:
				c := f.Clone()
				for _, i := range descIndices(items, func(it selection.Item) int { return it.WaypointIdx }) {
					if i >= 0 && i < len(c.Waypoints) {
						c.Waypoints = track.ReplaceRange(c.Waypoints, i, i, nil)
					}
				}
				out[docID] = c

			case selection.LevelAllWaypoints:
				c := f.Clone()
				c.Waypoints = nil
				out[docID] = c
			}

			if cur, ok := out[docID]; ok && cur.IsEmpty() {
				delete(out, docID)
			}
			return nil
		})
		return out, verr
	})
	if err != nil {
		return err
	}
	e.pruneSelection(sel)
	return nil
}

func descIndices(items []selection.Item, pick func(selection.Item) int) []int {
	idxs := make([]int, 0, len(items))
	for _, it := range items {
		idxs = append(idxs, pick(it))
	}
	sort.Sort(sort.Reverse(sort.IntSlice(idxs)))
	return idxs
}

func compactTracks(tracks []track.Track) []track.Track {
	var out []track.Track
	for _, tr := range tracks {
		if len(tr.Segments) > 0 {
			out = append(out, tr)
		}
	}
	return out
}

// ReverseSelection reverses point order within each selected scope.
func (e *Engine) ReverseSelection(sel selection.Provider) error {
	if e.selectionEmpty(sel) {
		return nil
	}
	return e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		verr := sel.Traverse(false, func(docID string, level selection.Level, items []selection.Item) error {
			f, ok := out[docID]
			if !ok {
				return nil
			}
			for _, item := range items {
				switch item.Level {
				case selection.LevelFile:
					f = f.Reverse()
				case selection.LevelTrack:
					if item.TrackIdx < 0 || item.TrackIdx >= len(f.Tracks) {
						continue
					}
					c := f.Clone()
					c.Tracks[item.TrackIdx] = c.Tracks[item.TrackIdx].Reverse()
					f = c
				case selection.LevelSegment:
					if item.TrackIdx < 0 || item.TrackIdx >= len(f.Tracks) ||
						item.SegmentIdx < 0 || item.SegmentIdx >= len(f.Tracks[item.TrackIdx].Segments) {
						continue
					}
					c := f.Clone()
					c.Tracks[item.TrackIdx].Segments[item.SegmentIdx] =
						c.Tracks[item.TrackIdx].Segments[item.SegmentIdx].Reverse()
					f = c
				}
				out[docID] = f
			}
			return nil
		})
		return out, verr
	})
}

// SetStyleSelection restyles the selected files and tracks.
func (e *Engine) SetStyleSelection(sel selection.Provider, style track.Style) error {
	if e.selectionEmpty(sel) {
		return nil
	}
	return e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		verr := sel.Traverse(false, func(docID string, level selection.Level, items []selection.Item) error {
			f, ok := out[docID]
			if !ok {
				return nil
			}
			switch level {
			case selection.LevelFile:
				out[docID] = f.SetStyle(style, nil)
			case selection.LevelTrack:
				var idxs []int
				for _, it := range items {
					idxs = append(idxs, it.TrackIdx)
				}
				out[docID] = f.SetStyle(style, idxs)
			}
			return nil
		})
		return out, verr
	})
}

// SetHiddenSelection toggles visibility for the selected items. Selecting
// every child of a parent collapses to setting the parent's flag, so
// visibility propagates by omission rather than by writing every child.
func (e *Engine) SetHiddenSelection(sel selection.Provider, hidden bool) error {
	if e.selectionEmpty(sel) {
		return nil
	}
	return e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		verr := sel.Traverse(false, func(docID string, level selection.Level, items []selection.Item) error {
			f, ok := out[docID]
			if !ok {
				return nil
			}
			switch level {
			case selection.LevelFile:
				out[docID] = f.SetHidden(hidden, nil)

			case selection.LevelTrack:
				idxs := uniqueInRange(items, len(f.Tracks), func(it selection.Item) int { return it.TrackIdx })
				switch {
				case len(idxs) == 0:
					// Stale selection, leave the file alone.
				case len(idxs) == len(f.Tracks):
					out[docID] = f.SetHidden(hidden, nil)
				default:
					out[docID] = f.SetHidden(hidden, idxs)
				}

			case selection.LevelSegment:
				byTrack := map[int][]selection.Item{}
				for _, it := range items {
					byTrack[it.TrackIdx] = append(byTrack[it.TrackIdx], it)
				}
				for ti, segItems := range byTrack {
					if ti < 0 || ti >= len(f.Tracks) {
						continue
					}
					idxs := uniqueInRange(segItems, len(f.Tracks[ti].Segments),
						func(it selection.Item) int { return it.SegmentIdx })
					switch {
					case len(idxs) == 0:
					case len(idxs) == len(f.Tracks[ti].Segments):
						// All segments selected collapses to the track flag.
						f = f.SetHidden(hidden, []int{ti})
					default:
						for _, si := range idxs {
							f = f.SetSegmentHidden(hidden, ti, si)
						}
					}
				}
				out[docID] = f

			case selection.LevelWaypoint:
				idxs := uniqueInRange(items, len(f.Waypoints), func(it selection.Item) int { return it.WaypointIdx })
				switch {
				case len(idxs) == 0:
				case len(idxs) == len(f.Waypoints):
					out[docID] = f.SetWaypointsHidden(hidden, nil)
				default:
					out[docID] = f.SetWaypointsHidden(hidden, idxs)
				}

			case selection.LevelAllWaypoints:
				out[docID] = f.SetWaypointsHidden(hidden, nil)
			}
			return nil
		})
		return out, verr
	})
}

func uniqueInRange(items []selection.Item, n int, pick func(selection.Item) int) []int {
	seen := map[int]struct{}{}
	var idxs []int
	for _, it := range items {
		i := pick(it)
		if i < 0 || i >= n {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		idxs = append(idxs, i)
	}
	return idxs
}

// CleanOptions configures Clean.
type CleanOptions struct {
	Bounds geo.Bounds
	// Inside deletes points inside the bounds; otherwise outside.
	Inside bool
	// Tracks cleans trackpoints.
	Tracks bool
	// Waypoints cleans waypoints; leave false to spare them.
	Waypoints bool
}

// Clean deletes points and waypoints of the selected documents inside (or
// outside) the given bounds. Documents stripped of all content are deleted.
func (e *Engine) Clean(sel selection.Provider, opts CleanOptions) error {
	if e.selectionEmpty(sel) {
		return nil
	}
	doomed := func(c geo.Coord) bool {
		return opts.Bounds.Contains(c) == opts.Inside
	}

	err := e.transact(func(s patch.State) (patch.State, error) {
		out := s.Clone()
		verr := sel.Traverse(false, func(docID string, _ selection.Level, _ []selection.Item) error {
			f, ok := out[docID]
			if !ok {
				return nil
			}

			if opts.Tracks {
				f = filterPoints(f, func(_ int, p track.Point) bool { return !doomed(p.Coord) })
			}
			if f != nil && opts.Waypoints {
				c := f.Clone()
				var kept []track.Waypoint
				for _, wp := range c.Waypoints {
					if !doomed(wp.Coord) {
						kept = append(kept, wp)
					}
				}
				c.Waypoints = kept
				f = c
			}

			if f == nil || f.IsEmpty() {
				delete(out, docID)
			} else {
				out[docID] = f
			}
			return nil
		})
		return out, verr
	})
	if err != nil {
		return err
	}
	e.pruneSelection(sel)
	return nil
}

// Reduce splices an externally simplified point sequence into one segment,
// replacing its points wholesale. The simplification itself is a
// collaborator concern; see the reducer plugin. Stale indices are a silent
// no-op.
func (e *Engine) Reduce(docID string, trackIdx, segIdx int, points []track.Point) error {
	return e.transact(func(s patch.State) (patch.State, error) {
		f, ok := s[docID]
		if !ok || trackIdx < 0 || trackIdx >= len(f.Tracks) ||
			segIdx < 0 || segIdx >= len(f.Tracks[trackIdx].Segments) {
			return s, nil
		}

		out := s.Clone()
		c := f.Clone()
		seg := &c.Tracks[trackIdx].Segments[segIdx]
		seg.Points = track.ReplaceRange(seg.Points, 0, len(seg.Points)-1, points)

		if len(seg.Points) == 0 {
			c.Tracks[trackIdx].Segments = track.ReplaceRange(c.Tracks[trackIdx].Segments, segIdx, segIdx, nil)
			c.Tracks = compactTracks(c.Tracks)
		}
		if c.IsEmpty() {
			delete(out, docID)
		} else {
			out[docID] = c
		}
		return out, nil
	})
}
