package selection

// Set is a basic ordered Provider implementation. Hosts with their own
// selection widget implement Provider directly; Set serves the CLI and
// tests.
type Set struct {
	items []Item
}

// NewSet returns a Set holding items in the given order.
func NewSet(items ...Item) *Set {
	s := &Set{}
	s.items = append(s.items, items...)
	return s
}

// Add appends an item to the selection.
func (s *Set) Add(item Item) {
	s.items = append(s.items, item)
}

// Items returns the selection in insertion order.
func (s *Set) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of selected items.
func (s *Set) Len() int {
	return len(s.items)
}

// Traverse implements Provider. Items are grouped per (document, level) in
// first-seen order; reverse flips the group order, not the items within a
// group.
func (s *Set) Traverse(reverse bool, visit Visitor) error {
	type groupKey struct {
		docID string
		level Level
	}

	var order []groupKey
	groups := make(map[groupKey][]Item)
	for _, item := range s.items {
		k := groupKey{docID: item.DocID, level: item.Level}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], item)
	}

	if reverse {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	for _, k := range order {
		if err := visit(k.docID, k.level, groups[k]); err != nil {
			return err
		}
	}
	return nil
}

// IsAnySelected implements Provider.
func (s *Set) IsAnySelected(docID string, scope *Item) bool {
	for _, item := range s.items {
		if item.DocID != docID {
			continue
		}
		if scope == nil {
			return true
		}
		if inScope(item, *scope) {
			return true
		}
	}
	return false
}

// Prune implements Provider.
func (s *Set) Prune(keep func(Item) bool) {
	kept := s.items[:0]
	for _, item := range s.items {
		if keep(item) {
			kept = append(kept, item)
		}
	}
	s.items = kept
}

// inScope reports whether item falls under scope in the hierarchy.
func inScope(item, scope Item) bool {
	switch scope.Level {
	case LevelFile:
		return true
	case LevelTrack:
		return (item.Level == LevelTrack || item.Level == LevelSegment) &&
			item.TrackIdx == scope.TrackIdx
	case LevelSegment:
		return item.Level == LevelSegment &&
			item.TrackIdx == scope.TrackIdx && item.SegmentIdx == scope.SegmentIdx
	case LevelWaypoint:
		return item.Level == LevelWaypoint && item.WaypointIdx == scope.WaypointIdx
	case LevelAllWaypoints:
		return item.Level == LevelWaypoint || item.Level == LevelAllWaypoints
	default:
		return false
	}
}
