// Package selection models hierarchical selections over track documents.
//
// A selection item is a tagged variant: an explicit Level plus the indices
// that level needs. The selection itself is owned by the host UI; the engine
// consumes it through the Provider interface as an ordered traversal grouped
// by document and level, and prunes it after commits that delete items.
package selection

import "fmt"

// Level identifies the hierarchy level a selection item targets.
type Level uint8

const (
	LevelFile Level = iota
	LevelTrack
	LevelSegment
	LevelWaypoint
	// LevelAllWaypoints targets a file's entire waypoint bucket.
	LevelAllWaypoints
)

// String returns a human-readable level name.
func (l Level) String() string {
	switch l {
	case LevelFile:
		return "file"
	case LevelTrack:
		return "track"
	case LevelSegment:
		return "segment"
	case LevelWaypoint:
		return "waypoint"
	case LevelAllWaypoints:
		return "waypoints"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// Item references one selected entity. Only the index fields implied by
// Level are meaningful.
type Item struct {
	DocID       string
	Level       Level
	TrackIdx    int // LevelTrack, LevelSegment
	SegmentIdx  int // LevelSegment
	WaypointIdx int // LevelWaypoint
}

// File returns a file-level item.
func File(docID string) Item {
	return Item{DocID: docID, Level: LevelFile}
}

// TrackItem returns a track-level item.
func TrackItem(docID string, trackIdx int) Item {
	return Item{DocID: docID, Level: LevelTrack, TrackIdx: trackIdx}
}

// SegmentItem returns a segment-level item.
func SegmentItem(docID string, trackIdx, segIdx int) Item {
	return Item{DocID: docID, Level: LevelSegment, TrackIdx: trackIdx, SegmentIdx: segIdx}
}

// WaypointItem returns a waypoint-level item.
func WaypointItem(docID string, waypointIdx int) Item {
	return Item{DocID: docID, Level: LevelWaypoint, WaypointIdx: waypointIdx}
}

// AllWaypoints returns an item covering a file's whole waypoint bucket.
func AllWaypoints(docID string) Item {
	return Item{DocID: docID, Level: LevelAllWaypoints}
}

// Visitor receives one document's selected items, grouped by level, in
// selection order.
type Visitor func(docID string, level Level, items []Item) error

// Provider is the engine's view of the externally owned selection.
type Provider interface {
	// Traverse invokes visit once per (document, level) group, in document
	// order, or in reverse document order when reverse is true.
	Traverse(reverse bool, visit Visitor) error

	// IsAnySelected reports whether anything is selected in the given
	// document, optionally restricted to the scope item.
	IsAnySelected(docID string, scope *Item) bool

	// Prune drops items for which keep returns false. Called by the engine
	// after commits that delete documents or sub-items.
	Prune(keep func(Item) bool)
}
