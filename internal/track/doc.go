// Package track defines the immutable document model for GPS track
// collections.
//
// A File holds ordered Tracks and Waypoints; a Track holds ordered Segments;
// a Segment holds ordered Points. Track, Segment and Waypoint identity is
// positional: indices are dense (0..n-1) and reindex implicitly whenever a
// sibling is inserted or removed.
//
// Committed snapshots are never mutated. Every structural edit runs on a
// deep Clone of the file and produces a new value; the engine swaps whole
// files in and out of the document state under a transaction. The edit
// primitives in this package (ReplaceRange, Crop, Reverse, the attribute
// setters) therefore mutate only the working copy they are called on.
package track
