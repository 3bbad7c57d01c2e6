// Package store defines the persistent log store contract: keyed snapshots
// of current documents, an append-only patch log addressed by a contiguous
// integer range, and a single movable cursor.
//
// All writes issued by one transaction are grouped into a Batch and applied
// as a unit, so a reader never observes snapshots updated without the
// matching log entry or a cursor pointing past the log. Two substrates are
// provided: Mem for tests and ephemeral sessions, and FileStore for
// JSON-file persistence across reloads.
package store

import (
	"errors"

	"github.com/dshills/trackdeck/internal/patch"
	"github.com/dshills/trackdeck/internal/track"
)

// ErrNotFound is returned when a snapshot or log entry key does not exist.
var ErrNotFound = errors.New("store: key not found")

// NoCursor is the cursor value of a store with no history.
const NoCursor = -1

// Entry is one persisted patch log record, stored under key Index.
type Entry struct {
	Index   int
	Forward patch.Patch
	Inverse patch.Patch
}

// Range is the half-open key range [Min, Max) currently held by the log.
type Range struct {
	Min, Max int
}

// IsEmpty reports whether the log holds no entries.
func (r Range) IsEmpty() bool { return r.Min >= r.Max }

// Len returns the number of entries in the range.
func (r Range) Len() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Max - r.Min
}

// Batch accumulates the writes of one transaction. Zero value is usable.
type Batch struct {
	putDocs    []*track.File
	deleteDocs []string
	appends    []Entry
	deletes    []Range
	cursor     *int
}

// PutSnapshots stages current-document snapshots for writing.
func (b *Batch) PutSnapshots(files ...*track.File) {
	b.putDocs = append(b.putDocs, files...)
}

// DeleteSnapshots stages snapshot deletions.
func (b *Batch) DeleteSnapshots(ids ...string) {
	b.deleteDocs = append(b.deleteDocs, ids...)
}

// AppendLogEntry stages a patch log append at e.Index.
func (b *Batch) AppendLogEntry(e Entry) {
	b.appends = append(b.appends, e)
}

// DeleteLogEntries stages deletion of every log entry in r.
func (b *Batch) DeleteLogEntries(r Range) {
	if !r.IsEmpty() {
		b.deletes = append(b.deletes, r)
	}
}

// WriteCursor stages a cursor update.
func (b *Batch) WriteCursor(cursor int) {
	c := cursor
	b.cursor = &c
}

// IsEmpty reports whether the batch stages no writes.
func (b *Batch) IsEmpty() bool {
	return len(b.putDocs) == 0 && len(b.deleteDocs) == 0 &&
		len(b.appends) == 0 && len(b.deletes) == 0 && b.cursor == nil
}

// Store is the persistence substrate consumed by the history controller and
// the engine. Apply commits a batch as a group; the read methods serve
// session recovery.
type Store interface {
	// Apply commits all writes in the batch as one group.
	Apply(b *Batch) error

	// Snapshots returns all current document snapshots keyed by id.
	Snapshots() (map[string]*track.File, error)

	// LogEntry returns the entry stored under index.
	LogEntry(index int) (Entry, error)

	// RangeKeys returns the current [min, max) bounds of the log.
	RangeKeys() (Range, error)

	// ReadCursor returns the persisted cursor, NoCursor for a store that
	// never committed.
	ReadCursor() (int, error)
}
