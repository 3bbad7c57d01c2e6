// Package history owns the undo/redo cursor over the persisted patch log.
//
// The controller is a pure state machine over the log range [min, max) and
// the cursor, with the invariant min-1 <= cursor <= max-1. It never applies
// patches and never touches the store directly: every mutation stages its
// log and cursor writes into a store.Batch supplied by the caller, so one
// transaction's pointer update, log append and pruning commit as a single
// grouped write.
package history

import (
	"errors"
	"fmt"

	"github.com/dshills/trackdeck/internal/patch"
	"github.com/dshills/trackdeck/internal/store"
)

// DefaultMaxPatches is the bounded-retention limit on retained log entries.
const DefaultMaxPatches = 100

// Errors reported by the controller.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrCorruptCursor = errors.New("cursor outside log range")
)

// Controller tracks the undo/redo position within the append-only patch log.
type Controller struct {
	rng        store.Range
	cursor     int
	maxPatches int
}

// New returns a controller for an empty session.
func New(maxPatches int) *Controller {
	if maxPatches <= 0 {
		maxPatches = DefaultMaxPatches
	}
	return &Controller{cursor: store.NoCursor, maxPatches: maxPatches}
}

// Restore rebuilds a controller from persisted log bounds and cursor,
// validating the cursor invariant.
func Restore(rng store.Range, cursor, maxPatches int) (*Controller, error) {
	if maxPatches <= 0 {
		maxPatches = DefaultMaxPatches
	}
	if rng.IsEmpty() {
		return &Controller{cursor: rng.Min - 1, maxPatches: maxPatches, rng: store.Range{Min: rng.Min, Max: rng.Min}}, nil
	}
	if cursor < rng.Min-1 || cursor > rng.Max-1 {
		return nil, fmt.Errorf("%w: cursor %d, log [%d,%d)", ErrCorruptCursor, cursor, rng.Min, rng.Max)
	}
	return &Controller{rng: rng, cursor: cursor, maxPatches: maxPatches}, nil
}

// Cursor returns the current cursor value.
func (c *Controller) Cursor() int { return c.cursor }

// Range returns the current log bounds [min, max).
func (c *Controller) Range() store.Range { return c.rng }

// Len returns the number of retained log entries.
func (c *Controller) Len() int { return c.rng.Len() }

// MaxPatches returns the retention limit.
func (c *Controller) MaxPatches() int { return c.maxPatches }

// CanUndo reports whether an entry is available behind the cursor.
func (c *Controller) CanUndo() bool {
	return !c.rng.IsEmpty() && c.cursor >= c.rng.Min
}

// CanRedo reports whether an entry is available ahead of the cursor.
func (c *Controller) CanRedo() bool {
	return !c.rng.IsEmpty() && c.cursor < c.rng.Max-1
}

// UndoIndex returns the log index holding the entry to undo.
func (c *Controller) UndoIndex() (int, error) {
	if !c.CanUndo() {
		return 0, ErrNothingToUndo
	}
	return c.cursor, nil
}

// RedoIndex returns the log index holding the entry to redo.
func (c *Controller) RedoIndex() (int, error) {
	if !c.CanRedo() {
		return 0, ErrNothingToRedo
	}
	return c.cursor + 1, nil
}

// CommitAppend records a new transaction: any retained entries past the
// cursor are discarded (linear, non-branching history), the lowest entries
// are pruned if the log would exceed the retention limit, the new entry is
// appended at cursor+1 and the cursor advances onto it. All writes are
// staged into b. Returns the appended entry.
func (c *Controller) CommitAppend(forward, inverse patch.Patch, b *store.Batch) store.Entry {
	// Stale redo tail.
	if c.cursor < c.rng.Max-1 {
		b.DeleteLogEntries(store.Range{Min: c.cursor + 1, Max: c.rng.Max})
		c.rng.Max = c.cursor + 1
	}
	if c.rng.IsEmpty() {
		// Everything was undone and is now discarded; restart the range at
		// the append position.
		c.rng = store.Range{Min: c.cursor + 1, Max: c.cursor + 1}
	}

	entry := store.Entry{Index: c.cursor + 1, Forward: forward, Inverse: inverse}
	b.AppendLogEntry(entry)
	c.rng.Max = entry.Index + 1
	c.cursor = entry.Index

	if over := c.rng.Len() - c.maxPatches; over > 0 {
		b.DeleteLogEntries(store.Range{Min: c.rng.Min, Max: c.rng.Min + over})
		c.rng.Min += over
	}

	b.WriteCursor(c.cursor)
	return entry
}

// CommitUndo moves the cursor back one entry and stages the cursor write.
// The caller has already applied the entry's inverse patch.
func (c *Controller) CommitUndo(b *store.Batch) {
	c.cursor--
	b.WriteCursor(c.cursor)
}

// CommitRedo moves the cursor forward one entry and stages the cursor write.
func (c *Controller) CommitRedo(b *store.Batch) {
	c.cursor++
	b.WriteCursor(c.cursor)
}
