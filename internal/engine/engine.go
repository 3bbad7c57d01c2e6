package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/golang/glog"

	"github.com/dshills/trackdeck/internal/config"
	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/history"
	"github.com/dshills/trackdeck/internal/patch"
	"github.com/dshills/trackdeck/internal/selection"
	"github.com/dshills/trackdeck/internal/stats"
	"github.com/dshills/trackdeck/internal/store"
	"github.com/dshills/trackdeck/internal/track"
)

// ErrClosed is returned by mutation entry points after Close.
var ErrClosed = errors.New("engine is closed")

// View is the read-only per-document surface exposed to subscribers.
// The file and tree are committed snapshots; callers must not mutate them.
type View struct {
	File  *track.File
	Stats *stats.Tree
}

// Subscriber receives the new view of a document after every commit that
// touches it. view is nil when the document was deleted. Handlers run
// synchronously inside the commit and must not call back into mutating
// engine methods.
type Subscriber func(docID string, view *View)

type writeReq struct {
	batch *store.Batch
	done  chan struct{}
}

// Engine is the document state engine.
type Engine struct {
	mu sync.Mutex

	st    store.Store
	ctrl  *history.Controller
	cfg   config.Config
	state patch.State
	trees map[string]*stats.Tree

	// log mirrors the retained patch-log entries. Undo and redo read from
	// here; the store copy is written asynchronously and only consulted on
	// reload.
	log map[int]store.Entry

	subs    map[int]Subscriber
	nextSub int

	writes chan writeReq
	wg     sync.WaitGroup
	closed bool
}

// Open builds an engine over st, recovering any persisted session: current
// snapshots, patch log bounds and cursor all survive a reload.
func Open(st store.Store, cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	docs, err := st.Snapshots()
	if err != nil {
		return nil, fmt.Errorf("recover snapshots: %w", err)
	}
	rng, err := st.RangeKeys()
	if err != nil {
		return nil, fmt.Errorf("recover log range: %w", err)
	}
	cursor, err := st.ReadCursor()
	if err != nil {
		return nil, fmt.Errorf("recover cursor: %w", err)
	}
	ctrl, err := history.Restore(rng, cursor, cfg.MaxPatches)
	if err != nil {
		return nil, err
	}

	log := make(map[int]store.Entry, rng.Len())
	for i := rng.Min; i < rng.Max; i++ {
		entry, err := st.LogEntry(i)
		if err != nil {
			return nil, fmt.Errorf("recover log entry %d: %w", i, err)
		}
		log[i] = entry
	}

	e := &Engine{
		st:     st,
		ctrl:   ctrl,
		cfg:    cfg,
		state:  docs,
		trees:  make(map[string]*stats.Tree, len(docs)),
		log:    log,
		subs:   make(map[int]Subscriber),
		writes: make(chan writeReq, 64),
	}
	for id, f := range docs {
		e.trees[id] = stats.Build(f, cfg.MovingThreshold)
	}

	e.wg.Add(1)
	go e.writer()
	return e, nil
}

// writer applies committed batches to the store in commit order. A failed
// write is retried once, then logged; in-memory state stays authoritative.
func (e *Engine) writer() {
	defer e.wg.Done()
	for req := range e.writes {
		if req.batch != nil {
			if err := e.st.Apply(req.batch); err != nil {
				if err = e.st.Apply(req.batch); err != nil {
					glog.Warningf("durable write failed after retry, edit not persisted: %v", err)
				}
			}
		}
		if req.done != nil {
			close(req.done)
		}
	}
}

// Close flushes pending durable writes and stops the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.writes)
	e.wg.Wait()
	return nil
}

// Flush blocks until every durable write issued so far has been attempted.
func (e *Engine) Flush() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	req := writeReq{done: make(chan struct{})}
	e.writes <- req
	e.mu.Unlock()

	<-req.done
}

// CanUndo reports whether an undo is available.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.CanUndo()
}

// CanRedo reports whether a redo is available.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.CanRedo()
}

// DocumentIDs returns the ids of all committed documents, sorted.
func (e *Engine) DocumentIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.state))
}

// Document returns the committed snapshot of one document.
func (e *Engine) Document(id string) (*track.File, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.state[id]
	return f, ok
}

// View returns the read-only view of one document.
func (e *Engine) View(id string) (*View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.state[id]
	if !ok {
		return nil, false
	}
	return &View{File: f, Stats: e.trees[id]}, true
}

// Subscribe registers fn for per-document view updates. The returned cancel
// function removes the subscription.
func (e *Engine) Subscribe(fn Subscriber) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Aggregate merges the statistics for an arbitrary hierarchical selection.
// Merge order across sibling documents is irrelevant; stale items aggregate
// to zero.
func (e *Engine) Aggregate(items []selection.Item) stats.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := stats.Metrics{Bounds: geo.EmptyBounds()}
	for _, item := range items {
		tree, ok := e.trees[item.DocID]
		if !ok {
			continue
		}
		total = stats.Merge(total, tree.AggregateFor(item))
	}
	return total
}

// Undo applies the inverse patch of the entry at the cursor and moves the
// cursor back. A no-op when nothing can be undone.
func (e *Engine) Undo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	idx, err := e.ctrl.UndoIndex()
	if errors.Is(err, history.ErrNothingToUndo) {
		return nil
	}

	entry, ok := e.log[idx]
	if !ok {
		return fmt.Errorf("log entry %d missing: %w", idx, history.ErrCorruptCursor)
	}

	next, err := patch.Apply(e.state, entry.Inverse)
	if err != nil {
		return err
	}

	var b store.Batch
	e.ctrl.CommitUndo(&b)
	e.commit(next, entry.Inverse, &b)
	return nil
}

// Redo re-applies the forward patch of the entry past the cursor. A no-op
// when nothing can be redone.
func (e *Engine) Redo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	idx, err := e.ctrl.RedoIndex()
	if errors.Is(err, history.ErrNothingToRedo) {
		return nil
	}

	entry, ok := e.log[idx]
	if !ok {
		return fmt.Errorf("log entry %d missing: %w", idx, history.ErrCorruptCursor)
	}

	next, err := patch.Apply(e.state, entry.Forward)
	if err != nil {
		return err
	}

	var b store.Batch
	e.ctrl.CommitRedo(&b)
	e.commit(next, entry.Forward, &b)
	return nil
}

// transact runs fn against the committed state and commits the result as a
// new history entry. fn must derive its result by cloning; the committed
// snapshots are never mutated. An identity result commits nothing.
func (e *Engine) transact(fn func(s patch.State) (patch.State, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	before := e.state
	after, err := fn(before)
	if err != nil {
		return err
	}

	forward, inverse := patch.Diff(before, after)
	if forward.IsEmpty() {
		return nil
	}

	var b store.Batch
	entry := e.ctrl.CommitAppend(forward, inverse, &b)
	e.log[entry.Index] = entry
	rng := e.ctrl.Range()
	for idx := range e.log {
		if idx < rng.Min || idx >= rng.Max {
			delete(e.log, idx)
		}
	}
	e.commit(after, forward, &b)
	return nil
}

// commit swaps in the new state, rebuilds statistics for the documents the
// patch touched, notifies subscribers and hands the batch to the writer.
// Called with the engine lock held.
func (e *Engine) commit(next patch.State, p patch.Patch, b *store.Batch) {
	touched := p.DocIDs()
	for _, id := range touched {
		if f, ok := next[id]; ok {
			b.PutSnapshots(f)
		} else {
			b.DeleteSnapshots(id)
		}
	}

	e.state = next
	for _, id := range touched {
		if f, ok := next[id]; ok {
			e.trees[id] = stats.Build(f, e.cfg.MovingThreshold)
		} else {
			delete(e.trees, id)
		}
	}

	for _, fn := range e.subs {
		for _, id := range touched {
			if f, ok := next[id]; ok {
				fn(id, &View{File: f, Stats: e.trees[id]})
			} else {
				fn(id, nil)
			}
		}
	}

	e.writes <- writeReq{batch: b}
}

// pruneSelection drops selection items that no longer resolve against the
// committed state. Called after commits that delete documents or sub-items.
func (e *Engine) pruneSelection(sel selection.Provider) {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	sel.Prune(func(item selection.Item) bool {
		f, ok := state[item.DocID]
		if !ok {
			return false
		}
		switch item.Level {
		case selection.LevelTrack:
			return item.TrackIdx < len(f.Tracks)
		case selection.LevelSegment:
			return item.TrackIdx < len(f.Tracks) &&
				item.SegmentIdx < len(f.Tracks[item.TrackIdx].Segments)
		case selection.LevelWaypoint:
			return item.WaypointIdx < len(f.Waypoints)
		default:
			return true
		}
	})
}
