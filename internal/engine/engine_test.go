package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/dshills/trackdeck/internal/config"
	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/selection"
	"github.com/dshills/trackdeck/internal/store"
	"github.com/dshills/trackdeck/internal/track"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(store.NewMem(), config.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// testFile builds a one-track, one-segment file whose points run east along
// the equator, one per 0.001 degrees of longitude, timestamped a minute
// apart.
func testFile(name string, points int) *track.File {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	seg := track.Segment{}
	for i := 0; i < points; i++ {
		seg.Points = append(seg.Points, track.Point{
			Coord:     geo.Coord{Lat: 0, Lon: float64(i) * 0.001},
			Elevation: float64(i),
			Time:      base.Add(time.Duration(i) * time.Minute),
		})
	}
	return &track.File{
		Name:   name,
		Tracks: []track.Track{{Name: name, Segments: []track.Segment{seg}, Style: track.DefaultStyle()}},
	}
}

func mustAdd(t *testing.T, e *Engine, files ...*track.File) []string {
	t.Helper()
	ids, err := e.AddMultiple(files)
	if err != nil {
		t.Fatalf("AddMultiple: %v", err)
	}
	if len(ids) != len(files) {
		t.Fatalf("AddMultiple returned %d ids, want %d", len(ids), len(files))
	}
	return ids
}

func wantDocs(t *testing.T, e *Engine, want ...string) {
	t.Helper()
	got := e.DocumentIDs()
	if len(got) != len(want) {
		t.Fatalf("documents = %v, want %v", got, want)
	}
	seen := map[string]bool{}
	for _, id := range got {
		seen[id] = true
	}
	for _, id := range want {
		if !seen[id] {
			t.Fatalf("documents = %v, want %v", got, want)
		}
	}
}

func TestAddCropUndoRedo(t *testing.T) {
	e := newTestEngine(t)
	ids := mustAdd(t, e, testFile("a", 4), testFile("b", 4))
	a, b := ids[0], ids[1]

	original, _ := e.Document(a)

	// Crop file a to a range past its last point: nothing survives and the
	// document disappears.
	sel := selection.NewSet(selection.File(a))
	if err := e.CropSelection(sel, 100, 200); err != nil {
		t.Fatalf("CropSelection: %v", err)
	}
	wantDocs(t, e, b)
	if sel.Len() != 0 {
		t.Fatalf("selection not pruned after crop-delete: %d items", sel.Len())
	}

	if err := e.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	wantDocs(t, e, a, b)
	restored, _ := e.Document(a)
	if !restored.Equal(original) {
		t.Fatal("undo did not restore the cropped document")
	}

	if err := e.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	wantDocs(t, e, b)
}

func TestUndoDepthMatchesCommits(t *testing.T) {
	e := newTestEngine(t)
	ids := mustAdd(t, e, testFile("a", 2))

	const extra = 5
	for i := 0; i < extra; i++ {
		if err := e.Rename(ids[0], fmt.Sprintf("name-%d", i)); err != nil {
			t.Fatalf("Rename: %v", err)
		}
	}

	// extra renames plus the initial add.
	for i := 0; i < extra+1; i++ {
		if !e.CanUndo() {
			t.Fatalf("CanUndo false after %d undos, want %d available", i, extra+1)
		}
		if err := e.Undo(); err != nil {
			t.Fatalf("Undo %d: %v", i, err)
		}
	}
	if e.CanUndo() {
		t.Fatal("CanUndo true past the oldest entry")
	}
	if err := e.Undo(); err != nil {
		t.Fatalf("Undo past the end should be a no-op, got %v", err)
	}
	wantDocs(t, e)

	// Every redo lands back on the exact committed value.
	for i := 0; i < extra+1; i++ {
		if err := e.Redo(); err != nil {
			t.Fatalf("Redo %d: %v", i, err)
		}
	}
	f, ok := e.Document(ids[0])
	if !ok || f.Name != fmt.Sprintf("name-%d", extra-1) {
		t.Fatalf("redo chain ended on %+v, want name-%d", f, extra-1)
	}
	if e.CanRedo() {
		t.Fatal("CanRedo true past the newest entry")
	}
}

func TestCommitTruncatesRedoTail(t *testing.T) {
	e := newTestEngine(t)
	ids := mustAdd(t, e, testFile("a", 2))

	if err := e.Rename(ids[0], "first"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := e.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if !e.CanRedo() {
		t.Fatal("CanRedo false right after undo")
	}

	if err := e.Rename(ids[0], "second"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if e.CanRedo() {
		t.Fatal("redo tail survived a new commit")
	}
	f, _ := e.Document(ids[0])
	if f.Name != "second" {
		t.Fatalf("name = %q, want %q", f.Name, "second")
	}
}

func TestHistoryBounded(t *testing.T) {
	cfg := config.Default()
	cfg.MaxPatches = 5
	e, err := Open(store.NewMem(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	ids := mustAdd(t, e, testFile("a", 2))
	for i := 0; i < 7; i++ {
		if err := e.Rename(ids[0], fmt.Sprintf("name-%d", i)); err != nil {
			t.Fatalf("Rename: %v", err)
		}
	}

	// 8 commits total, capped at 5 retained.
	undone := 0
	for e.CanUndo() {
		if err := e.Undo(); err != nil {
			t.Fatalf("Undo: %v", err)
		}
		undone++
	}
	if undone != cfg.MaxPatches {
		t.Fatalf("undone %d entries, want %d", undone, cfg.MaxPatches)
	}
	// The oldest surviving inverse lands on the state after the pruned
	// prefix, not on the empty state.
	f, ok := e.Document(ids[0])
	if !ok {
		t.Fatal("document lost after bounded undo")
	}
	if f.Name != "name-1" {
		t.Fatalf("name after full undo = %q, want %q", f.Name, "name-1")
	}
}

func TestReloadRestoresSessionFromDisk(t *testing.T) {
	dir := t.TempDir()

	st, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	e, err := Open(st, config.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ids := mustAdd(t, e, testFile("a", 3))
	if err := e.Rename(ids[0], "renamed"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := e.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore reopen: %v", err)
	}
	e2, err := Open(st2, config.Default())
	if err != nil {
		t.Fatalf("Open reopen: %v", err)
	}
	defer e2.Close()

	f, ok := e2.Document(ids[0])
	if !ok {
		t.Fatal("document missing after reload")
	}
	if f.Name != "a" {
		t.Fatalf("name after reload = %q, want %q", f.Name, "a")
	}
	// The cursor survived: the rename sits ahead of it.
	if !e2.CanRedo() {
		t.Fatal("CanRedo false after reload, redo tail lost")
	}
	if err := e2.Redo(); err != nil {
		t.Fatalf("Redo after reload: %v", err)
	}
	f, _ = e2.Document(ids[0])
	if f.Name != "renamed" {
		t.Fatalf("name after reload+redo = %q, want %q", f.Name, "renamed")
	}
	if !e2.CanUndo() {
		t.Fatal("CanUndo false after reload")
	}
}

func TestSubscribersSeeCommitsAndDeletes(t *testing.T) {
	e := newTestEngine(t)

	type event struct {
		docID   string
		deleted bool
	}
	var events []event
	cancel := e.Subscribe(func(docID string, view *View) {
		events = append(events, event{docID, view == nil})
	})

	ids := mustAdd(t, e, testFile("a", 2))
	if err := e.Delete(ids[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []event{{ids[0], false}, {ids[0], true}}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %v, want %v", i, events[i], want[i])
		}
	}

	cancel()
	mustAdd(t, e, testFile("b", 2))
	if len(events) != len(want) {
		t.Fatal("subscriber notified after cancel")
	}
}

func TestAggregateSkipsStaleItems(t *testing.T) {
	e := newTestEngine(t)
	ids := mustAdd(t, e, testFile("a", 5))

	whole := e.Aggregate([]selection.Item{selection.File(ids[0])})
	if whole.PointCount != 5 {
		t.Fatalf("PointCount = %d, want 5", whole.PointCount)
	}
	if whole.Distance <= 0 {
		t.Fatalf("Distance = %v, want > 0", whole.Distance)
	}

	stale := e.Aggregate([]selection.Item{
		selection.TrackItem(ids[0], 7),
		selection.File("no-such-doc"),
	})
	if stale.PointCount != 0 || stale.Distance != 0 {
		t.Fatalf("stale aggregate = %+v, want zero", stale)
	}

	mixed := e.Aggregate([]selection.Item{
		selection.File(ids[0]),
		selection.File("no-such-doc"),
	})
	if mixed.PointCount != 5 {
		t.Fatalf("mixed PointCount = %d, want 5", mixed.PointCount)
	}
}

func TestIdentityEditCommitsNothing(t *testing.T) {
	e := newTestEngine(t)
	ids := mustAdd(t, e, testFile("a", 2))

	if err := e.Rename("missing", "x"); err != nil {
		t.Fatalf("Rename missing doc: %v", err)
	}
	if err := e.ReverseSelection(selection.NewSet(selection.TrackItem(ids[0], 42))); err != nil {
		t.Fatalf("ReverseSelection stale index: %v", err)
	}

	// Only the add is undoable.
	if err := e.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if e.CanUndo() {
		t.Fatal("no-op edits entered the history")
	}
}

// slowStore delays every durable write, exposing paths that depend on the
// background writer having already landed a batch.
type slowStore struct {
	store.Store
	delay time.Duration
}

func (s *slowStore) Apply(b *store.Batch) error {
	time.Sleep(s.delay)
	return s.Store.Apply(b)
}

// failStore drops every durable write.
type failStore struct {
	store.Store
}

func (s *failStore) Apply(b *store.Batch) error {
	return fmt.Errorf("apply rejected")
}

func TestUndoImmediatelyAfterCommit(t *testing.T) {
	st := &slowStore{Store: store.NewMem(), delay: 200 * time.Millisecond}
	e, err := Open(st, config.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	ids := mustAdd(t, e, testFile("a", 3))

	// The durable write is still in flight; undo must not depend on it.
	if err := e.Undo(); err != nil {
		t.Fatalf("Undo right after commit: %v", err)
	}
	wantDocs(t, e)
	if err := e.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	wantDocs(t, e, ids[0])
}

func TestUndoSurvivesFailedDurableWrite(t *testing.T) {
	e, err := Open(&failStore{Store: store.NewMem()}, config.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	ids := mustAdd(t, e, testFile("a", 3))
	if err := e.Rename(ids[0], "renamed"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	e.Flush()

	// Every durable write was dropped, but the in-memory session stays
	// authoritative: the full history remains walkable.
	if !e.CanUndo() {
		t.Fatal("CanUndo false after dropped writes")
	}
	if err := e.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	f, _ := e.Document(ids[0])
	if f.Name != "a" {
		t.Fatalf("name after undo = %q, want %q", f.Name, "a")
	}
	if err := e.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	wantDocs(t, e)
	if err := e.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	wantDocs(t, e, ids[0])
}
