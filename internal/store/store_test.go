package store

import (
	"errors"
	"testing"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/patch"
	"github.com/dshills/trackdeck/internal/track"
)

func testDoc(id string) *track.File {
	return &track.File{
		ID:   id,
		Name: "doc " + id,
		Tracks: []track.Track{{
			Name:  "t",
			Style: track.DefaultStyle(),
			Segments: []track.Segment{{
				Points: []track.Point{
					{Coord: geo.Coord{Lat: 47, Lon: 8}, Elevation: 500},
					{Coord: geo.Coord{Lat: 47.001, Lon: 8}, Elevation: 510},
				},
			}},
		}},
	}
}

func testEntry(index int) Entry {
	f := testDoc("p")
	return Entry{
		Index:   index,
		Forward: patch.Patch{{Kind: patch.KindPutFile, DocID: "p", File: f}},
		Inverse: patch.Patch{{Kind: patch.KindDeleteFile, DocID: "p"}},
	}
}

// stores returns both substrates so every contract test runs against each.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{"mem": NewMem(), "file": fs}
}

func TestEmptyStore(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			snaps, err := s.Snapshots()
			if err != nil {
				t.Fatal(err)
			}
			if len(snaps) != 0 {
				t.Errorf("snapshots = %d, want 0", len(snaps))
			}

			r, err := s.RangeKeys()
			if err != nil {
				t.Fatal(err)
			}
			if !r.IsEmpty() {
				t.Errorf("range = %+v, want empty", r)
			}

			c, err := s.ReadCursor()
			if err != nil {
				t.Fatal(err)
			}
			if c != NoCursor {
				t.Errorf("cursor = %d, want %d", c, NoCursor)
			}

			if _, err := s.LogEntry(0); !errors.Is(err, ErrNotFound) {
				t.Errorf("LogEntry error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestApplyGroupedWrites(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var b Batch
			b.PutSnapshots(testDoc("a"), testDoc("b"))
			b.AppendLogEntry(testEntry(0))
			b.WriteCursor(0)
			if err := s.Apply(&b); err != nil {
				t.Fatal(err)
			}

			snaps, err := s.Snapshots()
			if err != nil {
				t.Fatal(err)
			}
			if len(snaps) != 2 || !snaps["a"].Equal(testDoc("a")) {
				t.Error("snapshots not persisted by value")
			}

			r, _ := s.RangeKeys()
			if r != (Range{Min: 0, Max: 1}) {
				t.Errorf("range = %+v, want [0,1)", r)
			}

			c, _ := s.ReadCursor()
			if c != 0 {
				t.Errorf("cursor = %d, want 0", c)
			}

			e, err := s.LogEntry(0)
			if err != nil {
				t.Fatal(err)
			}
			if len(e.Forward) != 1 || e.Forward[0].Kind != patch.KindPutFile {
				t.Error("log entry lost its forward patch")
			}
			if !e.Forward[0].File.Equal(testDoc("p")) {
				t.Error("log entry lost the patched document payload")
			}
		})
	}
}

func TestDeleteSnapshotsAndEntries(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var b Batch
			b.PutSnapshots(testDoc("a"), testDoc("b"))
			for i := 0; i < 5; i++ {
				b.AppendLogEntry(testEntry(i))
			}
			b.WriteCursor(4)
			if err := s.Apply(&b); err != nil {
				t.Fatal(err)
			}

			var prune Batch
			prune.DeleteSnapshots("a")
			prune.DeleteLogEntries(Range{Min: 0, Max: 2})
			prune.WriteCursor(4)
			if err := s.Apply(&prune); err != nil {
				t.Fatal(err)
			}

			snaps, _ := s.Snapshots()
			if _, ok := snaps["a"]; ok {
				t.Error("snapshot a should be deleted")
			}
			if _, ok := snaps["b"]; !ok {
				t.Error("snapshot b should survive")
			}

			r, _ := s.RangeKeys()
			if r != (Range{Min: 2, Max: 5}) {
				t.Errorf("range = %+v, want [2,5)", r)
			}
			if _, err := s.LogEntry(1); !errors.Is(err, ErrNotFound) {
				t.Error("pruned entry should be gone")
			}
			if _, err := s.LogEntry(2); err != nil {
				t.Errorf("surviving entry unreadable: %v", err)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	var b Batch
	b.PutSnapshots(testDoc("a"))
	b.AppendLogEntry(testEntry(0))
	b.AppendLogEntry(testEntry(1))
	b.WriteCursor(1)
	if err := s.Apply(&b); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	snaps, err := reopened.Snapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || !snaps["a"].Equal(testDoc("a")) {
		t.Error("snapshots did not survive reopen")
	}
	r, _ := reopened.RangeKeys()
	if r != (Range{Min: 0, Max: 2}) {
		t.Errorf("range = %+v, want [0,2)", r)
	}
	c, _ := reopened.ReadCursor()
	if c != 1 {
		t.Errorf("cursor = %d, want 1", c)
	}
}

func TestFileStoreEncodesAwkwardIDs(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	id := "../weird/..id with spaces"
	doc := testDoc(id)
	var b Batch
	b.PutSnapshots(doc)
	if err := s.Apply(&b); err != nil {
		t.Fatal(err)
	}

	snaps, err := s.Snapshots()
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := snaps[id]; !ok || !got.Equal(doc) {
		t.Error("snapshot with awkward id not round-tripped")
	}
}

func TestMemStoreIsolation(t *testing.T) {
	s := NewMem()
	doc := testDoc("a")

	var b Batch
	b.PutSnapshots(doc)
	if err := s.Apply(&b); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's copy must not leak into the store.
	doc.Name = "changed"
	snaps, _ := s.Snapshots()
	if snaps["a"].Name == "changed" {
		t.Error("store shares storage with the caller")
	}

	// Mutating a read result must not leak back either.
	snaps["a"].Name = "changed again"
	again, _ := s.Snapshots()
	if again["a"].Name == "changed again" {
		t.Error("store shares storage with readers")
	}
}
