package selection

import "testing"

func TestTraverseGroupsByDocumentAndLevel(t *testing.T) {
	s := NewSet(
		TrackItem("a", 0),
		TrackItem("a", 2),
		File("b"),
		WaypointItem("a", 1),
	)

	type visitRec struct {
		docID string
		level Level
		n     int
	}
	var got []visitRec
	err := s.Traverse(false, func(docID string, level Level, items []Item) error {
		got = append(got, visitRec{docID, level, len(items)})
		return nil
	})
	if err != nil {
		t.Fatalf("Traverse() error: %v", err)
	}

	want := []visitRec{
		{"a", LevelTrack, 2},
		{"b", LevelFile, 1},
		{"a", LevelWaypoint, 1},
	}
	if len(got) != len(want) {
		t.Fatalf("visits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("visit %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTraverseReverse(t *testing.T) {
	s := NewSet(File("a"), File("b"), File("c"))

	var order []string
	_ = s.Traverse(true, func(docID string, _ Level, _ []Item) error {
		order = append(order, docID)
		return nil
	})

	if len(order) != 3 || order[0] != "c" || order[2] != "a" {
		t.Errorf("reverse order = %v", order)
	}
}

func TestIsAnySelected(t *testing.T) {
	s := NewSet(SegmentItem("a", 1, 0), WaypointItem("b", 3))

	if !s.IsAnySelected("a", nil) {
		t.Error("document a has a selection")
	}
	if s.IsAnySelected("z", nil) {
		t.Error("document z has no selection")
	}

	scope := TrackItem("a", 1)
	if !s.IsAnySelected("a", &scope) {
		t.Error("segment 1/0 lies under track 1")
	}
	other := TrackItem("a", 0)
	if s.IsAnySelected("a", &other) {
		t.Error("nothing selected under track 0")
	}

	wpts := AllWaypoints("b")
	if !s.IsAnySelected("b", &wpts) {
		t.Error("waypoint 3 lies in the waypoint bucket")
	}
}

func TestPrune(t *testing.T) {
	s := NewSet(File("a"), File("b"), TrackItem("a", 0))

	s.Prune(func(item Item) bool { return item.DocID != "a" })

	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if s.Items()[0].DocID != "b" {
		t.Error("wrong item survived prune")
	}
}
