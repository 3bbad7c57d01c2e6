package reducer

import (
	"errors"
	"testing"
	"time"

	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/track"
)

func testPoints(n int) []track.Point {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	pts := make([]track.Point, n)
	for i := range pts {
		pts[i] = track.Point{
			Coord:     geo.Coord{Lat: 0, Lon: float64(i) * 0.001},
			Elevation: float64(i),
			Time:      base.Add(time.Duration(i) * time.Minute),
		}
	}
	return pts
}

func TestRunBeforeLoadFails(t *testing.T) {
	r := New()
	defer r.Close()

	if _, err := r.Run(testPoints(3), 1); !errors.Is(err, ErrNoScript) {
		t.Fatalf("Run without script: %v, want ErrNoScript", err)
	}
}

func TestLoadRequiresReduceFunction(t *testing.T) {
	r := New()
	defer r.Close()

	if err := r.LoadString(`x = 1`); err == nil {
		t.Fatal("script without reduce function loaded")
	}
	if err := r.LoadString(`function reduce(points, tol) return {} end`); err != nil {
		t.Fatalf("LoadString: %v", err)
	}
}

func TestRadialDistance(t *testing.T) {
	r := New()
	defer r.Close()
	if err := r.LoadString(RadialDistance); err != nil {
		t.Fatalf("LoadString: %v", err)
	}

	pts := testPoints(10) // points about 111 m apart

	t.Run("keeps everything under a tight tolerance", func(t *testing.T) {
		kept, err := r.Run(pts, 1)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(kept) != len(pts) {
			t.Fatalf("kept %d points, want %d", len(kept), len(pts))
		}
	})

	t.Run("thins interior points under a loose tolerance", func(t *testing.T) {
		kept, err := r.Run(pts, 250)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(kept) >= len(pts) || len(kept) < 2 {
			t.Fatalf("kept %d points, want a proper subset with endpoints", len(kept))
		}
		if !kept[0].Equal(pts[0]) || !kept[len(kept)-1].Equal(pts[len(pts)-1]) {
			t.Fatal("endpoints not preserved")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		kept, err := r.Run(nil, 10)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(kept) != 0 {
			t.Fatalf("kept %d points from empty input", len(kept))
		}
	})
}

func TestScriptSeesPointFields(t *testing.T) {
	r := New()
	defer r.Close()

	// Keep only points above an elevation cutoff.
	err := r.LoadString(`
		function reduce(points, tol)
		  local keep = {}
		  for i, p in ipairs(points) do
		    if p.ele >= tol then keep[#keep + 1] = i end
		  end
		  return keep
		end
	`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}

	kept, err := r.Run(testPoints(5), 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(kept) != 2 || kept[0].Elevation != 3 || kept[1].Elevation != 4 {
		t.Fatalf("kept = %+v, want elevations 3 and 4", kept)
	}
}

func TestBadResults(t *testing.T) {
	cases := []struct {
		name   string
		script string
	}{
		{"non-table", `function reduce(points, tol) return 42 end`},
		{"non-number index", `function reduce(points, tol) return {"a"} end`},
		{"out of range", `function reduce(points, tol) return {99} end`},
		{"out of order", `function reduce(points, tol) return {2, 1} end`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New()
			defer r.Close()
			if err := r.LoadString(tc.script); err != nil {
				t.Fatalf("LoadString: %v", err)
			}
			if _, err := r.Run(testPoints(3), 1); !errors.Is(err, ErrBadResult) {
				t.Fatalf("Run: %v, want ErrBadResult", err)
			}
		})
	}
}

func TestScriptErrorSurfaces(t *testing.T) {
	r := New()
	defer r.Close()
	if err := r.LoadString(`function reduce(points, tol) error("boom") end`); err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if _, err := r.Run(testPoints(3), 1); err == nil {
		t.Fatal("script error did not surface")
	}
}

func TestSandboxRemovesLoaders(t *testing.T) {
	r := New()
	defer r.Close()

	err := r.LoadString(`
		function reduce(points, tol)
		  if load ~= nil or dofile ~= nil or loadfile ~= nil then
		    error("loader escaped the sandbox")
		  end
		  return {}
		end
	`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if _, err := r.Run(testPoints(1), 1); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunAfterClose(t *testing.T) {
	r := New()
	if err := r.LoadString(RadialDistance); err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	r.Close()
	if _, err := r.Run(testPoints(3), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Run after close: %v, want ErrClosed", err)
	}
}
