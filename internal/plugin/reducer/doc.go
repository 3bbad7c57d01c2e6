// Package reducer hosts Lua point-simplification scripts.
//
// The Reduce edit replaces a segment's points with an externally simplified
// sequence; this package produces that sequence. A script defines a global
// reduce(points, tolerance) function and returns the 1-based indices of the
// points to keep:
//
//	r := reducer.New()
//	defer r.Close()
//
//	if err := r.LoadString(reducer.RadialDistance); err != nil {
//	    log.Fatal(err)
//	}
//	kept, err := r.Run(seg.Points, 10) // meters
//
// Scripts run sandboxed: only the base, table, string and math libraries
// are open, the load family of functions is removed, and each run carries
// a best-effort execution timeout. The host adds one function, dist(a, b),
// the great-circle distance in meters between two point tables.
package reducer

// RadialDistance is the stock simplification script: walk the points and
// drop every point closer than tolerance meters to the last kept one. The
// first and last points always survive.
const RadialDistance = `
function reduce(points, tolerance)
  local keep = {}
  local n = #points
  if n == 0 then return keep end
  keep[#keep + 1] = 1
  local anchor = points[1]
  for i = 2, n - 1 do
    if dist(anchor, points[i]) >= tolerance then
      keep[#keep + 1] = i
      anchor = points[i]
    end
  end
  if n > 1 then
    keep[#keep + 1] = n
  end
  return keep
end
`
