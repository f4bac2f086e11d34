package traceid

// Bounds returns the [lineStart, lineEnd) window of the line enclosing
// [start, end), the same boundary walk Extract uses internally. Exposed
// separately so a caller that needs the line's own span (not just its
// trace-id) — the offset cache's write path, which must know where a
// cached line begins in order to compute intra-line positions later — can
// get it without re-implementing the walk.
func Bounds(data []byte, start, end int) (lineStart, lineEnd int, ok bool) {
	if len(data) == 0 {
		return 0, 0, false
	}
	if start < 0 || end < start || end > len(data) {
		return 0, 0, false
	}
	return lineBoundaryBefore(data, start), lineBoundaryAfter(data, end), true
}
