package patternsearch

import (
	"bytes"

	"github.com/streamyara/streamyara/pkg/types"
)

// verifyHexHits locates candidate starts for p's atom (the head's leading
// concrete byte run) and, for each, confirms the full masked head value
// and — when the pattern has a jump (p.Sub != nil) — searches a bounded
// window for the tail sub-pattern, combining the range per spec §4.2
// ("head match + tail match... combined range is start_of_head ..
// end_of_tail").
func (s *Service) verifyHexHits(p types.Pattern, data []byte) []Result {
	if len(p.Atom) == 0 {
		return s.verifyHexWholeBuffer(p, data)
	}

	var out []Result
	start := 0
	for {
		idx := bytes.Index(data[start:], p.Atom)
		if idx < 0 {
			break
		}
		pos := start + idx
		start = pos + 1

		if !matchMasked(data, pos, p.Value, p.Mask) {
			continue
		}
		headEnd := pos + len(p.Value)

		if p.Sub == nil {
			out = append(out, Result{
				PatternID: p.ID,
				Range:     types.ByteRange{Start: int64(pos), End: int64(headEnd)},
			})
			continue
		}

		tailEnd, ok := findTail(data, headEnd, p.Sub)
		if !ok {
			continue
		}
		out = append(out, Result{
			PatternID: p.ID,
			Range:     types.ByteRange{Start: int64(pos), End: int64(tailEnd)},
		})
	}
	return out
}

// verifyHexWholeBuffer is the always-scan fallback for a hex pattern whose
// head has no usable atom — e.g. a leading wildcard ("{ ?? 41 42 }") —
// where maskedAtom's leading concrete-byte run is empty and there is
// nothing to seed the automaton with. Every candidate start is checked
// directly instead. A pattern whose head is empty (a jump at offset 0, as
// in "{ [2-4] 41 42 }") has nothing to anchor on and yields no matches.
func (s *Service) verifyHexWholeBuffer(p types.Pattern, data []byte) []Result {
	var out []Result
	if len(p.Value) == 0 {
		return out
	}
	for pos := 0; pos+len(p.Value) <= len(data); pos++ {
		if !matchMasked(data, pos, p.Value, p.Mask) {
			continue
		}
		headEnd := pos + len(p.Value)

		if p.Sub == nil {
			out = append(out, Result{
				PatternID: p.ID,
				Range:     types.ByteRange{Start: int64(pos), End: int64(headEnd)},
			})
			continue
		}

		tailEnd, ok := findTail(data, headEnd, p.Sub)
		if !ok {
			continue
		}
		out = append(out, Result{
			PatternID: p.ID,
			Range:     types.ByteRange{Start: int64(pos), End: int64(tailEnd)},
		})
	}
	return out
}

// matchMasked reports whether value (with mask, 0xFF=must-match,
// 0x00=wildcard) matches data at offset.
func matchMasked(data []byte, offset int, value, mask []byte) bool {
	if offset < 0 || offset+len(value) > len(data) {
		return false
	}
	for i, m := range mask {
		if m == 0xFF && data[offset+i] != value[i] {
			return false
		}
	}
	return true
}

// findTail searches for sub's masked value within [headEnd+sub.JumpMin,
// headEnd+sub.JumpMax] (sub.JumpMax == -1 means unbounded, capped to the
// rest of the buffer), returning the absolute end offset of the first fit.
func findTail(data []byte, headEnd int, sub *types.Pattern) (int, bool) {
	lo := headEnd + sub.JumpMin
	hi := len(data) - len(sub.Value)
	if sub.JumpMax >= 0 {
		if bound := headEnd + sub.JumpMax; bound < hi {
			hi = bound
		}
	}
	for pos := lo; pos <= hi; pos++ {
		if matchMasked(data, pos, sub.Value, sub.Mask) {
			return pos + len(sub.Value), true
		}
	}
	return 0, false
}
