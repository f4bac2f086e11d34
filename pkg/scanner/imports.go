package scanner

import (
	"math"

	"github.com/streamyara/streamyara/pkg/offsetcache"
	"github.com/streamyara/streamyara/pkg/traceid"
	"github.com/streamyara/streamyara/pkg/types"
)

// hostImports is the scanner's implementation of vm.Imports: the seam
// where the pattern-search service, the pattern-match store, the offset
// cache, and the module outputs all get wired into the VM's view of the
// world (§4.7's host import list; SPEC_FULL.md §4.6 expansion note).
type hostImports struct {
	s *Scanner
}

// SearchForPatterns runs the pattern-search service over the scanner's
// currently bound buffer exactly once (the VM enforces the "exactly
// once" half via pattern_search_done; this just does the work). It also
// populates the offset cache with every trace-id-bearing match's
// enclosing line, since the chunk buffer is only in scope for this one
// call — once scanning moves on, a later out-of-window read has nowhere
// else to recover those bytes from.
func (h *hostImports) SearchForPatterns() error {
	s := h.s
	s.search.Search(s.currentBuffer, s.currentGlobalOffset, s.active.PatternMatches, s.vm.PatternBitmap)

	if s.offsetCache == nil {
		return nil
	}
	windowStart := s.currentGlobalOffset
	windowEnd := s.currentGlobalOffset + int64(len(s.currentBuffer))
	for _, matches := range s.active.PatternMatches.Iter() {
		for _, m := range matches {
			if m.TraceID == "" || m.Range.Start < windowStart || m.Range.Start >= windowEnd {
				continue
			}
			localStart := int(m.Range.Start - windowStart)
			localEnd := int(m.Range.End - windowStart)
			lineStart, lineEnd, ok := traceid.Bounds(s.currentBuffer, localStart, localEnd)
			if !ok {
				continue
			}
			s.offsetCache.Put(m.TraceID, append([]byte(nil), s.currentBuffer[lineStart:lineEnd]...))
			s.active.LineOffsets[m.TraceID] = windowStart + int64(lineStart)
		}
	}
	return nil
}

// PatMatches returns the recorded match count for patternID. The match
// store already enforces a per-pattern cap (§4.2), so this count can
// never actually reach math.MaxInt64; the saturating cast is kept anyway
// since it's what the spec's pat_matches contract promises a caller.
func (h *hostImports) PatMatches(patternID int) int64 {
	n := len(h.s.active.PatternMatches.Get(patternID))
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

func (h *hostImports) PatMatchesIn(patternID int, lo, hi int64) int64 {
	return h.s.active.PatternMatches.MatchesInRange(patternID, lo, hi)
}

func (h *hostImports) PatOffset(patternID int, n int64) (int64, bool) {
	list := h.s.active.PatternMatches.Get(patternID)
	idx := n - 1
	if idx < 0 || idx >= int64(len(list)) {
		return 0, false
	}
	return list[idx].Range.Start, true
}

func (h *hostImports) PatLength(patternID int, n int64) (int64, bool) {
	list := h.s.active.PatternMatches.Get(patternID)
	idx := n - 1
	if idx < 0 || idx >= int64(len(list)) {
		return 0, false
	}
	m := list[idx]
	return m.Range.End - m.Range.Start, true
}

// ReadInt is the hybrid fast-path-then-offset-cache integer read (§4.7
// read_u*_at / read_i*_at): a direct read if addr falls inside the
// current chunk window, otherwise a lookup through a Match whose range
// contains addr and carries a trace-id, via the offset cache.
func (h *hostImports) ReadInt(width int, signed bool, addr int64) (int64, bool) {
	s := h.s

	windowStart := s.currentGlobalOffset
	windowEnd := s.currentGlobalOffset + int64(len(s.currentBuffer))
	if addr >= windowStart && addr < windowEnd {
		return offsetcache.ReadIntAt(s.currentBuffer, int(addr-windowStart), width, signed)
	}

	if s.offsetCache == nil {
		return 0, false
	}
	for _, matches := range s.active.PatternMatches.Iter() {
		for _, m := range matches {
			if m.TraceID == "" || !m.Range.Contains(addr) {
				continue
			}
			line, ok := s.offsetCache.Get(m.TraceID)
			if !ok {
				continue
			}
			lineStart, ok := s.active.LineOffsets[m.TraceID]
			if !ok {
				continue
			}
			return offsetcache.ReadIntAt(line, int(addr-lineStart), width, signed)
		}
	}
	return 0, false
}

func (h *hostImports) ModuleField(moduleName, field string) (types.Value, bool) {
	fields, ok := h.s.active.ModuleOutputs[moduleName]
	if !ok {
		return types.Value{}, false
	}
	v, ok := fields[field]
	return v, ok
}

func (h *hostImports) NotifyRuleMatch(ruleID int) {
	h.s.active.NotifyRuleMatch(ruleID)
}
