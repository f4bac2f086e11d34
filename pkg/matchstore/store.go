// Package matchstore implements the per-stream pattern-match store: a
// pattern id -> ordered, deduplicated list of Match container with a
// per-pattern cap (spec §4.3).
package matchstore

import (
	"iter"
	"sort"

	"github.com/streamyara/streamyara/pkg/types"
)

// DefaultCap is the "large" default per-pattern match cap the spec leaves
// configurable (§4.2 cap policy).
const DefaultCap = 1 << 16

// Store holds, for one stream, every pattern's ordered match list.
// Not safe for concurrent use: the owning scanner's single-threaded
// cooperative model (§5) is the store's only concurrency guarantee.
type Store struct {
	cap         int
	lists       map[int][]types.Match
	limitHit    map[int]bool
	dedupTraces map[int]map[string]bool // pattern id -> seen trace ids, nil unless dedup enabled
	dedup       bool
}

// New creates a Store with the given per-pattern cap (0 means DefaultCap)
// and dedup mode. Dedup is a per-stream, per-pattern decision per I6/§4.3;
// the owning stream context decides whether to enable it, not the store.
func New(cap int, dedup bool) *Store {
	if cap <= 0 {
		cap = DefaultCap
	}
	s := &Store{
		cap:      cap,
		lists:    make(map[int][]types.Match),
		limitHit: make(map[int]bool),
		dedup:    dedup,
	}
	if dedup {
		s.dedupTraces = make(map[int]map[string]bool)
	}
	return s
}

// Add inserts a match in sorted-by-start order. If a match with the same
// start already exists, replaceIfLonger controls whether the new end
// overwrites it when greater. Returns false if the pattern's cap was
// already reached, or the match was dropped as a trace-id duplicate.
func (s *Store) Add(patternID int, m types.Match, replaceIfLonger bool) bool {
	if s.limitHit[patternID] {
		return false
	}

	if s.dedup && m.TraceID != "" {
		seen := s.dedupTraces[patternID]
		if seen == nil {
			seen = make(map[string]bool)
			s.dedupTraces[patternID] = seen
		}
		if seen[m.TraceID] {
			return false // silent drop, not an error (§7, §9(c))
		}
	}

	list := s.lists[patternID]
	i := sort.Search(len(list), func(i int) bool { return list[i].Range.Start >= m.Range.Start })

	if i < len(list) && list[i].Range.Start == m.Range.Start {
		if replaceIfLonger && m.Range.End > list[i].Range.End {
			list[i] = m
		}
	} else {
		if len(list) >= s.cap {
			s.limitHit[patternID] = true
			return false
		}
		list = append(list, types.Match{})
		copy(list[i+1:], list[i:])
		list[i] = m
	}
	s.lists[patternID] = list

	if s.dedup && m.TraceID != "" {
		s.dedupTraces[patternID][m.TraceID] = true
	}
	return true
}

// Get returns the ordered match list for patternID (do not mutate).
func (s *Store) Get(patternID int) []types.Match {
	return s.lists[patternID]
}

// Search reports whether any stored match for patternID contains offset.
func (s *Store) Search(patternID int, offset int64) bool {
	for _, m := range s.lists[patternID] {
		if m.Range.Contains(offset) {
			return true
		}
	}
	return false
}

// MatchesInRange counts matches for patternID whose start lies in the
// inclusive range [lo, hi]. Saturates to 0 on an inverted or degenerate
// range instead of panicking or returning a garbage count (§7).
func (s *Store) MatchesInRange(patternID int, lo, hi int64) int64 {
	if lo > hi {
		return 0
	}
	var n int64
	for _, m := range s.lists[patternID] {
		if m.Range.Start >= lo && m.Range.Start <= hi {
			n++
		}
	}
	return n
}

// LimitReached reports whether patternID's cap was hit for this stream.
func (s *Store) LimitReached(patternID int) bool {
	return s.limitHit[patternID]
}

// Clear empties every per-pattern list, cap flag, and dedup set.
func (s *Store) Clear() {
	clear(s.lists)
	clear(s.limitHit)
	if s.dedup {
		clear(s.dedupTraces)
	}
}

// Iter yields (patternID, matches) for every pattern with at least one
// recorded match.
func (s *Store) Iter() iter.Seq2[int, []types.Match] {
	return func(yield func(int, []types.Match) bool) {
		for id, list := range s.lists {
			if !yield(id, list) {
				return
			}
		}
	}
}
