// Package patternsearch is the pattern-search service (spec §4.2): one
// linear automaton pass per scan call over the currently-bound buffer,
// followed by per-candidate verification, trace-id extraction, global
// offset shift, bitmap update, and cap-respecting storage.
//
// cloudflare/ahocorasick only reports which dictionary entries occur
// somewhere in the haystack, not their positions (grounded in the
// teacher's own pkg/prefilter/prefilter.go, which uses it the same way,
// as a boolean keyword prefilter). Locating exact offsets for verification
// is this package's job, done with a plain bytes.Index walk per hit atom.
package patternsearch

import (
	"bytes"
	"fmt"

	"github.com/cloudflare/ahocorasick"
	"github.com/dlclark/regexp2"

	"github.com/streamyara/streamyara/pkg/bitmap"
	"github.com/streamyara/streamyara/pkg/matchstore"
	"github.com/streamyara/streamyara/pkg/traceid"
	"github.com/streamyara/streamyara/pkg/types"
)

// Service holds the compiled automaton and per-pattern verification state
// for one CompiledRules' pattern table. It is immutable after
// construction and safe to share across streams (the automaton itself
// carries no per-stream state).
type Service struct {
	patterns []types.Pattern

	matcher        *ahocorasick.Matcher
	atomPatternIDs [][]int // parallel to the dictionary passed to matcher

	noAtomPatternIDs []int // regex/hex patterns with no usable atom, plus nocase strings: always-scan fallback
	xorPatternIDs    []int // xor strings, brute-force scanned every call

	regexes map[int]*regexp2.Regexp // patternID -> compiled verifier, regex kind only
}

// New builds a Service over a compiled pattern table.
func New(patterns []types.Pattern) (*Service, error) {
	s := &Service{
		patterns: patterns,
		regexes:  make(map[int]*regexp2.Regexp),
	}

	atomIndex := make(map[string]int)
	var dictionary [][]byte

	for _, p := range patterns {
		if p.Kind == types.KindRegex {
			opts := regexp2.None
			if p.CaseInsensitive {
				opts = regexp2.IgnoreCase
			}
			re, err := regexp2.Compile(p.Regex, opts)
			if err != nil {
				return nil, fmt.Errorf("patternsearch: pattern %s: %w", p.Name, err)
			}
			s.regexes[p.ID] = re
		}

		if p.Kind == types.KindString && p.Xor {
			// The ciphertext bytes actually present in the buffer are
			// unknown ahead of time (that's the point of XOR-obfuscated
			// strings), so the plaintext atom can't seed the automaton.
			// These patterns are brute-force scanned directly instead.
			s.xorPatternIDs = append(s.xorPatternIDs, p.ID)
			continue
		}

		if p.Kind == types.KindString && p.CaseInsensitive {
			// The automaton compares bytes exactly, so a case-folded string
			// can't be seeded from its atom; it is scanned directly instead.
			s.noAtomPatternIDs = append(s.noAtomPatternIDs, p.ID)
			continue
		}

		atom := p.Atom
		if len(atom) == 0 {
			// No kind gets to silently vanish here: a regex with no long
			// literal run, or a hex pattern whose atom extraction hit a
			// leading wildcard/jump, still needs to be checked against
			// every buffer, just without the automaton's help.
			s.noAtomPatternIDs = append(s.noAtomPatternIDs, p.ID)
			continue
		}
		key := string(atom)
		idx, ok := atomIndex[key]
		if !ok {
			idx = len(dictionary)
			atomIndex[key] = idx
			dictionary = append(dictionary, atom)
			s.atomPatternIDs = append(s.atomPatternIDs, nil)
		}
		s.atomPatternIDs[idx] = append(s.atomPatternIDs[idx], p.ID)
	}

	if len(dictionary) > 0 {
		s.matcher = ahocorasick.NewMatcher(dictionary)
	}

	return s, nil
}

// Result is one verified match produced by a Search call, still in
// chunk-local coordinates (the caller shifts to global before storing, or
// passes globalOffset to Search to have it done inline — see Search).
type Result struct {
	PatternID int
	Range     types.ByteRange // chunk-local
	XorKey    *byte
}

// Search runs the automaton once over data (a chunk or line buffer),
// verifies every candidate, extracts trace-ids on chunk-local ranges,
// shifts verified ranges to global coordinates, and records them into
// store (which enforces dedup/caps) and bmp (the pattern bitmap, set only
// for matches the store actually accepted).
func (s *Service) Search(data []byte, globalOffset int64, store *matchstore.Store, bmp bitmap.Bitmap) {
	for _, r := range s.findCandidates(data) {
		m := types.Match{PatternID: r.PatternID, XorKey: r.XorKey}

		if tid, ok := traceid.Extract(data, int(r.Range.Start), int(r.Range.End)); ok {
			m.TraceID = tid
		}

		m.Range = types.ByteRange{
			Start: r.Range.Start + globalOffset,
			End:   r.Range.End + globalOffset,
		}

		if store.Add(r.PatternID, m, true) {
			bmp.Set(r.PatternID)
		}
	}
}

// findCandidates runs the automaton (if any atoms were registered),
// dispatching each hit to the kind-specific verifier, then the always-scan
// patterns (no usable atom) and the brute-forced XOR patterns.
func (s *Service) findCandidates(data []byte) []Result {
	var results []Result

	if s.matcher != nil {
		for _, atomIdx := range s.matcher.Match(data) {
			for _, patternID := range s.atomPatternIDs[atomIdx] {
				p := s.patterns[patternID]
				results = append(results, s.verifyAtomHits(p, data)...)
			}
		}
	}

	for _, patternID := range s.noAtomPatternIDs {
		results = append(results, s.verifyWholeBuffer(s.patterns[patternID], data)...)
	}

	for _, patternID := range s.xorPatternIDs {
		results = append(results, verifyXorHits(s.patterns[patternID], data)...)
	}

	return results
}

// verifyAtomHits locates every occurrence of p's atom in data and verifies
// each one according to the pattern's kind.
func (s *Service) verifyAtomHits(p types.Pattern, data []byte) []Result {
	switch p.Kind {
	case types.KindString:
		return s.verifyStringHits(p, data)
	case types.KindHex:
		return s.verifyHexHits(p, data)
	case types.KindRegex:
		return s.verifyRegexWholeBuffer(p, data)
	default:
		return nil
	}
}

// verifyWholeBuffer dispatches a no-atom pattern to its kind's always-scan
// verifier. KindString lands here for case-insensitive strings, which
// verifyStringHits scans for with both sides lower-cased. An unknown kind
// is a no-op rather than a panic, matching the conservative default the
// atom-hit dispatch in verifyAtomHits already uses.
func (s *Service) verifyWholeBuffer(p types.Pattern, data []byte) []Result {
	switch p.Kind {
	case types.KindString:
		return s.verifyStringHits(p, data)
	case types.KindRegex:
		return s.verifyRegexWholeBuffer(p, data)
	case types.KindHex:
		return s.verifyHexWholeBuffer(p, data)
	default:
		return nil
	}
}

func (s *Service) verifyStringHits(p types.Pattern, data []byte) []Result {
	var out []Result
	needle := p.Atom
	if len(needle) == 0 {
		return nil
	}

	haystack := data
	if p.CaseInsensitive {
		haystack = bytes.ToLower(data)
		needle = bytes.ToLower(needle)
	}

	start := 0
	for {
		idx := bytes.Index(haystack[start:], needle)
		if idx < 0 {
			break
		}
		pos := start + idx
		out = append(out, Result{
			PatternID: p.ID,
			Range:     types.ByteRange{Start: int64(pos), End: int64(pos + len(p.Value))},
		})
		start = pos + 1
	}
	return out
}
