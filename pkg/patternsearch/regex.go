package patternsearch

import (
	"github.com/streamyara/streamyara/pkg/types"
)

// verifyRegexWholeBuffer runs p's compiled regexp2 verifier over the whole
// chunk and returns one Result per match. Running over the whole chunk
// rather than a bounded window around the atom hit trades a little
// throughput for never missing a match whose span starts before the
// atom's position (lookbehind-style patterns); chunks are already
// bounded in size by the caller, so the cost is acceptable.
func (s *Service) verifyRegexWholeBuffer(p types.Pattern, data []byte) []Result {
	re := s.regexes[p.ID]
	if re == nil {
		return nil
	}

	var out []Result
	text := string(data)
	m, err := re.FindStringMatch(text)
	for err == nil && m != nil {
		out = append(out, Result{
			PatternID: p.ID,
			Range:     types.ByteRange{Start: int64(m.Index), End: int64(m.Index + m.Length)},
		})
		m, err = re.FindNextMatch(m)
	}
	return out
}
