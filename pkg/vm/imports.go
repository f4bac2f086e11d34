package vm

import "github.com/streamyara/streamyara/pkg/types"

// Imports is the host-function surface the VM calls into while walking a
// rule's condition tree (spec §4.7 "host imports seen by the VM"). The VM
// package never touches the pattern-match store, the offset cache, or
// module outputs directly; every one of those crosses through here, which
// is the seam that keeps the VM a faithful sandbox even though it is a
// native interpreter rather than a literal bytecode machine (§4.1).
type Imports interface {
	// SearchForPatterns runs the pattern-search service over the currently
	// bound buffer exactly once per Run. Returning an error aborts the run.
	SearchForPatterns() error

	// PatMatches returns the number of recorded matches for patternID,
	// saturating at math.MaxInt64, never erroring.
	PatMatches(patternID int) int64
	// PatMatchesIn counts matches with start in [lo, hi].
	PatMatchesIn(patternID int, lo, hi int64) int64
	// PatOffset returns the start of the n'th (1-indexed) match.
	PatOffset(patternID int, n int64) (int64, bool)
	// PatLength returns the byte length of the n'th (1-indexed) match.
	PatLength(patternID int, n int64) (int64, bool)

	// ReadInt performs the hybrid current-chunk-then-offset-cache integer
	// read described in §4.7/§4.8.
	ReadInt(width int, signed bool, addr int64) (int64, bool)

	// ModuleField resolves `<module>.<field>` from the active stream's
	// module outputs.
	ModuleField(module, field string) (types.Value, bool)

	// NotifyRuleMatch is called for each newly-true non-private rule.
	NotifyRuleMatch(ruleID int)
}
