package scanner

import (
	"github.com/google/uuid"

	"github.com/streamyara/streamyara/pkg/streamctx"
	"github.com/streamyara/streamyara/pkg/types"
)

// emitRuleMatchCallback fires the configured callback once per currently
// matching non-private rule, not only newly-matched ones (§4.7.1). A
// no-op if no callback was configured.
func (s *Scanner) emitRuleMatchCallback(id uuid.UUID, sc *streamctx.Context) {
	if s.callback == nil {
		return
	}
	for _, ruleID := range sc.NonPrivateMatchingRules {
		r := s.rules.Rules[ruleID]
		s.callback(r.Namespace, id, r.Name, collectRuleTraceIDs(sc, r))
	}
}

// collectRuleTraceIDs is the deduplicated union of trace-ids across every
// pattern the rule references, never nil (§4.7.1: "trace_ids is empty,
// not null").
func collectRuleTraceIDs(sc *streamctx.Context, r types.Rule) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, patternID := range r.Patterns {
		for _, m := range sc.PatternMatches.Get(patternID) {
			if m.TraceID == "" || seen[m.TraceID] {
				continue
			}
			seen[m.TraceID] = true
			out = append(out, m.TraceID)
		}
	}
	return out
}
