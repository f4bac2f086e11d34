package scanner

import (
	"iter"

	"github.com/google/uuid"

	"github.com/streamyara/streamyara/pkg/streamctx"
	"github.com/streamyara/streamyara/pkg/types"
)

// Callback is the rule-match callback signature (spec §4.7.1): namespace
// and rule identifier of one currently-matching non-private rule, the
// stream it matched in, and the deduplicated union of trace-ids across
// that rule's pattern matches so far in this stream.
type Callback func(namespace string, streamID uuid.UUID, rule string, traceIDs []string)

// Logger receives the scanner's diagnostics: currently a module-init
// failure, which is logged here and also returned to the caller. Matches
// the small Printf-only shape used throughout this module.
type Logger interface {
	Printf(format string, args ...any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Printf(string, ...any) {}

// StreamResultsView is a read-only window onto one live stream's current
// results (spec §6 StreamResultsView). It borrows the underlying context;
// callers must not retain it across a ResetStream/CloseStream call.
type StreamResultsView struct {
	rules []types.Rule
	ctx   *streamctx.Context
}

// MatchingRules iterates every rule id (private and non-private) that has
// matched at least once in this stream's lifetime. Spec's callback
// excludes private rules (§4.7.1); this read-only view imposes no such
// restriction since it is an explicit pull by the caller, not a push
// notification.
func (v *StreamResultsView) MatchingRules() iter.Seq[types.Rule] {
	return func(yield func(types.Rule) bool) {
		for _, id := range v.ctx.NonPrivateMatchingRules {
			if !yield(v.rules[id]) {
				return
			}
		}
		for _, id := range v.ctx.PrivateMatchingRules {
			if !yield(v.rules[id]) {
				return
			}
		}
	}
}

// TraceIDs iterates the deduplicated union of every trace-id recorded
// across all pattern matches in this stream.
func (v *StreamResultsView) TraceIDs() iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[string]bool)
		for _, matches := range v.ctx.PatternMatches.Iter() {
			for _, m := range matches {
				if m.TraceID == "" || seen[m.TraceID] {
					continue
				}
				seen[m.TraceID] = true
				if !yield(m.TraceID) {
					return
				}
			}
		}
	}
}

// BytesProcessed is the total byte count submitted to this stream so far.
func (v *StreamResultsView) BytesProcessed() uint64 { return v.ctx.BytesProcessed }

// LineCount is the stream's accumulated line count (§9(b): chunk mode
// counts newline bytes only).
func (v *StreamResultsView) LineCount() uint64 { return v.ctx.LineCount }

// FinalStreamResults is the owned snapshot returned by CloseStream, once
// the backing context has been removed from the scanner's stream table.
type FinalStreamResults struct {
	MatchingRules  []types.Rule
	TraceIDs       []string
	BytesProcessed uint64
	LineCount      uint64
}
