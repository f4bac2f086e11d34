// Package scanner is the multi-stream scanner (spec §4.6/§4.7): it owns
// one VM, one pattern-search service, and a table of per-stream contexts,
// switching the VM's shared bitmaps in and out as callers move between
// streams.
package scanner

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/streamyara/streamyara/pkg/matchstore"
	"github.com/streamyara/streamyara/pkg/module"
	"github.com/streamyara/streamyara/pkg/offsetcache"
	"github.com/streamyara/streamyara/pkg/patternsearch"
	"github.com/streamyara/streamyara/pkg/streamctx"
	"github.com/streamyara/streamyara/pkg/types"
	"github.com/streamyara/streamyara/pkg/vm"
)

// Scanner is the library's single entry point (spec §6 make_scanner /
// Scanner). Not safe for concurrent use: every user-facing method is
// synchronous and non-reentrant, by design (§5).
type Scanner struct {
	rules  *types.CompiledRules
	search *patternsearch.Service
	vm     *vm.VM

	modules     []module.Module
	offsetCache *offsetcache.Cache
	dedup       bool
	matchCap    int
	callback    Callback
	logger      Logger
	timeout     time.Duration

	streams      map[uuid.UUID]*streamctx.Context
	activeStream *uuid.UUID
	active       *streamctx.Context // == streams[*activeStream], cached for the imports seam

	currentBuffer       []byte
	currentGlobalOffset int64
}

// NewScanner compiles nothing itself (that's pkg/compiler's job) — it
// takes already-compiled rules and builds the pattern-search service and
// VM over them.
func NewScanner(rules *types.CompiledRules, opts ...Option) (*Scanner, error) {
	search, err := patternsearch.New(rules.Patterns)
	if err != nil {
		return nil, err
	}

	s := &Scanner{
		rules:    rules,
		search:   search,
		streams:  make(map[uuid.UUID]*streamctx.Context),
		logger:   NoopLogger{},
		matchCap: matchstore.DefaultCap,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.vm = vm.New(rules.PatternCount(), rules.RuleCount(), &hostImports{s: s})
	return s, nil
}

// ScanLine submits one line: line_count increments by exactly 1
// regardless of embedded newlines, and the caller is declaring that no
// pattern may span this unit (§4.7 scan_line).
func (s *Scanner) ScanLine(ctx context.Context, id uuid.UUID, line []byte) error {
	return s.scan(ctx, id, line, true)
}

// ScanChunk submits an arbitrary byte chunk; line_count advances by the
// number of newline bytes it contains (§9(b)).
func (s *Scanner) ScanChunk(ctx context.Context, id uuid.UUID, chunk []byte) error {
	return s.scan(ctx, id, chunk, false)
}

func (s *Scanner) scan(ctx context.Context, id uuid.UUID, data []byte, isLine bool) error {
	sc, err := s.switchToStream(id)
	if err != nil {
		return err
	}

	s.currentBuffer = data
	s.currentGlobalOffset = sc.GlobalOffset
	s.vm.Bind(int64(len(data)))

	runCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	outcome, runErr := s.vm.Run(runCtx, s.rules.Rules)

	sc.DrainTempMatchingRules(s.rules.Rules)
	s.emitRuleMatchCallback(id, sc)

	n := int64(len(data))
	sc.BytesProcessed += uint64(n)
	if isLine {
		sc.LineCount++
	} else {
		sc.LineCount += uint64(countNewlines(data))
	}
	sc.GlobalOffset += n

	s.currentBuffer = nil

	switch outcome {
	case vm.OutcomeTimeout:
		return types.ErrTimeout
	case vm.OutcomeAborted:
		return fmt.Errorf("%w: %v", types.ErrEvaluatorAborted, runErr)
	default:
		return nil
	}
}

func countNewlines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}

// switchToStream implements §4.6's switch_to_stream exactly: a no-op if
// the requested stream is already active, otherwise save the outgoing
// stream's bitmaps, look up or create the target, run its (idempotent)
// one-time module init, and install its bitmaps into the VM.
func (s *Scanner) switchToStream(id uuid.UUID) (*streamctx.Context, error) {
	if s.activeStream != nil && *s.activeStream == id {
		return s.active, nil
	}

	sc, ok := s.streams[id]
	if !ok {
		sc = streamctx.New(s.rules.RuleCount(), s.rules.PatternCount(), s.matchCap, s.dedup)
		s.streams[id] = sc
	}

	// Module init is attempted before tearing down the currently active
	// stream, so a failure here leaves the scanner exactly as it was
	// (§7: "the active-stream pointer is restored so the scanner remains
	// usable") rather than switched away with nothing switched in.
	if err := sc.InitModules(s.modules); err != nil {
		s.logger.Printf("scanner: stream %s: module init failed: %v", id, err)
		return nil, err
	}

	if s.activeStream != nil {
		s.active.SaveBitmaps(s.vm.RuleBitmap, s.vm.PatternBitmap)
	}

	sc.InstallBitmaps(s.vm.RuleBitmap, s.vm.PatternBitmap)

	active := id
	s.activeStream = &active
	s.active = sc
	return sc, nil
}

// GetMatches returns a read-only view of a known stream's current
// results, or ok=false if the stream id is unknown.
func (s *Scanner) GetMatches(id uuid.UUID) (*StreamResultsView, bool) {
	sc, ok := s.streams[id]
	if !ok {
		return nil, false
	}
	return &StreamResultsView{rules: s.rules.Rules, ctx: sc}, true
}

// ResetStream clears a stream's stores, vectors, and counters (§4.7
// reset_stream). If it's the active stream, the live VM bitmaps are
// zeroed too, since the snapshot they'd otherwise be restored from has
// just been cleared.
func (s *Scanner) ResetStream(id uuid.UUID) {
	sc, ok := s.streams[id]
	if !ok {
		return
	}
	sc.Reset()
	if s.activeStream != nil && *s.activeStream == id {
		s.vm.RuleBitmap.Clear()
		s.vm.PatternBitmap.Clear()
	}
}

// CloseStream removes a stream from the table and returns its final,
// owned results snapshot (§4.7 close_stream).
func (s *Scanner) CloseStream(id uuid.UUID) (*FinalStreamResults, bool) {
	sc, ok := s.streams[id]
	if !ok {
		return nil, false
	}

	final := &FinalStreamResults{
		BytesProcessed: sc.BytesProcessed,
		LineCount:      sc.LineCount,
	}
	for _, ruleID := range sc.NonPrivateMatchingRules {
		final.MatchingRules = append(final.MatchingRules, s.rules.Rules[ruleID])
	}
	for _, ruleID := range sc.PrivateMatchingRules {
		final.MatchingRules = append(final.MatchingRules, s.rules.Rules[ruleID])
	}
	seen := make(map[string]bool)
	for _, matches := range sc.PatternMatches.Iter() {
		for _, m := range matches {
			if m.TraceID == "" || seen[m.TraceID] {
				continue
			}
			seen[m.TraceID] = true
			final.TraceIDs = append(final.TraceIDs, m.TraceID)
		}
	}

	delete(s.streams, id)
	if s.activeStream != nil && *s.activeStream == id {
		s.activeStream = nil
		s.active = nil
	}
	return final, true
}

// ActiveStreams iterates every known stream id (§4.7 active_streams).
// "Active" here follows the spec's own naming for this API: every stream
// the scanner still holds a context for, not just the one currently
// switched into the VM.
func (s *Scanner) ActiveStreams() iter.Seq[uuid.UUID] {
	return func(yield func(uuid.UUID) bool) {
		for id := range s.streams {
			if !yield(id) {
				return
			}
		}
	}
}

// ContextsMemoryUsage is a documented estimate, not an exact accounting
// (§6 contexts_memory_usage).
func (s *Scanner) ContextsMemoryUsage() uint64 {
	var total uint64
	for _, sc := range s.streams {
		total += sc.MemoryUsageEstimate()
	}
	return total
}
