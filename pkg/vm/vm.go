// Package vm is the shared evaluator sandbox (spec §4.1): a native
// tree-walking interpreter over types.Condition standing in for "any VM
// with linear memory and typed imports... implementers may substitute a
// native interpreter." The two-bitmap shared-memory discipline (§4.4) is
// preserved as the real host/VM boundary: condition evaluation never
// touches the pattern-match store or offset cache directly, only through
// the Imports seam.
package vm

import (
	"context"

	"github.com/streamyara/streamyara/pkg/bitmap"
	"github.com/streamyara/streamyara/pkg/types"
)

// Outcome is the VM's per-Run result, mirroring the spec's ok/timeout/aborted
// trichotomy (§4.1 failure modes).
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTimeout
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// VM holds the per-scanner sandbox state: the two shared-memory bitmaps
// and the current call's filesize/search-done flag. Bitmaps are swapped
// in/out wholesale by the scanner on every switch_to_stream (§4.6) — the
// VM itself never keeps them beyond the currently-active stream.
type VM struct {
	PatternBitmap bitmap.Bitmap
	RuleBitmap    bitmap.Bitmap

	imports Imports

	filesize          int64
	patternSearchDone bool
}

// New constructs a VM sized for patternCount patterns and ruleCount rules.
func New(patternCount, ruleCount int, imports Imports) *VM {
	return &VM{
		PatternBitmap: bitmap.New(patternCount),
		RuleBitmap:    bitmap.New(ruleCount),
		imports:       imports,
	}
}

// Bind prepares the VM for one scan call (spec §4.1 contract steps a-c):
// bind filesize, clear pattern_search_done. The data buffer itself never
// passes through the VM — patterns are searched by the host-side
// patternsearch service directly against the scanner's chunk, reached via
// Imports.SearchForPatterns.
func (vm *VM) Bind(filesize int64) {
	vm.filesize = filesize
	vm.patternSearchDone = false
}

// PatternSearchDone reports whether search_for_patterns has already run
// during the current bound call (§P6).
func (vm *VM) PatternSearchDone() bool { return vm.patternSearchDone }

// Run evaluates every rule's condition against the currently bound call,
// setting rule bits and notifying newly-true non-private rules. It
// preempts at a deadline check before each rule and before the one
// blocking operation (search_for_patterns); a pathological condition that
// never touches pattern state or reads runs instantaneously regardless,
// so per-rule/per-import-call granularity is sufficient preemption.
func (vm *VM) Run(ctx context.Context, rules []types.Rule) (Outcome, error) {
	ev := &evaluator{vm: vm, ctx: ctx}

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return OutcomeTimeout, types.ErrTimeout
		}

		matched := r.Condition.Eval(ev).Bool()

		if ev.aborted != nil {
			return OutcomeAborted, ev.aborted
		}
		if err := ctx.Err(); err != nil {
			return OutcomeTimeout, types.ErrTimeout
		}

		if !matched {
			continue
		}
		wasSet := vm.RuleBitmap.Get(r.ID)
		vm.RuleBitmap.Set(r.ID)
		if !wasSet && !r.Private {
			vm.imports.NotifyRuleMatch(r.ID)
		}
	}

	return OutcomeOK, nil
}

// evaluator adapts a VM+context pair to types.Evaluator. It is created
// fresh for each Run call.
type evaluator struct {
	vm      *VM
	ctx     context.Context
	aborted error
}

// ensureSearched triggers search_for_patterns exactly once per Run, the
// moment any pattern-sensitive node is first evaluated (§4.1, §P6).
func (e *evaluator) ensureSearched() bool {
	if e.vm.patternSearchDone {
		return true
	}
	if e.aborted != nil {
		return false
	}
	if err := e.ctx.Err(); err != nil {
		return false
	}
	if err := e.vm.imports.SearchForPatterns(); err != nil {
		e.aborted = err
		return false
	}
	e.vm.patternSearchDone = true
	return true
}

func (e *evaluator) PatternExists(patternID int) bool {
	if !e.ensureSearched() {
		return false
	}
	return e.vm.imports.PatMatches(patternID) > 0
}

func (e *evaluator) PatternCount(patternID int) int64 {
	if !e.ensureSearched() {
		return 0
	}
	return e.vm.imports.PatMatches(patternID)
}

func (e *evaluator) PatternCountInRange(patternID int, lo, hi int64) int64 {
	if !e.ensureSearched() {
		return 0
	}
	return e.vm.imports.PatMatchesIn(patternID, lo, hi)
}

func (e *evaluator) PatternOffset(patternID int, n int64) (int64, bool) {
	if !e.ensureSearched() {
		return 0, false
	}
	return e.vm.imports.PatOffset(patternID, n)
}

func (e *evaluator) PatternLength(patternID int, n int64) (int64, bool) {
	if !e.ensureSearched() {
		return 0, false
	}
	return e.vm.imports.PatLength(patternID, n)
}

func (e *evaluator) Filesize() int64 { return e.vm.filesize }

func (e *evaluator) ReadInt(width int, signed bool, addr int64) (int64, bool) {
	if e.ctx.Err() != nil {
		return 0, false
	}
	return e.vm.imports.ReadInt(width, signed, addr)
}

func (e *evaluator) ModuleField(module, field string) (types.Value, bool) {
	if e.ctx.Err() != nil {
		return types.Value{}, false
	}
	return e.vm.imports.ModuleField(module, field)
}
