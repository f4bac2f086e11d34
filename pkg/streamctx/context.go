// Package streamctx is the per-stream state bundle the multi-stream
// scanner switches in and out of the shared VM (spec §4.6).
package streamctx

import (
	"github.com/streamyara/streamyara/pkg/bitmap"
	"github.com/streamyara/streamyara/pkg/matchstore"
	"github.com/streamyara/streamyara/pkg/module"
	"github.com/streamyara/streamyara/pkg/types"
)

// Context is one stream's private state: its pattern-match store, its
// rule-result vectors, its bitmap snapshots, and its counters. Never
// touched by more than one goroutine at a time, by the scanner's own
// single-threaded call discipline (§5).
type Context struct {
	PatternMatches *matchstore.Store

	// NonPrivateMatchingRules and PrivateMatchingRules are ordered, unique
	// rule-id lists: the persistent record of every rule that has ever
	// matched in this stream, partitioned by visibility.
	NonPrivateMatchingRules []int
	PrivateMatchingRules    []int

	// TempMatchingRules accumulates rule ids notified by the VM during the
	// scan call in progress (vm.Imports.NotifyRuleMatch). scan_line/
	// scan_chunk drains it into the two vectors above at step 6, then
	// empties it (§4.7 step 6, host import rule_match_notify).
	TempMatchingRules []int

	// UnconfirmedMatches mirrors the spec's unconfirmed_matches field.
	// Nothing ever writes to it: pattern verification in this engine is
	// synchronous and whole-buffer within a single scan call (patternsearch
	// never defers a candidate to a later call), so there is never a
	// pending/unconfirmed match to hold here. Kept as a named field rather
	// than dropped so a future cross-chunk verification scheme (e.g. a hex
	// jump pattern whose tail lands in the next chunk) has somewhere to
	// live without changing this struct's shape.
	UnconfirmedMatches map[int][]types.Match

	RuleBitmapSnapshot    bitmap.Bitmap
	PatternBitmapSnapshot bitmap.Bitmap

	BytesProcessed uint64
	LineCount      uint64
	GlobalOffset   int64

	ModuleOutputs map[string]module.Fields

	// LineOffsets maps a trace-id to the global byte offset where its
	// cached line begins, the bookkeeping the hybrid offset-cache read
	// path needs to convert a requested global address into an intra-line
	// position (§4.7 read_u*_at). Not part of the spec's named context
	// fields, but required to make that read path concrete: the offset
	// cache itself only stores line bytes keyed by trace-id, never where
	// those bytes sat in the stream.
	LineOffsets map[string]int64

	modulesInitialized bool
}

// New creates a default-initialised context: empty stores, zeroed
// bitmaps, global offset 0. Module initialisation happens separately via
// InitModules, since it only runs once, on the stream's first touch.
func New(ruleCount, patternCount, matchCap int, dedup bool) *Context {
	return &Context{
		PatternMatches:        matchstore.New(matchCap, dedup),
		UnconfirmedMatches:    make(map[int][]types.Match),
		RuleBitmapSnapshot:    bitmap.New(ruleCount),
		PatternBitmapSnapshot: bitmap.New(patternCount),
		ModuleOutputs:         make(map[string]module.Fields),
		LineOffsets:           make(map[string]int64),
	}
}

// InitModules runs every module's initialiser exactly once for this
// context, against an empty input buffer, per spec §4.6 step 2 ("call its
// initialiser with empty input"). A no-op on the second and subsequent
// call for the same context.
func (c *Context) InitModules(modules []module.Module) error {
	if c.modulesInitialized {
		return nil
	}
	for _, m := range modules {
		fields, err := m.Init(nil, "")
		if err != nil {
			return types.ErrModuleInit
		}
		c.ModuleOutputs[m.Name()] = fields
	}
	c.modulesInitialized = true
	return nil
}

// SaveBitmaps clones the live VM bitmaps into this context's snapshots,
// the switch-away half of §4.6 step 1.
func (c *Context) SaveBitmaps(ruleBitmap, patternBitmap bitmap.Bitmap) {
	c.RuleBitmapSnapshot = ruleBitmap.Clone()
	c.PatternBitmapSnapshot = patternBitmap.Clone()
}

// InstallBitmaps copies this context's snapshots into the live VM
// bitmaps, the switch-in half of §4.6 step 3.
func (c *Context) InstallBitmaps(ruleBitmap, patternBitmap bitmap.Bitmap) {
	ruleBitmap.CopyFrom(c.RuleBitmapSnapshot)
	patternBitmap.CopyFrom(c.PatternBitmapSnapshot)
}

// NotifyRuleMatch appends ruleID to the drain buffer, called by the VM
// import during evaluation.
func (c *Context) NotifyRuleMatch(ruleID int) {
	c.TempMatchingRules = append(c.TempMatchingRules, ruleID)
}

// DrainTempMatchingRules moves every id out of the drain buffer into the
// persistent non-private/private vectors, de-duplicating against what's
// already recorded (§4.7 step 6).
func (c *Context) DrainTempMatchingRules(rules []types.Rule) {
	for _, ruleID := range c.TempMatchingRules {
		if ruleID < 0 || ruleID >= len(rules) {
			continue
		}
		if rules[ruleID].Private {
			c.PrivateMatchingRules = appendUnique(c.PrivateMatchingRules, ruleID)
		} else {
			c.NonPrivateMatchingRules = appendUnique(c.NonPrivateMatchingRules, ruleID)
		}
	}
	c.TempMatchingRules = c.TempMatchingRules[:0]
}

func appendUnique(list []int, id int) []int {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

// Reset empties every store and vector and zeroes every counter, leaving
// module outputs and their one-time-initialised flag untouched (module
// state isn't stream-lifecycle state, it's stream-identity state).
func (c *Context) Reset() {
	c.PatternMatches.Clear()
	c.NonPrivateMatchingRules = nil
	c.PrivateMatchingRules = nil
	c.TempMatchingRules = nil
	clear(c.UnconfirmedMatches)
	clear(c.LineOffsets)
	c.RuleBitmapSnapshot.Clear()
	c.PatternBitmapSnapshot.Clear()
	c.BytesProcessed = 0
	c.LineCount = 0
	c.GlobalOffset = 0
}

// MemoryUsageEstimate is a rough, documented-as-approximate byte count
// for contexts_memory_usage (§6): the bitmap snapshots plus the pattern
// match store's recorded matches, which dominate a long-lived stream's
// footprint far more than the small fixed-size counters do.
func (c *Context) MemoryUsageEstimate() uint64 {
	const matchSize = 48 // PatternID + ByteRange + *byte + string header, rounded up

	n := uint64(len(c.RuleBitmapSnapshot) + len(c.PatternBitmapSnapshot))
	for _, matches := range c.PatternMatches.Iter() {
		n += uint64(len(matches)) * matchSize
	}
	n += uint64(len(c.NonPrivateMatchingRules)+len(c.PrivateMatchingRules)+len(c.TempMatchingRules)) * 8
	return n
}
