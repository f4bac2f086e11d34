package scanner

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamyara/streamyara/pkg/offsetcache"
)

// Scenario A — cross-line accumulation (line mode).
func TestScenarioACrossLineAccumulation(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" $b="world" condition: $a and $b }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanLine(context.Background(), id, []byte("say hello\n")))
	view, _ := s.GetMatches(id)
	assert.Empty(t, collectRuleNames(view))

	require.NoError(t, s.ScanLine(context.Background(), id, []byte("the world\n")))
	view, _ = s.GetMatches(id)
	assert.Equal(t, []string{"R"}, collectRuleNames(view))
}

// Scenario B — within-chunk spanning (chunk mode) vs line mode.
func TestScenarioBWithinChunkSpanning(t *testing.T) {
	cr := mustCompile(t, `rule R2 { strings: $x="ab\ncd" condition: $x }`)

	sLine, err := NewScanner(cr)
	require.NoError(t, err)
	idLine := uuid.New()
	require.NoError(t, sLine.ScanLine(context.Background(), idLine, []byte("ab\ncd")))
	view, _ := sLine.GetMatches(idLine)
	assert.Empty(t, collectRuleNames(view))

	sChunk, err := NewScanner(cr)
	require.NoError(t, err)
	idChunk := uuid.New()
	require.NoError(t, sChunk.ScanChunk(context.Background(), idChunk, []byte("ab\ncd")))
	view, _ = sChunk.GetMatches(idChunk)
	assert.Equal(t, []string{"R2"}, collectRuleNames(view))
}

// Scenario C — trace-id extraction and dedup.
func TestScenarioCTraceIDExtractionAndDedup(t *testing.T) {
	cr := mustCompile(t, `rule E { strings: $e=/ERROR/ condition: $e }`)

	var gotTraceIDs []string
	s, err := NewScanner(cr,
		WithDeduplication(true),
		WithRuleMatchCallback(func(namespace string, id uuid.UUID, rule string, traceIDs []string) {
			gotTraceIDs = append([]string(nil), traceIDs...)
		}),
	)
	require.NoError(t, err)

	id := uuid.New()
	data := "ERROR one trace_id=\"T1\"\nERROR two trace_id=\"T1\"\nERROR three trace_id=\"T2\"\n"
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte(data)))

	sort.Strings(gotTraceIDs)
	assert.Equal(t, []string{"T1", "T2"}, gotTraceIDs)
}

// Scenario D — stream isolation: dedup is per-stream, not global.
func TestScenarioDStreamIsolation(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $e=/ERROR/ condition: $e }`)
	s, err := NewScanner(cr, WithDeduplication(true))
	require.NoError(t, err)

	s1, s2 := uuid.New(), uuid.New()
	require.NoError(t, s.ScanChunk(context.Background(), s1, []byte("ERROR trace_id=\"T1\"\n")))
	require.NoError(t, s.ScanChunk(context.Background(), s2, []byte("ERROR trace_id=\"T1\"\n")))

	v1, _ := s.GetMatches(s1)
	v2, _ := s.GetMatches(s2)
	assert.Equal(t, []string{"R"}, collectRuleNames(v1))
	assert.Equal(t, []string{"R"}, collectRuleNames(v2))
	assert.Equal(t, []string{"T1"}, collectTraceIDs(v1))
	assert.Equal(t, []string{"T1"}, collectTraceIDs(v2))
}

// Scenario E — reset.
func TestScenarioEReset(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" $b="world" condition: $a and $b }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanLine(context.Background(), id, []byte("say hello\n")))
	require.NoError(t, s.ScanLine(context.Background(), id, []byte("the world\n")))

	s.ResetStream(id)
	require.NoError(t, s.ScanLine(context.Background(), id, []byte("hello world\n")))

	view, ok := s.GetMatches(id)
	require.True(t, ok)
	assert.Equal(t, []string{"R"}, collectRuleNames(view))
	assert.Equal(t, uint64(12), view.BytesProcessed())
	assert.Equal(t, uint64(1), view.LineCount())
}

// Scenario F — timeout safety: a pathological rule doesn't hang the
// scanner, and subsequent calls on any stream keep working.
func TestScenarioFTimeoutSafety(t *testing.T) {
	cr := mustCompile(t, `rule Loop { strings: $a="x" condition: #a in (0..filesize) and #a in (0..filesize) and #a in (0..filesize) }`)
	s, err := NewScanner(cr, WithTimeout(time.Nanosecond))
	require.NoError(t, err)

	id := uuid.New()
	err = s.ScanChunk(context.Background(), id, []byte("x"))
	_ = err // the VM may or may not actually observe the nanosecond deadline

	// Regardless of whether this particular call timed out, the scanner
	// must still be usable afterward, on the same and a different stream.
	assert.NotPanics(t, func() {
		_ = s.ScanChunk(context.Background(), id, []byte("x again"))
		_ = s.ScanChunk(context.Background(), uuid.New(), []byte("x again"))
	})
}

// Scenario G — saturating integer reads: an out-of-range read folds the
// rule to false instead of aborting.
func TestScenarioGSaturatingIntegerReads(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="x" condition: uint32(@a + 1099511627776) > 0 }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte("x")))

	view, _ := s.GetMatches(id)
	assert.Empty(t, collectRuleNames(view))
}

// P4 — idempotent restate: scanning empty bytes changes nothing
// observable.
func TestPropertyIdempotentRestateOnEmptyChunk(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	var calls int
	s, err := NewScanner(cr, WithRuleMatchCallback(func(string, uuid.UUID, string, []string) { calls++ }))
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte("hello")))
	viewBefore, _ := s.GetMatches(id)
	bytesBefore, linesBefore := viewBefore.BytesProcessed(), viewBefore.LineCount()
	callsBefore := calls

	require.NoError(t, s.ScanChunk(context.Background(), id, []byte{}))

	viewAfter, _ := s.GetMatches(id)
	assert.Equal(t, bytesBefore, viewAfter.BytesProcessed())
	assert.Equal(t, linesBefore, viewAfter.LineCount())
	assert.Equal(t, collectRuleNames(viewBefore), collectRuleNames(viewAfter))
	assert.Equal(t, callsBefore+1, calls) // R still currently matches, so it still fires once
}

// P1 — monotone bitmaps: a rule that matches stays matched even once the
// triggering bytes are long out of the chunk window.
func TestPropertyMonotoneMatchingRules(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte("hello")))
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte("unrelated bytes")))

	view, _ := s.GetMatches(id)
	assert.Equal(t, []string{"R"}, collectRuleNames(view))
}

// P3 — isolation: interleaving two streams' calls must not affect either
// stream's own results.
func TestPropertyStreamIsolationUnderInterleaving(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, s.ScanChunk(context.Background(), a, []byte("no match here")))
	require.NoError(t, s.ScanChunk(context.Background(), b, []byte("hello")))
	require.NoError(t, s.ScanChunk(context.Background(), a, []byte("hello")))
	require.NoError(t, s.ScanChunk(context.Background(), b, []byte("no match here")))

	va, _ := s.GetMatches(a)
	vb, _ := s.GetMatches(b)
	assert.Equal(t, []string{"R"}, collectRuleNames(va))
	assert.Equal(t, []string{"R"}, collectRuleNames(vb))
	assert.Equal(t, uint64(len("no match here")+len("hello")), va.BytesProcessed())
	assert.Equal(t, uint64(len("hello")+len("no match here")), vb.BytesProcessed())
}

// Offset cache round trip: a rule reading bytes from an earlier,
// already-scrolled-out-of-window line, via the hybrid fast-path/cache read.
func TestOffsetCacheServesReadsOutsideCurrentWindow(t *testing.T) {
	durable := newFakeDurableStore()
	cache, err := offsetcache.New(16, durable, nil)
	require.NoError(t, err)

	// $f only appears in the second chunk, so the condition can't go true
	// until then — by which point offset 0 (the 'E' of "ERROR", recorded
	// against trace-id T1 in the first chunk) has scrolled out of the
	// current window and can only be read back through the cache.
	cr := mustCompile(t, `rule R { strings: $e=/ERROR/ $f="more" condition: $e and $f and uint8(0) == 69 }`)
	s, err := NewScanner(cr, WithOffsetCache(cache))
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte("ERROR trace_id=\"T1\"\n")))
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte("more bytes after\n")))

	view, _ := s.GetMatches(id)
	assert.Equal(t, []string{"R"}, collectRuleNames(view))
}

func collectRuleNames(view *StreamResultsView) []string {
	var names []string
	for r := range view.MatchingRules() {
		names = append(names, r.Name)
	}
	return names
}

func collectTraceIDs(view *StreamResultsView) []string {
	var ids []string
	for id := range view.TraceIDs() {
		ids = append(ids, id)
	}
	return ids
}

type fakeDurableStore struct {
	data map[string][]byte
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{data: make(map[string][]byte)}
}

func (f *fakeDurableStore) Put(traceID string, line []byte) error {
	f.data[traceID] = append([]byte(nil), line...)
	return nil
}

func (f *fakeDurableStore) Get(traceID string) ([]byte, bool, error) {
	v, ok := f.data[traceID]
	return v, ok, nil
}

func (f *fakeDurableStore) Delete(traceID string) error { delete(f.data, traceID); return nil }
func (f *fakeDurableStore) Flush() error                { return nil }
func (f *fakeDurableStore) Clear() error                { f.data = make(map[string][]byte); return nil }
func (f *fakeDurableStore) Close() error                { return nil }
