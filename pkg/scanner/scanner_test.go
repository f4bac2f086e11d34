package scanner

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamyara/streamyara/pkg/compiler"
	"github.com/streamyara/streamyara/pkg/types"
)

func mustCompile(t *testing.T, src string) *types.CompiledRules {
	t.Helper()
	cr, err := compiler.Compile(compiler.Source{Namespace: "ns", Text: src})
	require.NoError(t, err)
	return cr
}

func TestNewScannerBuildsOverCompiledRules(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestScanChunkMatchesSimpleStringRule(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte("say hello world")))

	view, ok := s.GetMatches(id)
	require.True(t, ok)

	var names []string
	for r := range view.MatchingRules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"R"}, names)
}

func TestGetMatchesUnknownStreamReturnsFalse(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	_, ok := s.GetMatches(uuid.New())
	assert.False(t, ok)
}

func TestActiveStreamsListsEveryKnownStream(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, s.ScanLine(context.Background(), a, []byte("hi\n")))
	require.NoError(t, s.ScanLine(context.Background(), b, []byte("hi\n")))

	seen := map[uuid.UUID]bool{}
	for id := range s.ActiveStreams() {
		seen[id] = true
	}
	assert.True(t, seen[a])
	assert.True(t, seen[b])
}

func TestCloseStreamRemovesItFromActiveStreams(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanLine(context.Background(), id, []byte("hello\n")))

	final, ok := s.CloseStream(id)
	require.True(t, ok)
	assert.Equal(t, uint64(6), final.BytesProcessed)

	_, ok = s.GetMatches(id)
	assert.False(t, ok)
}

func TestCloseStreamUnknownIDReturnsFalse(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	_, ok := s.CloseStream(uuid.New())
	assert.False(t, ok)
}

func TestRuleMatchCallbackFiresForCurrentlyMatchingNonPrivateRules(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	var calls [][2]string
	s, err := NewScanner(cr, WithRuleMatchCallback(func(namespace string, streamID uuid.UUID, rule string, traceIDs []string) {
		calls = append(calls, [2]string{namespace, rule})
	}))
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte("hello")))
	require.NoError(t, s.ScanChunk(context.Background(), id, []byte(" again")))

	// R keeps matching on the second call too, even though it already
	// matched on the first (§4.7.1: "not only newly matched").
	assert.Len(t, calls, 2)
	assert.Equal(t, "ns", calls[0][0])
	assert.Equal(t, "R", calls[0][1])
}

func TestPrivateRuleNeverReachesCallback(t *testing.T) {
	cr := mustCompile(t, `private rule Hidden { strings: $a="hello" condition: $a }`)
	var calls int
	s, err := NewScanner(cr, WithRuleMatchCallback(func(string, uuid.UUID, string, []string) { calls++ }))
	require.NoError(t, err)

	require.NoError(t, s.ScanChunk(context.Background(), uuid.New(), []byte("hello")))
	assert.Zero(t, calls)
}

func TestContextsMemoryUsageGrowsWithStreams(t *testing.T) {
	cr := mustCompile(t, `rule R { strings: $a="hello" condition: $a }`)
	s, err := NewScanner(cr)
	require.NoError(t, err)

	before := s.ContextsMemoryUsage()
	require.NoError(t, s.ScanChunk(context.Background(), uuid.New(), []byte("hello")))
	assert.Greater(t, s.ContextsMemoryUsage(), before)
}
