package scanner

import (
	"time"

	"github.com/streamyara/streamyara/pkg/module"
	"github.com/streamyara/streamyara/pkg/offsetcache"
)

// Option configures a Scanner at construction time. The spec's
// set_timeout/enable_offset_cache/enable_deduplication/
// set_rule_match_callback methods (§6) are collapsed into functional
// options here, the idiomatic Go shape the teacher's own constructors use
// throughout (e.g. pkg/matcher's backend options).
type Option func(*Scanner)

// WithTimeout bounds every scan call's VM run: the timeout heartbeat
// described in §5 is modeled directly as context.WithTimeout per call
// rather than a separately ticking epoch goroutine, since Go's own
// context deadline machinery already provides the same preemption
// guarantee without a bespoke ticker.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.timeout = d }
}

// WithOffsetCache installs the durable+LRU hybrid cache backing the VM's
// out-of-window integer reads (§4.7/§4.8). Omitted entirely, reads
// outside the current chunk window simply fail (ok=false).
func WithOffsetCache(cache *offsetcache.Cache) Option {
	return func(s *Scanner) { s.offsetCache = cache }
}

// WithDeduplication enables trace-id-based match deduplication for every
// stream created after this option is applied (§4.3 dedup variant).
func WithDeduplication(enabled bool) Option {
	return func(s *Scanner) { s.dedup = enabled }
}

// WithRuleMatchCallback installs the rule-match callback (§4.7.1).
func WithRuleMatchCallback(cb Callback) Option {
	return func(s *Scanner) { s.callback = cb }
}

// WithModules registers the module collaborators initialised on each
// stream's first touch (§4.9).
func WithModules(modules ...module.Module) Option {
	return func(s *Scanner) { s.modules = modules }
}

// WithMatchCap overrides the per-pattern match cap (§4.2 cap policy,
// default matchstore.DefaultCap).
func WithMatchCap(cap int) Option {
	return func(s *Scanner) { s.matchCap = cap }
}

// WithLogger installs a diagnostic sink; defaults to NoopLogger.
func WithLogger(logger Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}
