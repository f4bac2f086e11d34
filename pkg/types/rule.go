package types

// Rule is one compiled boolean predicate over a set of named patterns.
// Namespace groups rules the way YARA namespaces do (usually one per
// loaded rule file); it is reported to the rule-match callback alongside
// the rule name so two rules named the same in different namespaces
// don't collide in caller-facing output.
type Rule struct {
	ID        int // dense index into CompiledRules.Rules
	Namespace string
	Name      string
	Private   bool // private rules never reach the rule-match callback (§4.7.1)
	Patterns  []int // pattern IDs this rule defines; used to collect the rule's trace ids for the callback
	Condition Condition
}

// CompiledRules is the immutable, shared, read-only product of the rule
// compiler (an external collaborator, §1/§6). Every scanner borrows the
// same *CompiledRules; nothing in this package ever mutates one after
// Compile returns it.
type CompiledRules struct {
	Rules    []Rule
	Patterns []Pattern
}

// RuleCount and PatternCount give the bitmap packages their sizes without
// reaching into the slices directly.
func (c *CompiledRules) RuleCount() int    { return len(c.Rules) }
func (c *CompiledRules) PatternCount() int { return len(c.Patterns) }
