package compiler

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/streamyara/streamyara/pkg/types"
)

// Source is one named chunk of rule text to compile, e.g. the contents of
// a single .yar file. Namespace scopes rule names the way YARA namespaces
// do: two sources may each define a rule named "suspicious" without
// colliding, as long as their namespaces differ.
type Source struct {
	Namespace string
	Text      string
}

// Compile parses and flattens one or more rule sources into a single
// CompiledRules, assigning dense rule and pattern ids across all of them.
// Pattern ids are assigned by the parser itself (see parser.go); Compile's
// job is turning each rawRule/rawPattern into the real types.Rule/
// types.Pattern the rest of the engine consumes.
func Compile(sources ...Source) (*types.CompiledRules, error) {
	var allRaw []rawRule
	nextID := 0
	for _, src := range sources {
		rules, base, err := parseFile(src.Text, nextID)
		if err != nil {
			return nil, fmt.Errorf("compiler: %s: %w", src.Namespace, err)
		}
		for i := range rules {
			rules[i].namespace = src.Namespace
		}
		allRaw = append(allRaw, rules...)
		nextID = base
	}

	patterns := make([]types.Pattern, nextID)
	seen := make([]bool, nextID)

	rules := make([]types.Rule, 0, len(allRaw))
	for ruleID, raw := range allRaw {
		for i, rp := range raw.patterns {
			id := raw.patternIDs[i]
			pat, err := buildPattern(id, rp)
			if err != nil {
				return nil, fmt.Errorf("compiler: rule %s: pattern $%s: %w", raw.name, rp.name, err)
			}
			patterns[id] = pat
			seen[id] = true
		}
		rules = append(rules, types.Rule{
			ID:        ruleID,
			Namespace: raw.namespace,
			Name:      raw.name,
			Private:   raw.private,
			Patterns:  raw.patternIDs,
			Condition: raw.condition,
		})
	}

	for id, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("compiler: pattern id %d never assigned a definition", id)
		}
	}

	return &types.CompiledRules{Rules: rules, Patterns: patterns}, nil
}

// buildPattern turns a parsed-but-unatomized rawPattern into the
// types.Pattern the rest of the engine (automaton, verifier, bitmap) keys
// off of: computing the Aho-Corasick seed atom and deciding whether an
// atom hit alone proves the match or needs further verification.
func buildPattern(id int, rp rawPattern) (types.Pattern, error) {
	pat := types.Pattern{
		ID:              id,
		Name:            rp.name,
		Kind:            rp.kind,
		CaseInsensitive: rp.caseInsensitive,
		Wide:            rp.wide,
		Ascii:           rp.ascii,
		Xor:             rp.xor,
	}

	switch rp.kind {
	case types.KindString:
		lit := []byte(rp.literal)
		if rp.wide {
			lit = toUTF16LE(rp.literal)
		}
		pat.Value = lit
		pat.Atom = lit
		// An exact atom hit proves the match only when nothing downstream
		// of the automaton can still change whether it counts: no
		// case-folding, no wide re-interpretation ambiguity, no XOR key
		// search.
		pat.Exact = !rp.caseInsensitive && !rp.xor

	case types.KindRegex:
		pat.Regex = rp.literal
		pat.Atom = literalAtomFromRegex(rp.literal)
		pat.Exact = false

	case types.KindHex:
		value, mask, jumpMin, jumpMax, err := parseHexPattern(rp.hexBody)
		if err != nil {
			return pat, err
		}
		if jumpMin < 0 {
			pat.Value = value
			pat.Mask = mask
			pat.Atom = maskedAtom(value, mask)
			pat.Exact = allConcrete(mask)
			break
		}
		// The jump sits after as many bytes as there are byte tokens
		// before its "[n-m]" token.
		split := 0
		for _, f := range strings.Fields(rp.hexBody) {
			if strings.HasPrefix(f, "[") {
				break
			}
			split++
		}
		head, tail := value[:split], value[split:]
		headMask, tailMask := mask[:split], mask[split:]
		pat.Value = head
		pat.Mask = headMask
		pat.Atom = maskedAtom(head, headMask)
		pat.Exact = false // chained pattern, tail must still be verified
		pat.JumpMin = 0
		pat.JumpMax = -1
		pat.Sub = &types.Pattern{
			ID:      id,
			Name:    rp.name,
			Kind:    types.KindHex,
			Value:   tail,
			Mask:    tailMask,
			Atom:    maskedAtom(tail, tailMask),
			Exact:   allConcrete(tailMask),
			JumpMin: jumpMin,
			JumpMax: jumpMax,
		}

	default:
		return pat, fmt.Errorf("unknown pattern kind %v", rp.kind)
	}

	return pat, nil
}

func allConcrete(mask []byte) bool {
	for _, b := range mask {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func toUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}
