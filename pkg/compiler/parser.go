package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/streamyara/streamyara/pkg/types"
)

// rawPattern is a parsed, not-yet-atomized pattern definition scoped to one
// rule (pattern names like "$a" are only unique within a rule, the way
// YARA scopes them).
type rawPattern struct {
	name            string
	kind            types.PatternKind
	literal         string // KindString / KindRegex source text
	hexBody         string // KindHex raw "41 42 ?? 43" text
	caseInsensitive bool
	wide            bool
	ascii           bool
	xor             bool
}

type rawRule struct {
	name       string
	namespace  string
	private    bool
	patterns   []rawPattern
	patternIDs []int // global pattern id for each entry in patterns, same order
	condition  types.Condition
}

var readFuncWidths = map[string]struct {
	width  int
	signed bool
}{
	"uint8": {8, false}, "int8": {8, true},
	"uint16": {16, false}, "int16": {16, true},
	"uint32": {32, false}, "int32": {32, true},
	"uint64": {64, false}, "int64": {64, true},
}

type parser struct {
	lex *lexer
	cur token
	// patternIndex maps "$name" -> that pattern's dense *global* id
	// (across every rule parsed from this source), assigned as patterns
	// are parsed so condition expressions can embed the final id directly
	// instead of needing a second remapping pass.
	patternIndex map[string]int
	nextPatternID int
}

func newParser(src string, patternIDBase int) (*parser, error) {
	p := &parser{lex: newLexer(src), nextPatternID: patternIDBase}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) isPunct(s string) bool { return p.cur.kind == tokPunct && p.cur.text == s }
func (p *parser) isIdent(s string) bool { return p.cur.kind == tokIdent && p.cur.text == s }

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return fmt.Errorf("compiler: expected %q at byte %d, got %q", s, p.cur.pos, p.cur.text)
	}
	return p.advance()
}

func (p *parser) expectIdent(s string) error {
	if !p.isIdent(s) {
		return fmt.Errorf("compiler: expected keyword %q at byte %d, got %q", s, p.cur.pos, p.cur.text)
	}
	return p.advance()
}

// parseFile parses zero or more `rule ... { ... }` blocks. patternIDBase
// lets the caller (compile.go, combining several rule sources) keep
// pattern ids dense and unique across the whole compilation, not just
// within one source's text.
func parseFile(src string, patternIDBase int) ([]rawRule, int, error) {
	p, err := newParser(src, patternIDBase)
	if err != nil {
		return nil, 0, err
	}
	var rules []rawRule
	for p.cur.kind != tokEOF {
		r, err := p.parseRule()
		if err != nil {
			return nil, 0, err
		}
		rules = append(rules, r)
	}
	return rules, p.nextPatternID, nil
}

func (p *parser) parseRule() (rawRule, error) {
	var r rawRule
	if p.isIdent("private") {
		r.private = true
		if err := p.advance(); err != nil {
			return r, err
		}
	}
	if err := p.expectIdent("rule"); err != nil {
		return r, err
	}
	if p.cur.kind != tokIdent {
		return r, fmt.Errorf("compiler: expected rule name at byte %d", p.cur.pos)
	}
	r.name = p.cur.text
	if err := p.advance(); err != nil {
		return r, err
	}
	if err := p.expectPunct("{"); err != nil {
		return r, err
	}

	p.patternIndex = make(map[string]int)

	if p.isIdent("strings") {
		if err := p.advance(); err != nil {
			return r, err
		}
		if err := p.expectPunct(":"); err != nil {
			return r, err
		}
		for p.cur.kind == tokPunct && p.cur.text == "$" {
			pat, err := p.parsePatternDef()
			if err != nil {
				return r, err
			}
			id := p.nextPatternID
			p.nextPatternID++
			p.patternIndex[pat.name] = id
			r.patterns = append(r.patterns, pat)
			r.patternIDs = append(r.patternIDs, id)
		}
	}

	if err := p.expectIdent("condition"); err != nil {
		return r, err
	}
	if err := p.expectPunct(":"); err != nil {
		return r, err
	}
	cond, err := p.parseOr()
	if err != nil {
		return r, err
	}
	r.condition = cond

	if err := p.expectPunct("}"); err != nil {
		return r, err
	}
	return r, nil
}

func (p *parser) parsePatternDef() (rawPattern, error) {
	var pat rawPattern
	if err := p.expectPunct("$"); err != nil {
		return pat, err
	}
	if p.cur.kind != tokIdent {
		return pat, fmt.Errorf("compiler: expected pattern name at byte %d", p.cur.pos)
	}
	pat.name = p.cur.text
	if err := p.advance(); err != nil {
		return pat, err
	}
	if err := p.expectPunct("="); err != nil {
		return pat, err
	}

	switch {
	case p.cur.kind == tokString:
		pat.kind = types.KindString
		pat.literal = p.cur.text
		if err := p.advance(); err != nil {
			return pat, err
		}
	case p.cur.kind == tokRegex:
		pat.kind = types.KindRegex
		pat.literal = p.cur.text
		if err := p.advance(); err != nil {
			return pat, err
		}
	case p.isPunct("{"):
		if err := p.advance(); err != nil {
			return pat, err
		}
		body, err := p.lex.lexHexBody()
		if err != nil {
			return pat, err
		}
		pat.kind = types.KindHex
		pat.hexBody = body
		if err := p.advance(); err != nil {
			return pat, err
		}
	default:
		return pat, fmt.Errorf("compiler: expected pattern value at byte %d", p.cur.pos)
	}

	for p.cur.kind == tokIdent {
		switch p.cur.text {
		case "nocase":
			pat.caseInsensitive = true
		case "wide":
			pat.wide = true
		case "ascii":
			pat.ascii = true
		case "xor":
			pat.xor = true
		default:
			return pat, nil
		}
		if err := p.advance(); err != nil {
			return pat, err
		}
	}
	return pat, nil
}

// --- condition expression parsing ---

func (p *parser) parseOr() (types.Condition, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isIdent("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = types.Or{L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (types.Condition, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isIdent("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = types.And{L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseNot() (types.Condition, error) {
	if p.isIdent("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return types.Not{X: x}, nil
	}
	return p.parseComparison()
}

var compareOps = map[string]types.CompareOp{
	"==": types.OpEq, "!=": types.OpNe,
	"<": types.OpLt, "<=": types.OpLe,
	">": types.OpGt, ">=": types.OpGe,
}

func (p *parser) parseComparison() (types.Condition, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokPunct {
		if op, ok := compareOps[p.cur.text]; ok {
			if err := p.advance(); err != nil {
				return nil, err
			}
			r, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return types.Compare{Op: op, L: l, R: r}, nil
		}
	}
	return l, nil
}

func (p *parser) parseAdditive() (types.Condition, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := types.OpAdd
		if p.cur.text == "-" {
			op = types.OpSub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = types.Arith{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseTerm() (types.Condition, error) {
	l, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		l = types.Arith{Op: types.OpMul, L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseFactor() (types.Condition, error) {
	switch {
	case p.isPunct("("):
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil

	case p.isIdent("true"):
		p.advance()
		return types.BoolLit{V: true}, nil

	case p.isIdent("false"):
		p.advance()
		return types.BoolLit{V: false}, nil

	case p.isIdent("filesize"):
		p.advance()
		return types.FilesizeExpr{}, nil

	case p.cur.kind == tokNumber:
		v, err := parseIntLiteral(p.cur.text)
		if err != nil {
			return nil, err
		}
		p.advance()
		return types.IntLit{V: v}, nil

	case p.cur.kind == tokString:
		v := p.cur.text
		p.advance()
		return types.StringLit{V: v}, nil

	case p.isPunct("$"):
		p.advance()
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		id, err := p.resolvePattern(name)
		if err != nil {
			return nil, err
		}
		return types.PatternTest{PatternID: id}, nil

	case p.isPunct("#"):
		p.advance()
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		id, err := p.resolvePattern(name)
		if err != nil {
			return nil, err
		}
		if p.isIdent("in") {
			p.advance()
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			lo, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(".."); err != nil {
				return nil, err
			}
			hi, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return types.PatternCountInRangeExpr{PatternID: id, Lo: lo, Hi: hi}, nil
		}
		return types.PatternCountExpr{PatternID: id}, nil

	case p.isPunct("@"):
		p.advance()
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		id, err := p.resolvePattern(name)
		if err != nil {
			return nil, err
		}
		n, err := p.parseOptionalIndex()
		if err != nil {
			return nil, err
		}
		return types.PatternOffsetExpr{PatternID: id, N: n}, nil

	case p.isPunct("!"):
		p.advance()
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		id, err := p.resolvePattern(name)
		if err != nil {
			return nil, err
		}
		n, err := p.parseOptionalIndex()
		if err != nil {
			return nil, err
		}
		return types.PatternLengthExpr{PatternID: id, N: n}, nil

	case p.cur.kind == tokIdent:
		name := p.cur.text
		if w, ok := readFuncWidths[name]; ok {
			p.advance()
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			addr, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return types.IntRead{Width: w.width, Signed: w.signed, Addr: addr}, nil
		}
		p.advance()
		if p.isPunct(".") {
			p.advance()
			if p.cur.kind != tokIdent {
				return nil, fmt.Errorf("compiler: expected field name after %q. at byte %d", name, p.cur.pos)
			}
			field := p.cur.text
			p.advance()
			return types.ModuleFieldExpr{Module: name, Field: field}, nil
		}
		return nil, fmt.Errorf("compiler: unexpected identifier %q at byte %d", name, p.cur.pos)

	default:
		return nil, fmt.Errorf("compiler: unexpected token %q at byte %d", p.cur.text, p.cur.pos)
	}
}

// parseOptionalIndex parses an optional `[n]` suffix, defaulting to IntLit{1}
// (YARA's @a / !a with no index means the first match).
func (p *parser) parseOptionalIndex() (types.Condition, error) {
	if !p.isPunct("[") {
		return types.IntLit{V: 1}, nil
	}
	p.advance()
	n, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) resolvePattern(name string) (int, error) {
	id, ok := p.patternIndex[name]
	if !ok {
		return 0, fmt.Errorf("compiler: undefined pattern $%s", name)
	}
	return id, nil
}

func parseIntLiteral(text string) (int64, error) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		v, err := strconv.ParseInt(text[2:], 16, 64)
		return v, err
	}
	return strconv.ParseInt(text, 10, 64)
}
