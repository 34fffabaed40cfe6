// internal/access/parser.go
package access

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedRule = errors.New("unsupported rule expression")

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '.' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// lex splits a lowercased rule into tokens. Anything outside the grammar,
// parentheses included, is an error.
func lex(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(src[i:], "==="), strings.HasPrefix(src[i:], "!=="):
			kind := tokEq
			if c == '!' {
				kind = tokNeq
			}
			toks = append(toks, token{kind: kind, text: src[i : i+3]})
			i += 3
		case strings.HasPrefix(src[i:], "=="):
			toks = append(toks, token{kind: tokEq, text: "=="})
			i += 2
		case strings.HasPrefix(src[i:], "!="):
			toks = append(toks, token{kind: tokNeq, text: "!="})
			i += 2
		case strings.HasPrefix(src[i:], "&&"):
			toks = append(toks, token{kind: tokAnd, text: "&&"})
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			toks = append(toks, token{kind: tokOr, text: "||"})
			i += 2
		case isIdentByte(c):
			start := i
			for i < len(src) && isIdentByte(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i]})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrUnsupportedRule, c, i)
		}
	}
	return append(toks, token{kind: tokEOF}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// Parse turns a rule into its AST. The rule is matched case-insensitively.
//
// "&&" separates conjuncts and each conjunct is a "||" list, so
// `a || b && c` means `(a || b) && c`.
func Parse(rule string) (Node, error) {
	src := strings.ToLower(strings.TrimSpace(rule))
	if src == "" {
		return nil, fmt.Errorf("%w: empty rule", ErrUnsupportedRule)
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	node, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q", ErrUnsupportedRule, t.text)
	}
	return node, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.peek().kind == tokAnd {
		p.next()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return And{Terms: terms}, nil
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.peek().kind == tokOr {
		p.next()
		n, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Or{Terms: terms}, nil
}

func (p *parser) parseTerm() (Node, error) {
	t := p.next()
	if t.kind != tokIdent {
		return nil, fmt.Errorf("%w: expected operand, got %q", ErrUnsupportedRule, t.text)
	}

	switch t.text {
	case "true":
		return Literal{Value: true}, nil
	case "false":
		return Literal{Value: false}, nil
	case "auth.id":
	default:
		return nil, fmt.Errorf("%w: unknown operand %q", ErrUnsupportedRule, t.text)
	}

	op := p.next()
	if op.kind != tokEq && op.kind != tokNeq {
		return nil, fmt.Errorf("%w: expected comparison after auth.id", ErrUnsupportedRule)
	}
	negate := op.kind == tokNeq

	rhs := p.next()
	if rhs.kind != tokIdent || strings.Contains(rhs.text, ".") {
		return nil, fmt.Errorf("%w: expected field name or null", ErrUnsupportedRule)
	}
	if rhs.text == "null" {
		return IdentityPresence{Present: negate}, nil
	}
	return FieldComparison{Field: rhs.text, Negate: negate}, nil
}
