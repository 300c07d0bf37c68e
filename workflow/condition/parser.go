package condition

import (
	"fmt"
	"strconv"
)

// parser is a recursive-descent parser following Python operator precedence:
// or < and < not < comparison < additive < multiplicative < unary < postfix.
type parser struct {
	tokens []token
	pos    int
}

func parse(expr string) (node, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tkEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", t.value, t.pos)
	}
	return root, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(values ...string) bool {
	t := p.peek()
	if t.kind != tkOp && t.kind != tkIdent {
		return false
	}
	for _, v := range values {
		if t.value == v {
			return true
		}
	}
	return false
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		if t.kind == tkEOF {
			return t, fmt.Errorf("expected %s, got end of expression", what)
		}
		return t, fmt.Errorf("expected %s at position %d, got %q", what, t.pos, t.value)
	}
	return p.advance(), nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("or", "||") {
		t := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{pos: t.pos, op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isOp("and", "&&") {
		t := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{pos: t.pos, op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isOp("not", "!") {
		t := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{pos: t.pos, op: "not", operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	cmp := &compareNode{pos: left.position(), left: left}
	for {
		op, ok := p.comparisonOp()
		if !ok {
			break
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp.ops = append(cmp.ops, op)
		cmp.rights = append(cmp.rights, right)
	}
	if len(cmp.ops) == 0 {
		return left, nil
	}
	return cmp, nil
}

// comparisonOp consumes a comparison operator, including the two-token
// forms "not in" and "is not".
func (p *parser) comparisonOp() (string, bool) {
	t := p.peek()
	switch {
	case t.kind == tkOp && (t.value == "==" || t.value == "!=" || t.value == "<" ||
		t.value == "<=" || t.value == ">" || t.value == ">="):
		p.advance()
		return t.value, true
	case t.kind == tkIdent && t.value == "in":
		p.advance()
		return "in", true
	case t.kind == tkIdent && t.value == "not" &&
		p.tokens[p.pos+1].kind == tkIdent && p.tokens[p.pos+1].value == "in":
		p.pos += 2
		return "not in", true
	case t.kind == tkIdent && t.value == "is":
		p.advance()
		if next := p.peek(); next.kind == tkIdent && next.value == "not" {
			p.advance()
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tkOp && (p.peek().value == "+" || p.peek().value == "-") {
		t := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{pos: t.pos, op: t.value, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tkOp {
		op := p.peek().value
		if op != "*" && op != "/" && op != "//" && op != "%" {
			break
		}
		t := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{pos: t.pos, op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if t := p.peek(); t.kind == tkOp && (t.value == "-" || t.value == "+") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{pos: t.pos, op: t.value, operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	target, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch t.kind {
		case tkDot:
			p.advance()
			name, err := p.expect(tkIdent, "attribute name")
			if err != nil {
				return nil, err
			}
			target = &attrNode{pos: t.pos, target: target, name: name.value}
		case tkLBracket:
			p.advance()
			index, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tkRBracket, "']'"); err != nil {
				return nil, err
			}
			target = &indexNode{pos: t.pos, target: target, index: index}
		case tkLParen:
			p.advance()
			args, err := p.parseSequence(tkRParen, "')'")
			if err != nil {
				return nil, err
			}
			target = &callNode{pos: t.pos, fn: target, args: args}
		default:
			return target, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tkInt:
		p.advance()
		v, err := strconv.ParseInt(t.value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", t.value, err)
		}
		return &literalNode{pos: t.pos, value: v}, nil

	case tkFloat:
		p.advance()
		v, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.value, err)
		}
		return &literalNode{pos: t.pos, value: v}, nil

	case tkString:
		p.advance()
		return &literalNode{pos: t.pos, value: t.value}, nil

	case tkIdent:
		switch t.value {
		case "true", "True":
			p.advance()
			return &literalNode{pos: t.pos, value: true}, nil
		case "false", "False":
			p.advance()
			return &literalNode{pos: t.pos, value: false}, nil
		case "None", "null":
			p.advance()
			return &literalNode{pos: t.pos, value: nil}, nil
		case "and", "or", "not", "in", "is":
			return nil, fmt.Errorf("unexpected keyword %q at position %d", t.value, t.pos)
		}
		p.advance()
		return &nameNode{pos: t.pos, name: t.value}, nil

	case tkLParen:
		p.advance()
		if p.peek().kind == tkRParen {
			p.advance()
			return &listNode{pos: t.pos, tuple: true}, nil
		}
		first, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind == tkRParen {
			p.advance()
			return first, nil
		}
		if _, err := p.expect(tkComma, "',' or ')'"); err != nil {
			return nil, err
		}
		rest, err := p.parseSequence(tkRParen, "')'")
		if err != nil {
			return nil, err
		}
		return &listNode{pos: t.pos, elems: append([]node{first}, rest...), tuple: true}, nil

	case tkLBracket:
		p.advance()
		elems, err := p.parseSequence(tkRBracket, "']'")
		if err != nil {
			return nil, err
		}
		return &listNode{pos: t.pos, elems: elems}, nil

	case tkLBrace:
		p.advance()
		return p.parseDict(t.pos)

	case tkEOF:
		return nil, fmt.Errorf("unexpected end of expression")

	default:
		return nil, fmt.Errorf("unexpected token %q at position %d", t.value, t.pos)
	}
}

// parseSequence parses comma separated expressions up to and including the
// closing token. A trailing comma is accepted.
func (p *parser) parseSequence(closing tokenKind, what string) ([]node, error) {
	var elems []node
	for p.peek().kind != closing {
		elem, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.peek().kind != tkComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(closing, what); err != nil {
		return nil, err
	}
	return elems, nil
}

func (p *parser) parseDict(pos int) (node, error) {
	d := &dictNode{pos: pos}
	for p.peek().kind != tkRBrace {
		key, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkColon, "':'"); err != nil {
			return nil, err
		}
		value, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		d.keys = append(d.keys, key)
		d.values = append(d.values, value)
		if p.peek().kind != tkComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(tkRBrace, "'}'"); err != nil {
		return nil, err
	}
	return d, nil
}
