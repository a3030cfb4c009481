//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

package guardrail

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is one node of a parsed arithmetic expression. The set of
// implementations is closed: literal, unary and binary. Nothing else can be
// produced by Parse, which is what makes Evaluate auditable.
type Node interface {
	node()
}

type literal struct {
	value float64
}

type unary struct {
	op      byte // '+' or '-'
	operand Node
}

type binary struct {
	op    byte // one of + - * / ^
	left  Node
	right Node
}

func (literal) node() {}
func (unary) node()   {}
func (binary) node()  {}

// Parse builds an expression tree from a candidate string.
//
// Grammar:
//
//	expr    := term (('+' | '-') term)*
//	term    := factor (('*' | '/') factor)*
//	factor  := ['+' | '-'] primary ['^' factor]
//	primary := number | '(' expr ')'
//
// A leading sign applies to the whole factor, so -2^2 is -(2^2).
// Exponentiation is right-associative. Anything outside the grammar fails
// with ErrUnsupportedExpression.
func Parse(candidate string) (Node, error) {
	p := &parser{input: candidate}
	p.skipSpaces()
	if p.eof() {
		return nil, fmt.Errorf("%w: empty candidate", ErrUnsupportedExpression)
	}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if !p.eof() {
		return nil, p.errAt("trailing input")
	}
	return node, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) parseExpr() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptAny("+-")
		if !ok {
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptAny("*/")
		if !ok {
			return left, nil
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseFactor() (Node, error) {
	if op, ok := p.acceptAny("+-"); ok {
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return unary{op: op, operand: operand}, nil
	}
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptAny("^"); ok {
		exp, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return binary{op: '^', left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (Node, error) {
	if _, ok := p.acceptAny("("); ok {
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, ok := p.acceptAny(")"); !ok {
			return nil, p.errAt("expected ')'")
		}
		return inner, nil
	}
	return p.parseNumber()
}

func (p *parser) parseNumber() (Node, error) {
	p.skipSpaces()
	start := p.pos
	for !p.eof() && isDigit(p.input[p.pos]) {
		p.pos++
	}
	if !p.eof() && p.input[p.pos] == '.' {
		p.pos++
		for !p.eof() && isDigit(p.input[p.pos]) {
			p.pos++
		}
	}
	text := p.input[start:p.pos]
	if text == "" || text == "." {
		p.pos = start
		return nil, p.errAt("expected number")
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad number %q", ErrUnsupportedExpression, text)
	}
	return literal{value: value}, nil
}

// acceptAny consumes and returns the next byte if it is one of set.
func (p *parser) acceptAny(set string) (byte, bool) {
	p.skipSpaces()
	if p.eof() {
		return 0, false
	}
	c := p.input[p.pos]
	if strings.IndexByte(set, c) < 0 {
		return 0, false
	}
	p.pos++
	return c, true
}

func (p *parser) skipSpaces() {
	for !p.eof() && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *parser) errAt(msg string) error {
	return fmt.Errorf("%w: %s at offset %d", ErrUnsupportedExpression, msg, p.pos)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
