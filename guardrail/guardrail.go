//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package guardrail implements the deterministic arithmetic path that
// intercepts obviously-arithmetic chat input before it reaches the model.
//
// The pipeline is Normalize -> Extract -> Parse -> Evaluate. Each stage is a
// pure function. The evaluator is restricted by construction: the parser
// emits a closed set of node kinds covering the five operators
// (+ - * / ^) and nothing else, so there is no way to express identifiers,
// calls or assignment.
package guardrail

import "errors"

var (
	// ErrUnsupportedExpression is returned when a candidate does not fully
	// match the arithmetic grammar.
	ErrUnsupportedExpression = errors.New("unsupported expression")

	// ErrDivisionByZero is returned when a division's divisor evaluates to
	// exactly zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Eval parses and evaluates a candidate expression, returning the result
// rendered as text. Integral results render as integers ("3", not "3.0").
func Eval(candidate string) (string, error) {
	node, err := Parse(candidate)
	if err != nil {
		return "", err
	}
	value, err := Evaluate(node)
	if err != nil {
		return "", err
	}
	return Format(value), nil
}
