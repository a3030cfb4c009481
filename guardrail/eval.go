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
	"math"
	"strconv"
)

// maxExactInt is the largest float64 magnitude rendered in integer form.
// Beyond 2^53 the float can no longer represent every integer exactly.
const maxExactInt = 1 << 53

// Evaluate walks the tree bottom-up in float64 arithmetic. Division by a
// divisor that evaluates to exactly zero returns ErrDivisionByZero, and a
// non-finite result (0^-1, an overflowing exponent) returns
// ErrUnsupportedExpression so the reply is never "+Inf" or "NaN".
func Evaluate(n Node) (float64, error) {
	v, err := eval(n)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: non-finite result", ErrUnsupportedExpression)
	}
	return v, nil
}

func eval(n Node) (float64, error) {
	switch node := n.(type) {
	case literal:
		return node.value, nil
	case unary:
		v, err := eval(node.operand)
		if err != nil {
			return 0, err
		}
		if node.op == '-' {
			return -v, nil
		}
		return v, nil
	case binary:
		left, err := eval(node.left)
		if err != nil {
			return 0, err
		}
		right, err := eval(node.right)
		if err != nil {
			return 0, err
		}
		switch node.op {
		case '+':
			return left + right, nil
		case '-':
			return left - right, nil
		case '*':
			return left * right, nil
		case '/':
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			return left / right, nil
		case '^':
			return math.Pow(left, right), nil
		}
	}
	// Unreachable for trees built by Parse.
	return 0, fmt.Errorf("%w: unknown node", ErrUnsupportedExpression)
}

// Format renders a result, canonicalizing integral values to integer form.
func Format(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < maxExactInt {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
