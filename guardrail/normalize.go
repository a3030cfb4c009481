//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

package guardrail

import "strings"

// mathChars is the allowed character set after normalization.
const mathChars = "0123456789+-*/^(). "

// wordOps maps spelled-out or typographic operators to their symbols.
// Order matters: a phrase must be substituted before any shorter phrase
// that is a substring of it ("multiplied by" before "x").
var wordOps = [...]struct {
	word string
	op   string
}{
	{"divided by", "/"},
	{"over", "/"},
	{"times", "*"},
	{"multiplied by", "*"},
	{"x", "*"},
	{"×", "*"},
	{"·", "*"},
	{"plus", "+"},
	{"minus", "-"},
	{"–", "-"}, // en-dash
	{"—", "-"}, // em-dash
	{"÷", "/"},
}

// Normalize rewrites free text into a form the extractor can scan:
// lowercased, truncated at the first "=" (an asserted result is never
// trusted), operator words substituted, filtered to the math character set,
// and whitespace collapsed.
func Normalize(text string) string {
	s := strings.ToLower(text)
	if i := strings.IndexByte(s, '='); i >= 0 {
		s = s[:i]
	}
	for _, sub := range wordOps {
		s = strings.ReplaceAll(s, sub.word, sub.op)
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isMathRune(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isMathRune(r rune) bool {
	return strings.ContainsRune(mathChars, r)
}
