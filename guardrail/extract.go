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
	"sort"
	"strings"
)

const operatorChars = "+-*/^"

// Extract scans normalized text for the best arithmetic candidate.
//
// A candidate is a maximal run of math characters that, after space
// removal, still contains at least one operator; a bare number does not
// qualify. The longest candidate wins; among equal lengths the one
// appearing later in the text wins (stable sort by length, last element).
// Returns "" when nothing qualifies.
func Extract(normalized string) string {
	var candidates []string
	for _, run := range splitMathRuns(normalized) {
		c := strings.ReplaceAll(run, " ", "")
		if c == "" {
			continue
		}
		if !strings.ContainsAny(c, operatorChars) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) < len(candidates[j])
	})
	return candidates[len(candidates)-1]
}

// splitMathRuns returns the maximal runs of math characters in s. After
// Normalize the whole string is one run, but Extract re-scans defensively
// so it stays correct on arbitrary input.
func splitMathRuns(s string) []string {
	var runs []string
	start := -1
	for i, r := range s {
		if isMathRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, s[start:])
	}
	return runs
}
