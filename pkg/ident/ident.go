// Copyright (c) 2026 Divvy. All rights reserved.

// Package ident canonicalizes login identifiers before they are stored or compared.
//
// # Usage
//
// Usernames and e-mail addresses are unique case-insensitively. Both are
// folded here so "Alice", "ALICE" and the full-width "Ａｌｉｃｅ" resolve to the
// same account, and the database only ever sees the canonical form.
package ident

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Username returns the canonical form of a username.
//
// # Transformation Pipeline
//
// 1. Trims surrounding whitespace.
// 2. Normalizes to NFKC (compatibility forms collapse: "ﬁ" → "fi", full-width → ASCII).
// 3. Applies Unicode case folding.
func Username(s string) string {
	return fold(strings.TrimSpace(s))
}

// Email returns the canonical form of an e-mail address. The whole address
// is folded; no provider-specific rewriting (dots, plus tags) is applied.
func Email(s string) string {
	return fold(strings.TrimSpace(s))
}

// IsEmail reports whether a login identifier should be looked up by e-mail.
func IsEmail(s string) bool {
	return strings.Contains(s, "@")
}

func fold(s string) string {
	t := transform.Chain(norm.NFKC, cases.Fold())
	result, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return result
}
