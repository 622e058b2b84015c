// Copyright (c) 2026 Divvy. All rights reserved.

/*
Package pointer provides generic helpers for optional values.

Partial updates decode absent JSON fields as nil pointers; these helpers keep
that handling out of the service code.
*/
package pointer

// To returns a pointer to the provided value.
func To[T any](v T) *T {
	return &v
}

// Fallback dereferences p, returning fallback if p is nil.
func Fallback[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
