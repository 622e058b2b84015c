// Copyright (c) 2026 Divvy. All rights reserved.

// Package ctxutil provides helpers for interacting with values stored in [context.Context].
package ctxutil

import (
	"context"
	"log/slog"
	"sync"

	"github.com/divvyapp/divvy/internal/platform/ctxkey"
	"github.com/divvyapp/divvy/internal/platform/sec"
)

// # Request Tracing

// WithRequestID returns a new context with the provided request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// # Structured Logging

// WithLogger returns a new context with the provided logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger retrieves the logger from the context.
// If no logger is found, it returns the global default logger.
func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if !ok || logger == nil {
		return slog.Default()
	}
	return logger
}

// # Identity & Access

// WithAuthUser returns a new context with the provided auth claims attached.
// The user ID is also recorded on the request meta, if one is present.
func WithAuthUser(ctx context.Context, user *sec.AuthClaims) context.Context {
	if meta := GetRequestMeta(ctx); meta != nil && user != nil {
		meta.SetUserID(user.UserID)
	}
	return context.WithValue(ctx, ctxkey.KeyUser, user)
}

// GetAuthUser retrieves the [*sec.AuthClaims] from the [context.Context].
func GetAuthUser(ctx context.Context) *sec.AuthClaims {
	claims, ok := ctx.Value(ctxkey.KeyUser).(*sec.AuthClaims)
	if !ok {
		return nil
	}
	return claims
}

// # Request Meta

// RequestMeta is a mutable per-request record. Outer middleware installs it
// so that values learnt deeper in the chain (the authenticated user) are
// visible once the handler returns.
type RequestMeta struct {
	mu     sync.Mutex
	userID string
}

// SetUserID records the authenticated user for the request.
func (meta *RequestMeta) SetUserID(id string) {
	meta.mu.Lock()
	meta.userID = id
	meta.mu.Unlock()
}

// UserID returns the recorded user, or "" for anonymous requests.
func (meta *RequestMeta) UserID() string {
	meta.mu.Lock()
	defer meta.mu.Unlock()
	return meta.userID
}

// WithRequestMeta attaches a fresh [RequestMeta] and returns it.
func WithRequestMeta(ctx context.Context) (context.Context, *RequestMeta) {
	meta := &RequestMeta{}
	return context.WithValue(ctx, ctxkey.KeyRequestMeta, meta), meta
}

// GetRequestMeta returns the request meta, or nil outside an HTTP request.
func GetRequestMeta(ctx context.Context) *RequestMeta {
	meta, _ := ctx.Value(ctxkey.KeyRequestMeta).(*RequestMeta)
	return meta
}
