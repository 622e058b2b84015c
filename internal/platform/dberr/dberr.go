// Copyright (c) 2026 Divvy. All rights reserved.

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/divvyapp/divvy/internal/platform/apperr"
	"github.com/divvyapp/divvy/internal/platform/sec"
)

// SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// ErrNotFound is the sentinel cause of every [NotFound] error.
var ErrNotFound = errors.New("dberr: not found")

// NotFound builds a 404 for resource whose chain still matches [ErrNotFound].
func NotFound(resource string) *apperr.AppError {
	appErr := apperr.NotFound(resource)
	appErr.Cause = ErrNotFound
	return appErr
}

// IsNotFound reports whether err came from a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
//
// Connectivity failures and timeouts become a retryable 503 whose chain
// contains [sec.ErrStoreUnavailable]; they are never reported as "not found".
func Wrap(err error, resource string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound(resource)
	}

	// 2. Constraint violations
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			appErr := apperr.Conflict(resource + " already exists")
			appErr.Cause = err
			return appErr
		case codeForeignKeyViolation:
			appErr := NotFound(resource)
			appErr.Cause = errors.Join(ErrNotFound, err)
			return appErr
		}
	}

	// 3. Transient connectivity failures
	if IsTransient(err) {
		return apperr.StoreUnavailable(sec.Unavailable(err))
	}

	// 4. Unknown query errors become Internal Server Errors
	return apperr.Internal(err)
}

// IsTransient reports whether err looks like a lost or slow connection rather
// than a bad query.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
