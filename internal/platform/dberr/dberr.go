// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
//
// # Error Classes
//
// Policy-relevant SQLSTATEs (unique violations) and transient fault classes
// (connectivity, resource exhaustion) are classified here so repositories
// stay free of SQLSTATE literals.
package dberr

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lumera-id/lumera/internal/platform/apperr"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. Transient faults become STORAGE_UNAVAILABLE so callers may retry.
	if IsUnavailable(err) {
		return apperr.StorageUnavailable(err)
	}

	// 3. Unique-constraint violations surface as conflicts.
	if IsUniqueViolation(err) {
		return apperr.Conflict("Resource already exists")
	}

	// 4. Unknown query errors become Internal Server Errors.
	return apperr.Internal(err)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// IsUnavailable reports whether err belongs to a transient storage fault
// class: connection exceptions (08xxx), insufficient resources (53xxx),
// operator intervention (57xxx), or a blown context deadline.
func IsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return true
		}
	}

	// pgconn reports dial/IO failures through its own connect error type.
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
