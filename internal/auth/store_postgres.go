// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

// PostgreSQL implementations of the auth repositories.
//
// # Architecture
//
// Repositories here are strictly separated from domain logic. They implement
// the domain-defined interfaces (e.g. [UserRepository]) on top of a pgx
// connection pool.
//
// # Error Mapping
//
// Storage-specific errors (pgx.ErrNoRows, SQLSTATE classes) are bridged to
// [apperr.AppError] values via dberr so no storage detail leaks upward.
//
// # Concurrency
//
// Every state transition that multiple requests can race on (session
// validation, magic-link consumption) is a single conditional UPDATE, so the
// database serializes the winners. No advisory locks, no transactions with
// read-then-write gaps.

package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lumera-id/lumera/internal/platform/apperr"
	"github.com/lumera-id/lumera/internal/platform/dberr"
)

// PgxPool is the subset of [pgxpool.Pool] the repositories use. Declared as
// an interface so tests can substitute a pgxmock pool.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool PgxPool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool PgxPool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

/*
Create persists a new user record into the auth.account table.

Description: The email column carries the normalized form; the unique index
on it is the single source of truth for duplicate detection, so concurrent
sign-ups for the same address cannot both succeed.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist; email already normalized)

Returns:
  - error: apperr.DuplicateEmail on unique-violation, or wrapped storage errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO auth.account (
			id, email, displayname, passwordhash, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.DuplicateEmail()
		}
		return dberr.Wrap(err)
	}

	return nil
}

/*
FindByEmail retrieves a user record by their normalized email address.

Parameters:
  - context: context.Context
  - email: string (normalized)

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or wrapped storage errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	const query = `
		SELECT id, email, displayname, passwordhash, createdat, updatedat
		FROM auth.account
		WHERE email = $1`

	user := &User{}
	err := repository.pool.QueryRow(context, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(err)
	}

	return user, nil
}

/*
FindByID retrieves a user record by their unique ID.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or wrapped storage errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	const query = `
		SELECT id, email, displayname, passwordhash, createdat, updatedat
		FROM auth.account
		WHERE id = $1`

	user := &User{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(err)
	}

	return user, nil
}

/*
UpdatePasswordHash replaces only the password hash for a specific user.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string

Returns:
  - error: Wrapped storage errors
*/
func (repository *PostgresUserRepository) UpdatePasswordHash(context context.Context, userID, newHash string) error {
	const query = `
		UPDATE auth.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, newHash, time.Now())
	if err != nil {
		return dberr.Wrap(err)
	}

	return nil
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool PgxPool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool PgxPool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
Create persists a new session record into the auth.session table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Wrapped storage errors
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO auth.session (
			id, userid, tokenhash, useragent, ipaddress, createdat, expiresat, lastseenat, isrevoked
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = session.CreatedAt
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastSeenAt,
		session.IsRevoked,
	)

	if err != nil {
		return dberr.Wrap(err)
	}

	return nil
}

/*
Touch atomically validates and refreshes a session by token hash.

Description: A single conditional UPDATE is the linearization point. The
WHERE clause re-checks revocation and expiry, so a session revoked a
microsecond earlier can never be refreshed back to life. GREATEST keeps the
expiry monotonic: concurrent sliding touches may over-extend, never shorten.
A zero extendTo leaves expiresat untouched (sliding disabled).

Parameters:
  - context: context.Context
  - tokenHash: string
  - extendTo: time.Time

Returns:
  - *Session: The refreshed session row
  - error: apperr.NotFound when no active session matches, or wrapped errors
*/
func (repository *PostgresSessionRepository) Touch(context context.Context, tokenHash string, extendTo time.Time) (*Session, error) {
	const query = `
		UPDATE auth.session
		SET lastseenat = NOW(),
		    expiresat = GREATEST(expiresat, $2)
		WHERE tokenhash = $1 AND isrevoked = FALSE AND expiresat > NOW()
		RETURNING id, userid, tokenhash, useragent, ipaddress, createdat, expiresat, lastseenat, isrevoked`

	session := &Session{}
	err := repository.pool.QueryRow(context, query, tokenHash, extendTo).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastSeenAt,
		&session.IsRevoked,
	)

	if err != nil {
		return nil, dberr.Wrap(err)
	}

	return session, nil
}

/*
Revoke marks the session with the given token hash as revoked.

Description: Matching zero rows is success, which makes sign-out idempotent
and keeps "was there ever such a session" unobservable to the caller.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - error: Wrapped storage errors only
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, tokenHash string) error {
	const query = "UPDATE auth.session SET isrevoked = TRUE WHERE tokenhash = $1"
	_, err := repository.pool.Exec(context, query, tokenHash)
	if err != nil {
		return dberr.Wrap(err)
	}
	return nil
}

/*
RevokeAll marks all active sessions for a user as revoked.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Batch revocation failures
*/
func (repository *PostgresSessionRepository) RevokeAll(context context.Context, userID string) error {
	const query = "UPDATE auth.session SET isrevoked = TRUE WHERE userid = $1 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(context, query, userID)
	if err != nil {
		return dberr.Wrap(err)
	}
	return nil
}

/*
RevokeOthers marks all active sessions for a user as revoked, except the one
carrying keepTokenHash.

Parameters:
  - context: context.Context
  - userID: string
  - keepTokenHash: string

Returns:
  - error: Filtered revocation failures
*/
func (repository *PostgresSessionRepository) RevokeOthers(context context.Context, userID, keepTokenHash string) error {
	const query = "UPDATE auth.session SET isrevoked = TRUE WHERE userid = $1 AND tokenhash != $2 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(context, query, userID, keepTokenHash)
	if err != nil {
		return dberr.Wrap(err)
	}
	return nil
}

/*
DeleteExpired permanently removes all sessions past their expiration.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of rows removed
  - error: Cleanup failures
*/
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context) (int64, error) {
	const query = "DELETE FROM auth.session WHERE expiresat <= NOW()"
	tag, err := repository.pool.Exec(context, query)
	if err != nil {
		return 0, dberr.Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// # Magic Link Repository

// PostgresMagicLinkRepository implements the MagicLinkRepository interface.
type PostgresMagicLinkRepository struct {
	pool PgxPool
}

// NewMagicLinkRepository creates a new PostgreSQL implementation of MagicLinkRepository.
func NewMagicLinkRepository(pool PgxPool) *PostgresMagicLinkRepository {
	return &PostgresMagicLinkRepository{pool: pool}
}

/*
Create persists a freshly issued magic-link token.

Parameters:
  - context: context.Context
  - link: *MagicLink

Returns:
  - error: Wrapped storage errors
*/
func (repository *PostgresMagicLinkRepository) Create(context context.Context, link *MagicLink) error {
	const query = `
		INSERT INTO auth.magiclink (
			id, tokenhash, email, issuedat, expiresat, consumed, consumedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if link.IssuedAt.IsZero() {
		link.IssuedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		link.ID,
		link.TokenHash,
		link.Email,
		link.IssuedAt,
		link.ExpiresAt,
		link.Consumed,
		link.ConsumedAt,
	)

	if err != nil {
		return dberr.Wrap(err)
	}

	return nil
}

/*
Consume atomically claims an unconsumed magic-link token.

Description: The conditional UPDATE is the only write path that flips
consumed, so the database guarantees exactly one winner among concurrent
claims for the same hash. Expiry is deliberately absent from the WHERE
clause: an expired token is burned by the claim too, and the caller maps the
stale row to the expired error.

Parameters:
  - context: context.Context
  - tokenHash: string
  - consumedAt: time.Time

Returns:
  - *MagicLink: The claimed row
  - error: apperr.NotFound when no unconsumed row matches, or wrapped errors
*/
func (repository *PostgresMagicLinkRepository) Consume(context context.Context, tokenHash string, consumedAt time.Time) (*MagicLink, error) {
	const query = `
		UPDATE auth.magiclink
		SET consumed = TRUE, consumedat = $2
		WHERE tokenhash = $1 AND consumed = FALSE
		RETURNING id, tokenhash, email, issuedat, expiresat, consumed, consumedat`

	link := &MagicLink{}
	err := repository.pool.QueryRow(context, query, tokenHash, consumedAt).Scan(
		&link.ID,
		&link.TokenHash,
		&link.Email,
		&link.IssuedAt,
		&link.ExpiresAt,
		&link.Consumed,
		&link.ConsumedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(err)
	}

	return link, nil
}

/*
Exists reports whether any row carries the given token hash.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - bool: true when a row exists, consumed or not
  - error: Lookup failures
*/
func (repository *PostgresMagicLinkRepository) Exists(context context.Context, tokenHash string) (bool, error) {
	const query = "SELECT EXISTS (SELECT 1 FROM auth.magiclink WHERE tokenhash = $1)"

	var exists bool
	if err := repository.pool.QueryRow(context, query, tokenHash).Scan(&exists); err != nil {
		return false, dberr.Wrap(err)
	}

	return exists, nil
}

/*
DeleteExpired removes magic-link rows past their expiration.

Description: Consumed rows are kept until expiry for auditing, then reclaimed
here together with never-used stale tokens.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of rows removed
  - error: Cleanup failures
*/
func (repository *PostgresMagicLinkRepository) DeleteExpired(context context.Context) (int64, error) {
	const query = "DELETE FROM auth.magiclink WHERE expiresat <= NOW()"
	tag, err := repository.pool.Exec(context, query)
	if err != nil {
		return 0, dberr.Wrap(err)
	}
	return tag.RowsAffected(), nil
}
