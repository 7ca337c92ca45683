// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

package auth

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
//
// Implementations receive emails already normalized by the service layer.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given normalized email.

		Parameters:
		  - context: context.Context
		  - email: string (normalized)

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		Create persists a brand-new user account.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: apperr.DuplicateEmail on a unique-violation, or storage failures
	*/
	Create(context context.Context, user *User) error

	/*
		UpdatePasswordHash replaces only the user's password hash record.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string (PHC-formatted argon2id record)

		Returns:
		  - error: Persistence failures
	*/
	UpdatePasswordHash(context context.Context, userID, newHash string) error
}

// # Session Data Access

// SessionRepository defines the data access contract for bearer sessions.
type SessionRepository interface {

	/*
		Create persists a new session for an authenticated sign-in.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		Touch atomically validates and refreshes the session matching the
		token hash. The single UPDATE checks revocation and expiry, stamps
		lastseenat, and (when extendTo is non-zero) slides expiresat forward,
		never backward. Concurrent touches may over-extend but can never
		resurrect a revoked or expired session.

		Parameters:
		  - context: context.Context
		  - tokenHash: string
		  - extendTo: time.Time (zero value disables sliding extension)

		Returns:
		  - *Session: The refreshed session
		  - error: apperr.NotFound when no active session matches
	*/
	Touch(context context.Context, tokenHash string, extendTo time.Time) (*Session, error)

	/*
		Revoke marks the session with the given token hash as revoked.
		Unknown or already-revoked hashes are a successful no-op.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - error: Persistence failures only
	*/
	Revoke(context context.Context, tokenHash string) error

	/*
		RevokeAll revokes every active session belonging to the userID.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Batch revocation failures
	*/
	RevokeAll(context context.Context, userID string) error

	/*
		RevokeOthers revokes all active sessions of the userID except the one
		identified by keepTokenHash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - keepTokenHash: string

		Returns:
		  - error: Filtered revocation failures
	*/
	RevokeOthers(context context.Context, userID, keepTokenHash string) error

	/*
		DeleteExpired physically removes sessions whose expiry has passed.

		Parameters:
		  - context: context.Context

		Returns:
		  - int64: Number of rows removed
		  - error: Cleanup failures
	*/
	DeleteExpired(context context.Context) (int64, error)
}

// # Magic Link Data Access

// MagicLinkRepository defines the data access contract for single-use
// passwordless sign-in tokens.
type MagicLinkRepository interface {

	/*
		Create persists a freshly issued, unconsumed magic-link token.

		Parameters:
		  - context: context.Context
		  - link: *MagicLink

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, link *MagicLink) error

	/*
		Consume atomically claims the token with the given hash. The UPDATE
		flips consumed to TRUE only when it is still FALSE, so exactly one of
		any number of concurrent callers receives the row; everyone else gets
		apperr.NotFound. Expiry is NOT checked here: the claim burns the token
		either way, and the caller decides whether the returned row was still
		fresh.

		Parameters:
		  - context: context.Context
		  - tokenHash: string
		  - consumedAt: time.Time

		Returns:
		  - *MagicLink: The claimed row
		  - error: apperr.NotFound when no unconsumed row matches
	*/
	Consume(context context.Context, tokenHash string, consumedAt time.Time) (*MagicLink, error)

	/*
		Exists reports whether any row (consumed or not) carries the hash.
		Used after a failed Consume to tell a replayed token apart from one
		that never existed.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - bool: true when a row exists
		  - error: Lookup failures
	*/
	Exists(context context.Context, tokenHash string) (bool, error)

	/*
		DeleteExpired removes tokens whose expiry has passed, consumed or not.

		Parameters:
		  - context: context.Context

		Returns:
		  - int64: Number of rows removed
		  - error: Cleanup failures
	*/
	DeleteExpired(context context.Context) (int64, error)
}
