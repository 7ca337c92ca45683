// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

/*
Service layer for the auth domain: the single entry point the delivery layer
calls for every authentication use case.

Architecture:

  - Service: Orchestrates sign-up, sign-in, sign-out, session lifecycle.
  - Repository: Abstracted Postgres contracts for users, sessions, links.
  - Security: argon2id hashing and opaque random tokens from platform/sec.

Policy errors (duplicate email, weak password, bad credentials) are typed
[apperr.AppError] returns, never panics; unexpected failures are wrapped with
snake_case operation tags for log greppability.
*/

package auth

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/lumera-id/lumera/internal/platform/apperr"
	"github.com/lumera-id/lumera/internal/platform/sec"
	"github.com/lumera-id/lumera/pkg/uuid"
)

// # Contracts & Types

// LinkDispatcher defines the contract for handing a magic-link email to the
// outbound mail path.
//
// # Why an interface?
//
// The service does not care whether delivery is eager or async, logged or
// SMTP. Declaring the contract here keeps the domain free of the mailer
// package and lets tests capture dispatched links.
type LinkDispatcher interface {
	// Dispatch delivers (or schedules delivery of) the sign-in link.
	Dispatch(ctx context.Context, to string, magicLinkURL string) error
}

// ClientInfo carries request metadata recorded on each session.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// AuthSession represents a successfully established session, ready for the
// transport layer to hand to the client.
type AuthSession struct {
	// Token is the plain opaque bearer value. It exists only in this struct
	// and in the client's cookie; storage only ever sees its hash.
	Token     string
	ExpiresAt time.Time
	User      *User
}

// Options tunes the session and magic-link lifecycle policies.
type Options struct {
	// SessionTTL is the session lifetime at creation (and the sliding
	// extension horizon). Zero falls back to [DefaultSessionTTL].
	SessionTTL time.Duration

	// SessionSliding enables activity-based expiry extension on validation.
	SessionSliding bool

	// MagicLinkTTL is the magic-link token lifetime. Zero falls back to
	// [DefaultMagicLinkTTL].
	MagicLinkTTL time.Duration

	// MagicLinkBaseURL is the verification endpoint the emailed link points
	// at; the token is appended as a query parameter.
	MagicLinkBaseURL string
}

// normalized fills zero-value options with domain defaults.
func (options Options) normalized() Options {
	if options.SessionTTL <= 0 {
		options.SessionTTL = DefaultSessionTTL
	}
	if options.MagicLinkTTL <= 0 {
		options.MagicLinkTTL = DefaultMagicLinkTTL
	}
	return options
}

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, sign-in,
// or token consumption logic must be reviewed by the security team.
type Service struct {
	userRepository      UserRepository
	sessionRepository   SessionRepository
	magicLinkRepository MagicLinkRepository
	hasher              *sec.PasswordHasher
	issuer              *sec.Issuer
	dispatcher          LinkDispatcher
	options             Options
}

// NewService constructs a new auth [Service] with its dependencies.
func NewService(
	userRepo UserRepository,
	sessionRepo SessionRepository,
	magicLinkRepo MagicLinkRepository,
	hasher *sec.PasswordHasher,
	issuer *sec.Issuer,
	dispatcher LinkDispatcher,
	options Options,
) *Service {
	return &Service{
		userRepository:      userRepo,
		sessionRepository:   sessionRepo,
		magicLinkRepository: magicLinkRepo,
		hasher:              hasher,
		issuer:              issuer,
		dispatcher:          dispatcher,
		options:             options.normalized(),
	}
}

// # Registration Flow

// SignUpInput holds the data required to enroll a new member.
type SignUpInput struct {
	Email       string
	DisplayName string
	Password    string
	Client      ClientInfo
}

/*
SignUp validates, hashes, and persists a brand new user account, then signs
the user straight in.

Parameters:
  - context: context.Context
  - input: SignUpInput

Returns:
  - *AuthSession: Fresh session for the created account
  - error: apperr.WeakPassword, apperr.DuplicateEmail, or storage errors
*/
func (service *Service) SignUp(context context.Context, input SignUpInput) (*AuthSession, error) {
	if err := checkPasswordPolicy(input.Password); err != nil {
		return nil, err
	}

	// Prevent storing plain-text passwords. Work factor comes from the
	// hasher configuration and is recorded inside the hash itself.
	hashedPassword, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(input.Email),
		DisplayName:  input.DisplayName,
		PasswordHash: &hashedPassword,
	}

	// The unique index on email is the duplicate arbiter: of two concurrent
	// sign-ups for one address, exactly one INSERT wins.
	if err := service.userRepository.Create(context, user); err != nil {
		return nil, err
	}

	return service.createSession(context, user, input.Client)
}

// # Authentication Flow

// SignInInput defines credentials for a password authentication attempt.
type SignInInput struct {
	Email    string
	Password string
	Client   ClientInfo
}

/*
SignIn validates user credentials and establishes a session.

Description: Every failure path returns the same INVALID_CREDENTIALS error,
and the "no such user" branch burns a dummy hash verification so response
timing carries no account-enumeration signal either.

Parameters:
  - context: context.Context
  - input: SignInInput

Returns:
  - *AuthSession: Transport-ready session
  - error: apperr.InvalidCredentials or storage failures
*/
func (service *Service) SignIn(context context.Context, input SignInInput) (*AuthSession, error) {
	user, err := service.userRepository.FindByEmail(context, NormalizeEmail(input.Email))
	if err != nil {
		if isNotFound(err) {
			// Equalize timing with the password-verification branch.
			service.hasher.VerifyDummy(input.Password)
			return nil, apperr.InvalidCredentials()
		}
		return nil, err
	}

	// A magic-link-only account has no password to check. Same generic
	// error, same hashing cost.
	if !user.HasPassword() {
		service.hasher.VerifyDummy(input.Password)
		return nil, apperr.InvalidCredentials()
	}

	if !service.hasher.Verify(input.Password, *user.PasswordHash) {
		return nil, apperr.InvalidCredentials()
	}

	return service.createSession(context, user, input.Client)
}

/*
SignOut revokes the session carrying the given bearer token.

Description: Idempotent by contract. An unknown, expired, or already-revoked
token signs out successfully, so repeated logout clicks and stale tabs never
surface errors.

Parameters:
  - context: context.Context
  - plainToken: string

Returns:
  - error: Storage failures only
*/
func (service *Service) SignOut(context context.Context, plainToken string) error {
	return service.RevokeSession(context, plainToken)
}

// # Session Management

/*
CreateSession mints a fresh opaque session token for the given user.

Parameters:
  - context: context.Context
  - userID: string
  - client: ClientInfo

Returns:
  - *AuthSession: Plain token plus hydrated user
  - error: Unknown user or storage failures
*/
func (service *Service) CreateSession(context context.Context, userID string, client ClientInfo) (*AuthSession, error) {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}
	return service.createSession(context, user, client)
}

// createSession is the shared issuance path behind every successful
// authentication.
func (service *Service) createSession(context context.Context, user *User, client ClientInfo) (*AuthSession, error) {
	token, err := service.issuer.Issue(sec.TokenPurposeSession, service.options.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_issue_failed: %w", err)
	}

	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: token.Hash,
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		ExpiresAt: token.ExpiresAt,
	}

	if err := service.sessionRepository.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &AuthSession{
		Token:     token.Plain,
		ExpiresAt: token.ExpiresAt,
		User:      user,
	}, nil
}

/*
ValidateSession checks a bearer token and returns its live session.

Description: Delegates to a single atomic UPDATE in storage that re-checks
revocation and expiry while stamping activity. With sliding expiration
enabled the expiry is extended to now + TTL, monotonically.

Parameters:
  - context: context.Context
  - plainToken: string

Returns:
  - *Session: The validated session
  - error: apperr.SessionInvalid or storage failures
*/
func (service *Service) ValidateSession(context context.Context, plainToken string) (*Session, error) {
	var extendTo time.Time
	if service.options.SessionSliding {
		extendTo = time.Now().Add(service.options.SessionTTL)
	}

	session, err := service.sessionRepository.Touch(context, sec.HashToken(plainToken), extendTo)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.SessionInvalid()
		}
		return nil, err
	}

	return session, nil
}

/*
GetSession resolves a bearer token into its user.

Parameters:
  - context: context.Context
  - plainToken: string

Returns:
  - *User: The session owner
  - error: apperr.SessionInvalid or storage failures
*/
func (service *Service) GetSession(context context.Context, plainToken string) (*User, error) {
	session, err := service.ValidateSession(context, plainToken)
	if err != nil {
		return nil, err
	}

	user, err := service.userRepository.FindByID(context, session.UserID)
	if err != nil {
		if isNotFound(err) {
			// Orphaned session row; treat like any other dead session.
			return nil, apperr.SessionInvalid()
		}
		return nil, err
	}

	return user, nil
}

/*
ResolveSession adapts GetSession to the middleware authentication contract.

Parameters:
  - context: context.Context
  - plainToken: string

Returns:
  - *sec.Identity: Minimal principal for the request context
  - error: apperr.SessionInvalid or storage failures
*/
func (service *Service) ResolveSession(context context.Context, plainToken string) (*sec.Identity, error) {
	user, err := service.GetSession(context, plainToken)
	if err != nil {
		return nil, err
	}

	return &sec.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.DisplayName,
	}, nil
}

/*
RevokeSession permanently invalidates the session carrying the token.

Parameters:
  - context: context.Context
  - plainToken: string

Returns:
  - error: Storage failures only (unknown tokens revoke successfully)
*/
func (service *Service) RevokeSession(context context.Context, plainToken string) error {
	if err := service.sessionRepository.Revoke(context, sec.HashToken(plainToken)); err != nil {
		return fmt.Errorf("auth_service_revoke_failed: %w", err)
	}
	return nil
}

/*
RevokeAllForUser invalidates every session belonging to the user.

Description: The compromise-response hammer: password change, account
takeover reports, and admin lockouts all funnel through here.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Batch revocation failures
*/
func (service *Service) RevokeAllForUser(context context.Context, userID string) error {
	if err := service.sessionRepository.RevokeAll(context, userID); err != nil {
		return fmt.Errorf("auth_service_revoke_all_failed: %w", err)
	}
	return nil
}

/*
PurgeExpired garbage-collects expired sessions and magic-link rows.

Description: Safe to run at any frequency; expiry enforcement never depends
on it (validation re-checks the clock on every call).

Parameters:
  - context: context.Context

Returns:
  - int64: Sessions removed
  - int64: Magic-link rows removed
  - error: Cleanup failures
*/
func (service *Service) PurgeExpired(context context.Context) (int64, int64, error) {
	sessions, err := service.sessionRepository.DeleteExpired(context)
	if err != nil {
		return 0, 0, fmt.Errorf("auth_service_purge_sessions_failed: %w", err)
	}

	links, err := service.magicLinkRepository.DeleteExpired(context)
	if err != nil {
		return sessions, 0, fmt.Errorf("auth_service_purge_links_failed: %w", err)
	}

	return sessions, links, nil
}

// # Credential Maintenance

/*
ChangePassword updates the authenticated user's password.

Description: Verifies the current password first, then re-hashes and revokes
every OTHER session so stolen sessions die with the old credential while the
device performing the change stays signed in.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string
  - currentToken: string (the caller's own session token, kept alive)

Returns:
  - error: apperr.InvalidCredentials, apperr.WeakPassword, or storage failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword, currentToken string) error {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return err
	}

	if !user.HasPassword() || !service.hasher.Verify(currentPassword, *user.PasswordHash) {
		return apperr.InvalidCredentials()
	}

	if err := checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hashedPassword, err := service.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.userRepository.UpdatePasswordHash(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	if err := service.sessionRepository.RevokeOthers(context, userID, sec.HashToken(currentToken)); err != nil {
		return fmt.Errorf("auth_service_change_password_revoke_failed: %w", err)
	}

	return nil
}

// # Helpers

// checkPasswordPolicy enforces the length policy shared by sign-up and
// password change. Bounds count Unicode characters, not bytes, so multibyte
// passwords are measured the way users perceive them.
func checkPasswordPolicy(password string) error {
	length := utf8.RuneCountInString(password)
	if length < PasswordMinLength {
		return apperr.WeakPassword(fmt.Sprintf("Password must be at least %d characters", PasswordMinLength))
	}
	if length > PasswordMaxLength {
		return apperr.WeakPassword(fmt.Sprintf("Password must be at most %d characters", PasswordMaxLength))
	}
	return nil
}

// isNotFound reports whether err is the storage layer's row-missing signal.
func isNotFound(err error) bool {
	return apperr.IsCode(err, "NOT_FOUND")
}
