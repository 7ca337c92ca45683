// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

/*
Package auth implements the user identity and session management layer.

It defines the core domain entities (User, Session, MagicLink) and the logic
for password authentication, passwordless magic-link sign-in, and session
lifecycle.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
external dependencies and encapsulate all business rules related to user
identity. Storage and transport adapters depend on this package, never the
other way around.
*/
package auth

import (
	"strings"
	"time"
)

// # Domain Entities

// User represents a registered member of the Lumera platform.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`

	// PasswordHash is nil for accounts created through a magic link that
	// never set a password. Explicitly omitted from JSON for security.
	PasswordHash *string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
func (user *User) HasPassword() bool {
	return user.PasswordHash != nil && *user.PasswordHash != ""
}

// Session represents an active bearer-token session.
//
// # Lifecycle
//
// active → expired (implicit, by clock) → revoked (explicit, terminal).
// Revocation always wins: a revoked session never validates again, even if
// its expiry lies in the future.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	TokenHash string `json:"-"` // SHA-256 of the bearer token. Omitted for security.

	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`

	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	IsRevoked  bool      `json:"is_revoked"`
}

// MagicLink represents a single-use passwordless sign-in token.
//
// Rows survive consumption for auditability; expired rows are garbage
// collected by the cleanup hook.
type MagicLink struct {
	ID        string `json:"id"`
	TokenHash string `json:"-"` // SHA-256 of the emailed token. Omitted for security.
	Email     string `json:"email"`

	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Consumed   bool       `json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// # Normalization

// NormalizeEmail canonicalizes an address for storage and lookup.
//
// All reads and writes go through this, so "Ada@Example.com " and
// "ada@example.com" resolve to the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// # Field Identifiers

// Global field names for validation and identity mapping in the auth domain.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldDisplayName     = "display_name"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldUser            = "user"
	FieldMessage         = "message"
)
