// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

package sec

// Identity is the minimal authenticated principal attached to a request
// context after session validation.
//
// # Why not the full User entity?
//
// Middleware and transport helpers only need stable identifiers; keeping
// this type in the platform layer lets them stay decoupled from the auth
// domain package.
type Identity struct {
	// UserID is the account's UUIDv7.
	UserID string `json:"user_id"`

	// Email is the normalized (lowercase) address.
	Email string `json:"email"`

	// Name is the display name.
	Name string `json:"name"`
}
