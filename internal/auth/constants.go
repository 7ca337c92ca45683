// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

package auth

import "time"

// # Authentication Constraints

const (
	// DefaultSessionTTL is the lifetime of a session token at creation.
	// Long-lived (30 days) to provide a good user experience; sliding
	// expiration can extend it further on activity.
	DefaultSessionTTL = 30 * 24 * time.Hour

	// DefaultMagicLinkTTL is the lifetime of a magic-link token.
	// Short-lived (15 minutes): the link is expected to be clicked straight
	// from the inbox.
	DefaultMagicLinkTTL = 15 * time.Minute

	// PasswordMinLength is the minimum accepted password length.
	// Length is the only enforced policy; composition rules push users
	// toward predictable patterns without adding entropy.
	PasswordMinLength = 8

	// PasswordMaxLength caps input so hashing cost stays bounded.
	PasswordMaxLength = 512
)
