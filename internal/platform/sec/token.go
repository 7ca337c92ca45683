// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// # Token Purposes

// TokenPurpose labels what an opaque token may be exchanged for.
//
// # Out-of-Band Semantics
//
// The purpose is never encoded into the token value itself — each purpose
// owns its own storage table, and a token only verifies against the table
// of the purpose it was issued for.
type TokenPurpose string

const (
	// TokenPurposeSession marks long-lived session bearer tokens.
	TokenPurposeSession TokenPurpose = "session"

	// TokenPurposeMagicLink marks single-use passwordless login tokens.
	TokenPurposeMagicLink TokenPurpose = "magic-link"
)

// TokenByteLength is the entropy of every issued token: 32 random bytes
// (256 bits), double the 128-bit unguessability floor.
const TokenByteLength = 32

// # Opaque Token Issuer

// IssuedToken is the result of a single token issuance.
type IssuedToken struct {
	// Plain is the bearer value handed to the client. It is pure entropy:
	// no expiry, purpose, or subject is decodable from it. Never persisted.
	Plain string

	// Hash is the SHA-256 digest of Plain, the only form stored server-side.
	// A storage leak therefore never leaks usable bearer tokens.
	Hash string

	// Purpose records what this token may be exchanged for.
	Purpose TokenPurpose

	// ExpiresAt is the server-side expiry, persisted alongside Hash.
	ExpiresAt time.Time
}

// Issuer mints cryptographically random opaque tokens.
//
// # Concurrency
//
// Issuer is stateless and safe for concurrent use.
type Issuer struct{}

// NewIssuer constructs a token [Issuer].
func NewIssuer() *Issuer {
	return &Issuer{}
}

/*
Issue mints a fresh opaque token for the given purpose.

Parameters:
  - purpose: TokenPurpose ("session" | "magic-link")
  - timeToLive: time.Duration until server-side expiry

Returns:
  - *IssuedToken: Plain bearer value plus its storage hash and expiry
  - error: Entropy source failures only
*/
func (issuer *Issuer) Issue(purpose TokenPurpose, timeToLive time.Duration) (*IssuedToken, error) {
	plain, err := GenerateSecureToken(TokenByteLength)
	if err != nil {
		return nil, err
	}

	return &IssuedToken{
		Plain:     plain,
		Hash:      HashToken(plain),
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(timeToLive),
	}, nil
}

// # Primitives

// GenerateSecureToken returns a URL-safe token with byteLength bytes of
// entropy drawn from the operating system CSPRNG.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a plain token.
//
// Tokens are high-entropy random values, so a fast unsalted digest is the
// correct lookup key — unlike passwords, they cannot be brute-forced from
// the digest.
func HashToken(plainToken string) string {
	digest := sha256.Sum256([]byte(plainToken))
	return hex.EncodeToString(digest[:])
}
