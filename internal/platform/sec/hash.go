// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

// Package sec provides cryptographic primitives for the platform.
//
// # Architecture
//
// This package isolates security-sensitive code (password hashing, opaque
// token generation) from the domain logic. It acts as an Infrastructure
// service injected into the Application layer via small interfaces.
package sec

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// HashParams tunes the argon2id work factor.
//
// # Upgrade Safety
//
// The parameters used to produce a hash are encoded into the hash record
// itself, so verification of old records keeps working after the defaults
// are raised.
type HashParams struct {
	// MemoryKiB is the memory cost in KiB (the memory-hard dial).
	MemoryKiB uint32
	// Iterations is the time cost (number of passes over memory).
	Iterations uint32
	// Parallelism is the number of lanes/threads.
	Parallelism uint8
	// SaltLength is the random salt size in bytes.
	SaltLength uint32
	// KeyLength is the derived key size in bytes.
	KeyLength uint32
}

// DefaultHashParams follows the RFC 9106 second recommended option
// (64 MiB, 3 passes), a balance between security and login latency.
var DefaultHashParams = HashParams{
	MemoryKiB:   64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher derives and verifies argon2id password hash records.
//
// # Concurrency
//
// A PasswordHasher is immutable after construction and safe for concurrent
// use. Hashing is intentionally expensive (tens to hundreds of milliseconds)
// so callers must never hold locks across Hash or Verify.
type PasswordHasher struct {
	params HashParams

	// dummyRecord is a pre-computed hash of a throwaway password, used to
	// equalize timing on the "no such user" sign-in path.
	dummyRecord string
}

// NewPasswordHasher constructs a [PasswordHasher] with the given work factor.
func NewPasswordHasher(params HashParams) (*PasswordHasher, error) {
	hasher := &PasswordHasher{params: params}

	dummy, err := hasher.Hash("lumera-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("sec: failed to precompute dummy hash: %w", err)
	}
	hasher.dummyRecord = dummy

	return hasher, nil
}

/*
Hash derives an argon2id hash record from a plain-text password.

Description: The record carries the algorithm version, work factor, salt and
derived key in PHC string format, e.g.

	$argon2id$v=19$m=65536,t=3,p=2$<b64salt>$<b64key>

Parameters:
  - plainTextPassword: string

Returns:
  - string: Self-describing hash record safe to persist
  - error: Entropy failures only; the plaintext is never logged or persisted
*/
func (hasher *PasswordHasher) Hash(plainTextPassword string) (string, error) {
	salt := make([]byte, hasher.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("sec: failed to generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(plainTextPassword),
		salt,
		hasher.params.Iterations,
		hasher.params.MemoryKiB,
		hasher.params.Parallelism,
		hasher.params.KeyLength,
	)

	record := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hasher.params.MemoryKiB,
		hasher.params.Iterations,
		hasher.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return record, nil
}

/*
Verify compares a plain-text password against a stored hash record.

Description: The work factor is read from the record, not from the hasher,
so records hashed under older parameters keep verifying. The derived keys
are compared in constant time to defeat timing attacks.

Fails closed: any malformed record or internal error reports "no match" —
never a fault that could be mistaken for success.

Parameters:
  - plainTextPassword: string
  - record: string (PHC-formatted argon2id record)

Returns:
  - bool: true only on an exact match
*/
func (hasher *PasswordHasher) Verify(plainTextPassword, record string) bool {
	params, salt, expectedKey, err := decodeHashRecord(record)
	if err != nil {
		return false
	}

	derivedKey := argon2.IDKey(
		[]byte(plainTextPassword),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expectedKey)),
	)

	return subtle.ConstantTimeCompare(derivedKey, expectedKey) == 1
}

// VerifyDummy burns one full verification against a pre-computed throwaway
// record and always reports false.
//
// # Security
//
// Called on the "no such user" sign-in path so both failure branches cost
// one argon2id derivation, keeping response timing free of an
// account-enumeration signal.
func (hasher *PasswordHasher) VerifyDummy(plainTextPassword string) bool {
	_ = hasher.Verify(plainTextPassword, hasher.dummyRecord)
	return false
}

// decodeHashRecord parses a PHC argon2id record into its components.
func decodeHashRecord(record string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(record, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return HashParams{}, nil, nil, fmt.Errorf("sec: malformed hash record")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("sec: malformed hash version: %w", err)
	}
	if version != argon2.Version {
		return HashParams{}, nil, nil, fmt.Errorf("sec: unsupported argon2 version %d", version)
	}

	var params HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.MemoryKiB, &params.Iterations, &params.Parallelism); err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("sec: malformed hash params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("sec: malformed salt: %w", err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("sec: malformed key: %w", err)
	}

	return params, salt, key, nil
}
