// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

// Magic-link passwordless authentication flow.
//
// # Design
//
// Requesting a link never reveals whether the address has an account, and
// never creates one: the account materializes lazily when the link is
// consumed, so unverified addresses leave no rows behind. Consumption is a
// single-use race with exactly one winner, arbitrated by a conditional
// UPDATE in storage.

package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/lumera-id/lumera/internal/platform/apperr"
	"github.com/lumera-id/lumera/internal/platform/sec"
	"github.com/lumera-id/lumera/pkg/uuid"
)

/*
RequestMagicLink issues a single-use sign-in token and emails it.

Description: Issues a 15-minute (configurable) token, persists it
unconsumed, and hands the sign-in URL to the dispatcher. The account is NOT
looked up or created here. In async dispatch mode this always succeeds once
the token is stored; in eager mode a transport failure surfaces as
DELIVERY_FAILED while the stored token stays valid.

Parameters:
  - context: context.Context
  - email: string (raw; normalized internally)

Returns:
  - error: apperr.DeliveryFailed (eager mode) or storage failures
*/
func (service *Service) RequestMagicLink(context context.Context, email string) error {
	normalizedEmail := NormalizeEmail(email)

	token, err := service.issuer.Issue(sec.TokenPurposeMagicLink, service.options.MagicLinkTTL)
	if err != nil {
		return fmt.Errorf("auth_service_magic_link_issue_failed: %w", err)
	}

	link := &MagicLink{
		ID:        uuid.New(),
		TokenHash: token.Hash,
		Email:     normalizedEmail,
		IssuedAt:  time.Now(),
		ExpiresAt: token.ExpiresAt,
	}

	if err := service.magicLinkRepository.Create(context, link); err != nil {
		return fmt.Errorf("auth_service_magic_link_store_failed: %w", err)
	}

	signInURL, err := buildMagicLinkURL(service.options.MagicLinkBaseURL, token.Plain)
	if err != nil {
		return fmt.Errorf("auth_service_magic_link_url_failed: %w", err)
	}

	return service.dispatcher.Dispatch(context, normalizedEmail, signInURL)
}

/*
ConsumeMagicLink exchanges a magic-link token for an authenticated session.

Description: The conditional UPDATE in storage is the linearization point:
of N concurrent calls with the same token, exactly one claims the row. A
failed claim is disambiguated by an existence probe (replayed vs unknown).
A claimed row past its expiry maps to TOKEN_EXPIRED; the claim has already
burned it, so the same link can never race back to life. On success the
account is fetched, or created on first sign-in for that address.

Parameters:
  - context: context.Context
  - plainToken: string
  - client: ClientInfo

Returns:
  - *AuthSession: Fresh session for the link's address
  - error: apperr.TokenInvalid, apperr.TokenAlreadyUsed, apperr.TokenExpired,
    or storage failures
*/
func (service *Service) ConsumeMagicLink(context context.Context, plainToken string, client ClientInfo) (*AuthSession, error) {
	tokenHash := sec.HashToken(plainToken)
	now := time.Now()

	link, err := service.magicLinkRepository.Consume(context, tokenHash, now)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}

		// The claim lost. Was there ever such a token?
		exists, probeErr := service.magicLinkRepository.Exists(context, tokenHash)
		if probeErr != nil {
			return nil, fmt.Errorf("auth_service_magic_link_probe_failed: %w", probeErr)
		}
		if exists {
			return nil, apperr.TokenAlreadyUsed()
		}
		return nil, apperr.TokenInvalid()
	}

	if now.After(link.ExpiresAt) {
		return nil, apperr.TokenExpired()
	}

	user, err := service.resolveOrCreateUser(context, link.Email)
	if err != nil {
		return nil, err
	}

	return service.createSession(context, user, client)
}

// resolveOrCreateUser fetches the account for a verified address, creating
// a password-less account on first sign-in.
func (service *Service) resolveOrCreateUser(context context.Context, email string) (*User, error) {
	user, err := service.userRepository.FindByEmail(context, email)
	if err == nil {
		return user, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	user = &User{
		ID:    uuid.New(),
		Email: email,
		// No password: the account authenticates by magic link until the
		// user sets one.
		PasswordHash: nil,
	}

	if createErr := service.userRepository.Create(context, user); createErr != nil {
		// Lost a creation race against a concurrent sign-up for the same
		// address; the surviving row wins.
		if apperr.IsCode(createErr, apperr.CodeDuplicateEmail) {
			return service.userRepository.FindByEmail(context, email)
		}
		return nil, createErr
	}

	return user, nil
}

// buildMagicLinkURL appends the token to the verification endpoint as a
// query parameter, preserving any parameters already on the base URL.
func buildMagicLinkURL(baseURL, plainToken string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	query.Set(FieldToken, plainToken)
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
