// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

package auth_test

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumera-id/lumera/internal/auth"
	"github.com/lumera-id/lumera/internal/platform/apperr"
	"github.com/lumera-id/lumera/internal/platform/sec"
)

// fastHashParams keeps argon2id cheap in tests; correctness is parameter
// independent.
var fastHashParams = sec.HashParams{
	MemoryKiB:   8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// testHarness bundles the service with its fakes for direct inspection.
type testHarness struct {
	service    *auth.Service
	users      *fakeUserRepository
	sessions   *fakeSessionRepository
	links      *fakeMagicLinkRepository
	dispatcher *captureDispatcher
}

func newTestHarness(t *testing.T, options auth.Options) *testHarness {
	t.Helper()

	hasher, err := sec.NewPasswordHasher(fastHashParams)
	require.NoError(t, err)

	harness := &testHarness{
		users:      newFakeUserRepository(),
		sessions:   newFakeSessionRepository(),
		links:      newFakeMagicLinkRepository(),
		dispatcher: &captureDispatcher{},
	}

	harness.service = auth.NewService(
		harness.users,
		harness.sessions,
		harness.links,
		hasher,
		sec.NewIssuer(),
		harness.dispatcher,
		options,
	)

	return harness
}

// lastLinkToken extracts the token from the most recently dispatched URL.
func (harness *testHarness) lastLinkToken(t *testing.T) string {
	t.Helper()

	send, ok := harness.dispatcher.last()
	require.True(t, ok, "no magic link was dispatched")

	parsed, err := url.Parse(send.url)
	require.NoError(t, err)

	token := parsed.Query().Get(auth.FieldToken)
	require.NotEmpty(t, token)
	return token
}

var testClient = auth.ClientInfo{UserAgent: "go-test", IPAddress: "203.0.113.7"}

// # Registration

/*
TestSignUp_CreatesAccountAndSession checks a fresh sign-up returns a working
session for the normalized account.
*/
func TestSignUp_CreatesAccountAndSession(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	session, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email:       "  Ada@Example.COM ",
		DisplayName: "Ada",
		Password:    "correct horse battery",
		Client:      testClient,
	})
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.True(t, session.User.HasPassword())

	// The returned token resolves straight back to the user.
	user, err := harness.service.GetSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, user.ID)
}

/*
TestSignUp_DuplicateEmail checks duplicate detection runs on the normalized
address, so case and whitespace variants collide.
*/
func TestSignUp_DuplicateEmail(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	_, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	_, err = harness.service.SignUp(ctx, auth.SignUpInput{
		Email: " ADA@Example.com", Password: "another password 123",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeDuplicateEmail))
}

/*
TestSignUp_WeakPassword checks the length policy gate counts characters, not
bytes: a short multibyte password must not sneak past the minimum.
*/
func TestSignUp_WeakPassword(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	tests := []struct {
		name     string
		password string
	}{
		{"ascii_short", "short"},
		{"multibyte_short", "ééééééé"}, // 7 characters, 14 bytes
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := harness.service.SignUp(ctx, auth.SignUpInput{
				Email: "ada@example.com", Password: tt.password,
			})
			require.Error(t, err)
			assert.True(t, apperr.IsCode(err, apperr.CodeWeakPassword))
		})
	}

	// An 8-character multibyte password clears the gate.
	_, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "éééééééé",
	})
	assert.NoError(t, err)
}

// # Password Sign-In

/*
TestSignIn_Success checks the password round trip through sign-up.
*/
func TestSignIn_Success(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	_, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	session, err := harness.service.SignIn(ctx, auth.SignInInput{
		Email:    "Ada@example.com", // normalization applies on sign-in too
		Password: "correct horse battery",
		Client:   testClient,
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.NotEmpty(t, session.Token)
}

/*
TestSignIn_FailuresAreIndistinguishable checks unknown addresses and wrong
passwords produce the exact same error value, carrying no enumeration signal.
*/
func TestSignIn_FailuresAreIndistinguishable(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	_, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	_, unknownErr := harness.service.SignIn(ctx, auth.SignInInput{
		Email: "nobody@example.com", Password: "whatever password",
	})
	_, wrongErr := harness.service.SignIn(ctx, auth.SignInInput{
		Email: "ada@example.com", Password: "not the password",
	})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.True(t, apperr.IsCode(unknownErr, apperr.CodeInvalidCredentials))
	assert.True(t, apperr.IsCode(wrongErr, apperr.CodeInvalidCredentials))
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

/*
TestSignIn_MagicLinkOnlyAccount checks an account without a password cannot
be entered via the password path, with the same generic error.
*/
func TestSignIn_MagicLinkOnlyAccount(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	require.NoError(t, harness.service.RequestMagicLink(ctx, "ada@example.com"))
	_, err := harness.service.ConsumeMagicLink(ctx, harness.lastLinkToken(t), testClient)
	require.NoError(t, err)

	_, err = harness.service.SignIn(ctx, auth.SignInInput{
		Email: "ada@example.com", Password: "any password at all",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidCredentials))
}

// # Session Lifecycle

/*
TestSignOut_Idempotent checks revocation succeeds for live, revoked, and
unknown tokens alike, and that a revoked session stays dead.
*/
func TestSignOut_Idempotent(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	session, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	require.NoError(t, harness.service.SignOut(ctx, session.Token))
	require.NoError(t, harness.service.SignOut(ctx, session.Token)) // second time
	require.NoError(t, harness.service.SignOut(ctx, "never-issued-token"))

	_, err = harness.service.GetSession(ctx, session.Token)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeSessionInvalid))
}

/*
TestValidateSession_UnknownAndExpired checks the dead-session paths all
collapse into SESSION_INVALID.
*/
func TestValidateSession_UnknownAndExpired(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	session, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	_, err = harness.service.ValidateSession(ctx, "forged-token")
	assert.True(t, apperr.IsCode(err, apperr.CodeSessionInvalid))

	harness.sessions.expire(sec.HashToken(session.Token))
	_, err = harness.service.ValidateSession(ctx, session.Token)
	assert.True(t, apperr.IsCode(err, apperr.CodeSessionInvalid))
}

/*
TestValidateSession_SlidingExtendsMonotonically checks activity pushes the
expiry forward under sliding mode and leaves it untouched otherwise.
*/
func TestValidateSession_SlidingExtendsMonotonically(t *testing.T) {
	ctx := context.Background()

	t.Run("sliding_on", func(t *testing.T) {
		harness := newTestHarness(t, auth.Options{SessionTTL: time.Hour, SessionSliding: true})

		session, err := harness.service.SignUp(ctx, auth.SignUpInput{
			Email: "ada@example.com", Password: "correct horse battery",
		})
		require.NoError(t, err)

		tokenHash := sec.HashToken(session.Token)
		before := harness.sessions.expiresAt(tokenHash)

		time.Sleep(10 * time.Millisecond)
		_, err = harness.service.ValidateSession(ctx, session.Token)
		require.NoError(t, err)

		after := harness.sessions.expiresAt(tokenHash)
		assert.True(t, after.After(before), "expiry should slide forward")
	})

	t.Run("sliding_off", func(t *testing.T) {
		harness := newTestHarness(t, auth.Options{SessionTTL: time.Hour, SessionSliding: false})

		session, err := harness.service.SignUp(ctx, auth.SignUpInput{
			Email: "ada@example.com", Password: "correct horse battery",
		})
		require.NoError(t, err)

		tokenHash := sec.HashToken(session.Token)
		before := harness.sessions.expiresAt(tokenHash)

		_, err = harness.service.ValidateSession(ctx, session.Token)
		require.NoError(t, err)

		assert.Equal(t, before, harness.sessions.expiresAt(tokenHash))
	})
}

/*
TestValidateSession_RevocationWinsUnderRace races sliding validations against
a revocation of the same token. Concurrent refreshes may over-extend the
expiry, but no validation that begins after the revocation has completed may
succeed: the touch re-checks revocation atomically, so a revoked session can
never be refreshed back to life.
*/
func TestValidateSession_RevocationWinsUnderRace(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		revoke func(harness *testHarness, session *auth.AuthSession) error
	}{
		{"revoke_session", func(harness *testHarness, session *auth.AuthSession) error {
			return harness.service.RevokeSession(ctx, session.Token)
		}},
		{"revoke_all_for_user", func(harness *testHarness, session *auth.AuthSession) error {
			return harness.service.RevokeAllForUser(ctx, session.User.ID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			harness := newTestHarness(t, auth.Options{SessionTTL: time.Hour, SessionSliding: true})

			session, err := harness.service.SignUp(ctx, auth.SignUpInput{
				Email: "ada@example.com", Password: "correct horse battery",
				Client: testClient,
			})
			require.NoError(t, err)

			type observation struct {
				revokedFirst bool // revocation had completed before this validation began
				err          error
			}

			const validators = 8
			const attempts = 32

			var revoked atomic.Bool
			var wg sync.WaitGroup
			observations := make(chan observation, validators*attempts)
			revokeErr := make(chan error, 1)

			for i := 0; i < validators; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < attempts; j++ {
						before := revoked.Load()
						_, validateErr := harness.service.ValidateSession(ctx, session.Token)
						observations <- observation{revokedFirst: before, err: validateErr}
					}
				}()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				revokeErr <- tt.revoke(harness, session)
				revoked.Store(true)
			}()

			wg.Wait()
			close(observations)

			require.NoError(t, <-revokeErr)

			for obs := range observations {
				if !obs.revokedFirst {
					continue // raced with the revocation; either outcome is legal
				}
				assert.Error(t, obs.err, "validation that began after revocation completed must fail")
				assert.True(t, apperr.IsCode(obs.err, apperr.CodeSessionInvalid))
			}

			// Deterministic second round: the revocation has definitely
			// completed, so every concurrent validation must now lose.
			losses := make(chan error, validators)
			for i := 0; i < validators; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, validateErr := harness.service.ValidateSession(ctx, session.Token)
					losses <- validateErr
				}()
			}
			wg.Wait()
			close(losses)

			for validateErr := range losses {
				assert.True(t, apperr.IsCode(validateErr, apperr.CodeSessionInvalid),
					"revoked session must never validate, got: %v", validateErr)
			}
		})
	}
}

/*
TestRevokeAllForUser checks the compromise-response hammer kills every
session of one user and nobody else's.
*/
func TestRevokeAllForUser(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	ada, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	adaSecond, err := harness.service.SignIn(ctx, auth.SignInInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	grace, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "grace@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	require.NoError(t, harness.service.RevokeAllForUser(ctx, ada.User.ID))

	_, err = harness.service.GetSession(ctx, ada.Token)
	assert.True(t, apperr.IsCode(err, apperr.CodeSessionInvalid))
	_, err = harness.service.GetSession(ctx, adaSecond.Token)
	assert.True(t, apperr.IsCode(err, apperr.CodeSessionInvalid))

	_, err = harness.service.GetSession(ctx, grace.Token)
	assert.NoError(t, err, "other users' sessions must survive")
}

// # Magic Link Flow

/*
TestRequestMagicLink_DispatchesWithoutCreatingUser checks the request path
stores a token and emails a link, but never materializes an account.
*/
func TestRequestMagicLink_DispatchesWithoutCreatingUser(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	require.NoError(t, harness.service.RequestMagicLink(ctx, " Ada@Example.com"))

	send, ok := harness.dispatcher.last()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", send.to)

	token := harness.lastLinkToken(t)
	assert.NotEmpty(t, token)

	_, err := harness.users.FindByEmail(ctx, "ada@example.com")
	assert.Error(t, err, "account must not exist before the link is consumed")
}

/*
TestConsumeMagicLink_CreatesAccountLazily checks first consumption creates a
password-less account and signs it in; a second link reuses the account.
*/
func TestConsumeMagicLink_CreatesAccountLazily(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	require.NoError(t, harness.service.RequestMagicLink(ctx, "ada@example.com"))
	first, err := harness.service.ConsumeMagicLink(ctx, harness.lastLinkToken(t), testClient)
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", first.User.Email)
	assert.False(t, first.User.HasPassword())

	user, err := harness.service.GetSession(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, user.ID)

	require.NoError(t, harness.service.RequestMagicLink(ctx, "ada@example.com"))
	second, err := harness.service.ConsumeMagicLink(ctx, harness.lastLinkToken(t), testClient)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID, "same address resolves to the same account")
}

/*
TestConsumeMagicLink_TokenStates checks the three failure codes: unknown,
replayed, and expired tokens.
*/
func TestConsumeMagicLink_TokenStates(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	_, err := harness.service.ConsumeMagicLink(ctx, "never-issued", testClient)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenInvalid))

	require.NoError(t, harness.service.RequestMagicLink(ctx, "ada@example.com"))
	token := harness.lastLinkToken(t)

	_, err = harness.service.ConsumeMagicLink(ctx, token, testClient)
	require.NoError(t, err)

	_, err = harness.service.ConsumeMagicLink(ctx, token, testClient)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenAlreadyUsed))

	// Expired token: the claim burns it, so a retry reports replay, not expiry.
	require.NoError(t, harness.service.RequestMagicLink(ctx, "grace@example.com"))
	staleToken := harness.lastLinkToken(t)
	harness.links.expire(sec.HashToken(staleToken))

	_, err = harness.service.ConsumeMagicLink(ctx, staleToken, testClient)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenExpired))

	_, err = harness.service.ConsumeMagicLink(ctx, staleToken, testClient)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenAlreadyUsed))
}

/*
TestConsumeMagicLink_ExactlyOneWinner races many consumers of one token and
checks exactly one session comes out.
*/
func TestConsumeMagicLink_ExactlyOneWinner(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	require.NoError(t, harness.service.RequestMagicLink(ctx, "ada@example.com"))
	token := harness.lastLinkToken(t)

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := harness.service.ConsumeMagicLink(ctx, token, testClient)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, replays int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case apperr.IsCode(err, apperr.CodeTokenAlreadyUsed):
			replays++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins, "exactly one concurrent consume must win")
	assert.Equal(t, racers-1, replays)
}

/*
TestRequestMagicLink_EagerDeliveryFailure checks an eager-mode transport
failure surfaces to the caller.
*/
func TestRequestMagicLink_EagerDeliveryFailure(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	harness.dispatcher.returnErr = apperr.DeliveryFailed(assert.AnError)

	err := harness.service.RequestMagicLink(context.Background(), "ada@example.com")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeDeliveryFailed))
}

// # Credential Maintenance

/*
TestChangePassword covers the full rotation contract: wrong current password
rejected, weak replacement rejected, and on success the old credential dies
while the current session survives and other sessions are revoked.
*/
func TestChangePassword(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	current, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	other, err := harness.service.SignIn(ctx, auth.SignInInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	userID := current.User.ID

	err = harness.service.ChangePassword(ctx, userID, "wrong password", "a new long password", current.Token)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidCredentials))

	err = harness.service.ChangePassword(ctx, userID, "correct horse battery", "tiny", current.Token)
	assert.True(t, apperr.IsCode(err, apperr.CodeWeakPassword))

	require.NoError(t, harness.service.ChangePassword(
		ctx, userID, "correct horse battery", "a new long password", current.Token))

	_, err = harness.service.SignIn(ctx, auth.SignInInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidCredentials), "old password must stop working")

	_, err = harness.service.SignIn(ctx, auth.SignInInput{
		Email: "ada@example.com", Password: "a new long password",
	})
	assert.NoError(t, err, "new password must work")

	_, err = harness.service.GetSession(ctx, current.Token)
	assert.NoError(t, err, "the changing session stays alive")

	_, err = harness.service.GetSession(ctx, other.Token)
	assert.True(t, apperr.IsCode(err, apperr.CodeSessionInvalid), "other sessions die")
}

// # Garbage Collection

/*
TestPurgeExpired checks expired sessions and links are reclaimed while live
ones survive.
*/
func TestPurgeExpired(t *testing.T) {
	harness := newTestHarness(t, auth.Options{})
	ctx := context.Background()

	live, err := harness.service.SignUp(ctx, auth.SignUpInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)

	dead, err := harness.service.SignIn(ctx, auth.SignInInput{
		Email: "ada@example.com", Password: "correct horse battery",
	})
	require.NoError(t, err)
	harness.sessions.expire(sec.HashToken(dead.Token))

	require.NoError(t, harness.service.RequestMagicLink(ctx, "grace@example.com"))
	staleLink := harness.lastLinkToken(t)
	harness.links.expire(sec.HashToken(staleLink))

	sessions, links, err := harness.service.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sessions)
	assert.Equal(t, int64(1), links)

	_, err = harness.service.GetSession(ctx, live.Token)
	assert.NoError(t, err)
}
