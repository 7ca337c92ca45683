// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/lumera-id/lumera/internal/auth"
	"github.com/lumera-id/lumera/internal/platform/apperr"
)

// In-memory repository fakes. They replicate the storage-level atomicity
// contracts (single-winner consume, conditional touch) under a mutex so the
// service-level concurrency tests exercise the same semantics the SQL
// implementations provide.

// # User Repository Fake

type fakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*auth.User // keyed by ID
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[string]*auth.User)}
}

func (repo *fakeUserRepository) FindByID(_ context.Context, id string) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	user, ok := repo.users[id]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	copied := *user
	return &copied, nil
}

func (repo *fakeUserRepository) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, user := range repo.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUserRepository) Create(_ context.Context, user *auth.User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, existing := range repo.users {
		if existing.Email == user.Email {
			return apperr.DuplicateEmail()
		}
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	copied := *user
	repo.users[user.ID] = &copied
	return nil
}

func (repo *fakeUserRepository) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if user, ok := repo.users[userID]; ok {
		hash := newHash
		user.PasswordHash = &hash
		user.UpdatedAt = time.Now()
	}
	return nil
}

// # Session Repository Fake

type fakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session // keyed by token hash
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: make(map[string]*auth.Session)}
}

func (repo *fakeSessionRepository) Create(_ context.Context, session *auth.Session) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = session.CreatedAt
	}

	copied := *session
	repo.sessions[session.TokenHash] = &copied
	return nil
}

func (repo *fakeSessionRepository) Touch(_ context.Context, tokenHash string, extendTo time.Time) (*auth.Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	session, ok := repo.sessions[tokenHash]
	if !ok || session.IsRevoked || !session.ExpiresAt.After(time.Now()) {
		return nil, apperr.NotFound("Session")
	}

	session.LastSeenAt = time.Now()
	if !extendTo.IsZero() && extendTo.After(session.ExpiresAt) {
		session.ExpiresAt = extendTo
	}

	copied := *session
	return &copied, nil
}

func (repo *fakeSessionRepository) Revoke(_ context.Context, tokenHash string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if session, ok := repo.sessions[tokenHash]; ok {
		session.IsRevoked = true
	}
	return nil
}

func (repo *fakeSessionRepository) RevokeAll(_ context.Context, userID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, session := range repo.sessions {
		if session.UserID == userID {
			session.IsRevoked = true
		}
	}
	return nil
}

func (repo *fakeSessionRepository) RevokeOthers(_ context.Context, userID, keepTokenHash string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for hash, session := range repo.sessions {
		if session.UserID == userID && hash != keepTokenHash {
			session.IsRevoked = true
		}
	}
	return nil
}

func (repo *fakeSessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var removed int64
	for hash, session := range repo.sessions {
		if !session.ExpiresAt.After(time.Now()) {
			delete(repo.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

// expire force-expires a session so tests can cross the expiry boundary
// without sleeping.
func (repo *fakeSessionRepository) expire(tokenHash string) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if session, ok := repo.sessions[tokenHash]; ok {
		session.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// expiresAt reads a session's current expiry.
func (repo *fakeSessionRepository) expiresAt(tokenHash string) time.Time {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if session, ok := repo.sessions[tokenHash]; ok {
		return session.ExpiresAt
	}
	return time.Time{}
}

// # Magic Link Repository Fake

type fakeMagicLinkRepository struct {
	mu    sync.Mutex
	links map[string]*auth.MagicLink // keyed by token hash
}

func newFakeMagicLinkRepository() *fakeMagicLinkRepository {
	return &fakeMagicLinkRepository{links: make(map[string]*auth.MagicLink)}
}

func (repo *fakeMagicLinkRepository) Create(_ context.Context, link *auth.MagicLink) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	copied := *link
	repo.links[link.TokenHash] = &copied
	return nil
}

func (repo *fakeMagicLinkRepository) Consume(_ context.Context, tokenHash string, consumedAt time.Time) (*auth.MagicLink, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	link, ok := repo.links[tokenHash]
	if !ok || link.Consumed {
		return nil, apperr.NotFound("Magic link")
	}

	link.Consumed = true
	at := consumedAt
	link.ConsumedAt = &at

	copied := *link
	return &copied, nil
}

func (repo *fakeMagicLinkRepository) Exists(_ context.Context, tokenHash string) (bool, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	_, ok := repo.links[tokenHash]
	return ok, nil
}

func (repo *fakeMagicLinkRepository) DeleteExpired(_ context.Context) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var removed int64
	for hash, link := range repo.links {
		if !link.ExpiresAt.After(time.Now()) {
			delete(repo.links, hash)
			removed++
		}
	}
	return removed, nil
}

// expire force-expires a magic link.
func (repo *fakeMagicLinkRepository) expire(tokenHash string) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if link, ok := repo.links[tokenHash]; ok {
		link.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// # Dispatcher Fake

// captureDispatcher records dispatched links instead of sending mail.
type captureDispatcher struct {
	mu        sync.Mutex
	sends     []capturedSend
	returnErr error
}

type capturedSend struct {
	to  string
	url string
}

func (dispatcher *captureDispatcher) Dispatch(_ context.Context, to string, magicLinkURL string) error {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	if dispatcher.returnErr != nil {
		return dispatcher.returnErr
	}

	dispatcher.sends = append(dispatcher.sends, capturedSend{to: to, url: magicLinkURL})
	return nil
}

func (dispatcher *captureDispatcher) last() (capturedSend, bool) {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	if len(dispatcher.sends) == 0 {
		return capturedSend{}, false
	}
	return dispatcher.sends[len(dispatcher.sends)-1], true
}
