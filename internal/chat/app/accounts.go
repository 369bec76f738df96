package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conclave-chat/conclave/internal/auth"
	"github.com/conclave-chat/conclave/internal/chat/storage"
)

// Session is the result of a successful registration or login.
type Session struct {
	User  storage.UserRecord
	Token string
}

// Register creates a user account and logs it in.
func (s *Service) Register(ctx context.Context, username, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if err := auth.ValidateUsername(username); err != nil {
		return Session{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, err
	}

	record := storage.UserRecord{
		ID:        s.newID(),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, record, hash); err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			return Session{}, storage.ErrUsernameTaken
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(ctx, record.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Printf("registered user %s", record.ID)
	return Session{User: record, Token: token}, nil
}

// Login verifies credentials and issues a fresh token. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	record, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.store.GetPasswordHash(ctx, record.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup password: %w", err)
	}
	if err := auth.VerifyPassword(hash, password); err != nil {
		return Session{}, err
	}

	token, err := s.tokens.Issue(ctx, record.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{User: record, Token: token}, nil
}

// Logout revokes the token behind the current session. Every bearer of the
// same token id loses access immediately.
func (s *Service) Logout(ctx context.Context, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, tokenID)
}

// ListContacts returns every other registered user, ordered by username, as
// candidates for new conversations.
func (s *Service) ListContacts(ctx context.Context, userID string) ([]storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contacts, err := s.store.ListContacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}
