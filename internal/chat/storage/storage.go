// Package storage defines the persistence contracts of the chat service.
package storage

import (
	"context"
	"time"

	apperrors "github.com/conclave-chat/conclave/internal/platform/errors"

	"github.com/conclave-chat/conclave/internal/chat/domain/conversation"
	"github.com/conclave-chat/conclave/internal/chat/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrUsernameTaken indicates a registration collided with an existing
// username. Usernames are unique across the whole service.
var ErrUsernameTaken = apperrors.New(apperrors.CodeUsernameTaken, "username already taken")

// UserRecord is the persisted identity of a user. Password material lives in
// a separate table and never travels on this record.
type UserRecord struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// TokenRecord tracks an issued auth token for revocation. Logout deletes the
// record, which invalidates every bearer token carrying its id.
type TokenRecord struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// UserStore persists user identities and password hashes.
type UserStore interface {
	// CreateUser inserts a user and its password hash atomically. It returns
	// ErrUsernameTaken when the username is already registered.
	CreateUser(ctx context.Context, record UserRecord, passwordHash string) error
	// GetUser returns the user with the given id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (UserRecord, error)
	// GetUserByUsername returns the user with the given username, or ErrNotFound.
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
	// GetPasswordHash returns the stored password hash for a user, or ErrNotFound.
	GetPasswordHash(ctx context.Context, userID string) (string, error)
	// ListContacts returns every user except the given one, ordered by username.
	ListContacts(ctx context.Context, excludeUserID string) ([]UserRecord, error)
}

// TokenStore persists issued auth tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, record TokenRecord) error
	// GetToken returns the token with the given id, or ErrNotFound once the
	// token has been revoked.
	GetToken(ctx context.Context, id string) (TokenRecord, error)
	DeleteToken(ctx context.Context, id string) error
}

// EventStore persists the append-only conversation event log and answers
// queries against its projections.
type EventStore interface {
	// AppendEvents validates and commits the drafts in a single transaction.
	// Either every draft commits or none does. The returned events carry the
	// assigned ids, timestamps, and resolved usernames, in draft order. A
	// draft referencing an unknown user fails the whole batch with a
	// not-found error.
	AppendEvents(ctx context.Context, drafts []event.Draft) ([]event.Event, error)
	// ListEvents returns the raw event log of a conversation, newest first.
	ListEvents(ctx context.Context, conversationID string) ([]event.Event, error)
	// GetConversation composes the read model of one conversation from the
	// projections, or returns ErrNotFound when no creation event exists.
	GetConversation(ctx context.Context, conversationID string) (conversation.Conversation, error)
	// ListConversationsForUser returns every conversation the user is
	// currently a recipient of, most recent activity first.
	ListConversationsForUser(ctx context.Context, userID string) ([]conversation.Conversation, error)
	// IsRecipient reports whether the user is currently a recipient of the
	// conversation.
	IsRecipient(ctx context.Context, conversationID, userID string) (bool, error)
	// FindConversationByRecipientIDs returns the id of a conversation whose
	// current recipient set is exactly recipientIDs, or ErrNotFound. The
	// caller must pass a de-duplicated id set.
	FindConversationByRecipientIDs(ctx context.Context, recipientIDs []string) (string, error)
}

// Store bundles every persistence concern behind one handle.
type Store interface {
	UserStore
	TokenStore
	EventStore
	Close() error
}
