package app

import (
	"log"

	"github.com/google/uuid"

	"github.com/conclave-chat/conclave/internal/auth"
	"github.com/conclave-chat/conclave/internal/chat/domain/conversation"
	"github.com/conclave-chat/conclave/internal/chat/domain/event"
	"github.com/conclave-chat/conclave/internal/chat/storage"
)

// Limits bound user-supplied command input.
type Limits struct {
	// MaxRecipients caps the total membership of a conversation, the
	// creating user included.
	MaxRecipients int
	// MaxMessageLength caps message content bytes.
	MaxMessageLength int
	// MaxTitleLength caps conversation title bytes.
	MaxTitleLength int
}

// DefaultLimits returns the stock command limits.
func DefaultLimits() Limits {
	return Limits{
		MaxRecipients:    10,
		MaxMessageLength: 2000,
		MaxTitleLength:   100,
	}
}

// Service executes chat commands and queries. Commands validate against the
// read model, append to the event store transactionally, and push the
// committed events to the live connections of affected recipients.
type Service struct {
	store    storage.Store
	tokens   *auth.TokenService
	registry *Registry
	logger   *log.Logger
	limits   Limits

	newID func() string
}

// NewService wires the chat service over its collaborators.
func NewService(store storage.Store, tokens *auth.TokenService, registry *Registry, logger *log.Logger, limits Limits) *Service {
	if logger == nil {
		logger = log.Default()
	}
	defaults := DefaultLimits()
	if limits.MaxRecipients <= 0 {
		limits.MaxRecipients = defaults.MaxRecipients
	}
	if limits.MaxMessageLength <= 0 {
		limits.MaxMessageLength = defaults.MaxMessageLength
	}
	if limits.MaxTitleLength <= 0 {
		limits.MaxTitleLength = defaults.MaxTitleLength
	}
	return &Service{
		store:    store,
		tokens:   tokens,
		registry: registry,
		logger:   logger,
		limits:   limits,
		newID:    uuid.NewString,
	}
}

// Tokens exposes the token service for transport-level authentication.
func (s *Service) Tokens() *auth.TokenService {
	return s.tokens
}

// Registry exposes the connection registry for the live channel handler.
func (s *Service) Registry() *Registry {
	return s.registry
}

// dispatch pushes committed events, in commit order, to every live
// connection of the given recipients. Dispatch failures never fail the
// command; offline recipients re-fetch state on reconnect.
func (s *Service) dispatch(recipientIDs []string, events []event.Event) {
	if s.registry == nil {
		return
	}
	for _, evt := range events {
		s.registry.Dispatch(recipientIDs, evt)
	}
}

func recipientIDsOf(conv conversation.Conversation) []string {
	ids := make([]string, 0, len(conv.Recipients))
	for _, recipient := range conv.Recipients {
		ids = append(ids, recipient.ID)
	}
	return ids
}
