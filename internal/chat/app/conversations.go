package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/conclave-chat/conclave/internal/platform/errors"

	"github.com/conclave-chat/conclave/internal/chat/domain/conversation"
	"github.com/conclave-chat/conclave/internal/chat/domain/event"
	"github.com/conclave-chat/conclave/internal/chat/storage"
)

var (
	errConversationNotFound = apperrors.New(apperrors.CodeConversationNotFound, "conversation not found")
	errNotRecipient         = apperrors.New(apperrors.CodeNotConversationRecipient, "user is not a recipient of this conversation")
)

// CreateConversation appends the creation batch for a new conversation: the
// creation event, an optional title, and one RecipientCreated per member,
// creator first. The whole batch commits atomically and is then dispatched
// to every member's live connections.
func (s *Service) CreateConversation(ctx context.Context, actorID string, recipientIDs []string, title *string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	others := conversation.SanitizeRecipientIDs(actorID, recipientIDs)
	if len(others) == 0 {
		return nil, apperrors.New(apperrors.CodeMinimumRecipientsRequired,
			"a conversation needs at least one other recipient")
	}
	members := append([]string{actorID}, others...)
	if len(members) > s.limits.MaxRecipients {
		return nil, apperrors.WithMetadata(apperrors.CodeMaximumRecipientsExceeded,
			fmt.Sprintf("a conversation holds at most %d recipients", s.limits.MaxRecipients),
			map[string]string{"max_recipients": fmt.Sprint(s.limits.MaxRecipients)})
	}
	if err := s.validateTitle(title); err != nil {
		return nil, err
	}

	if len(members) == conversation.DirectRecipientCount {
		_, err := s.store.FindConversationByRecipientIDs(ctx, members)
		if err == nil {
			return nil, apperrors.New(apperrors.CodeExistingDirectConversation,
				"a direct conversation with this recipient already exists")
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("check direct conversation: %w", err)
		}
	}

	conversationID := s.newID()
	drafts := []event.Draft{event.NewConversationCreated(conversationID, actorID)}
	if title != nil {
		drafts = append(drafts, event.NewTitleUpdated(conversationID, actorID, title))
	}
	for _, memberID := range members {
		drafts = append(drafts, event.NewRecipientCreated(conversationID, actorID, memberID))
	}

	committed, err := s.store.AppendEvents(ctx, drafts)
	if err != nil {
		return nil, fmt.Errorf("append conversation events: %w", err)
	}

	s.dispatch(members, committed)
	return committed, nil
}

// UpdateTitle appends a TitleUpdated event. A nil title clears the title.
func (s *Service) UpdateTitle(ctx context.Context, actorID, conversationID string, title *string) (event.Event, error) {
	conv, err := s.memberConversation(ctx, actorID, conversationID)
	if err != nil {
		return event.Event{}, err
	}
	if err := s.validateTitle(title); err != nil {
		return event.Event{}, err
	}

	committed, err := s.store.AppendEvents(ctx, []event.Draft{
		event.NewTitleUpdated(conversationID, actorID, title),
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("append title event: %w", err)
	}

	s.dispatch(recipientIDsOf(conv), committed)
	return committed[0], nil
}

// PostMessage appends a MessageCreated event. Content must contain at least
// one non-whitespace character and is stored as given.
func (s *Service) PostMessage(ctx context.Context, actorID, conversationID, content string) (event.Event, error) {
	conv, err := s.memberConversation(ctx, actorID, conversationID)
	if err != nil {
		return event.Event{}, err
	}
	if strings.TrimSpace(content) == "" {
		return event.Event{}, apperrors.New(apperrors.CodeMessageContentEmpty,
			"message content must not be empty")
	}
	if len(content) > s.limits.MaxMessageLength {
		return event.Event{}, apperrors.New(apperrors.CodeMessageContentTooLong,
			fmt.Sprintf("message content must be at most %d bytes", s.limits.MaxMessageLength))
	}

	committed, err := s.store.AppendEvents(ctx, []event.Draft{
		event.NewMessageCreated(conversationID, actorID, content),
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("append message event: %w", err)
	}

	s.dispatch(recipientIDsOf(conv), committed)
	return committed[0], nil
}

// AddRecipient appends a RecipientCreated event for an existing user who is
// not yet a member.
func (s *Service) AddRecipient(ctx context.Context, actorID, conversationID, recipientID string) (event.Event, error) {
	conv, err := s.memberConversation(ctx, actorID, conversationID)
	if err != nil {
		return event.Event{}, err
	}

	if _, err := s.store.GetUser(ctx, recipientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return event.Event{}, apperrors.New(apperrors.CodeUserNotFound, "user not found")
		}
		return event.Event{}, fmt.Errorf("lookup recipient: %w", err)
	}
	if conv.HasRecipient(recipientID) {
		return event.Event{}, apperrors.New(apperrors.CodeRecipientAlreadyMember,
			"recipient is already part of this conversation")
	}
	if len(conv.Recipients)+1 > s.limits.MaxRecipients {
		return event.Event{}, apperrors.New(apperrors.CodeMaximumRecipientsExceeded,
			fmt.Sprintf("a conversation holds at most %d recipients", s.limits.MaxRecipients))
	}

	committed, err := s.store.AppendEvents(ctx, []event.Draft{
		event.NewRecipientCreated(conversationID, actorID, recipientID),
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("append recipient event: %w", err)
	}

	// The new member gets the event too, so their open clients learn about
	// the conversation.
	s.dispatch(append(recipientIDsOf(conv), recipientID), committed)
	return committed[0], nil
}

// RemoveRecipient appends a RecipientRemoved event. The membership may never
// drop below two recipients.
func (s *Service) RemoveRecipient(ctx context.Context, actorID, conversationID, recipientID string) (event.Event, error) {
	conv, err := s.memberConversation(ctx, actorID, conversationID)
	if err != nil {
		return event.Event{}, err
	}
	if !conv.HasRecipient(recipientID) {
		return event.Event{}, apperrors.New(apperrors.CodeRecipientNotMember,
			"recipient is not part of this conversation")
	}
	if len(conv.Recipients)-1 < conversation.DirectRecipientCount {
		return event.Event{}, apperrors.New(apperrors.CodeMinimumRecipientsAfterRemoval,
			"a conversation keeps at least two recipients")
	}

	committed, err := s.store.AppendEvents(ctx, []event.Draft{
		event.NewRecipientRemoved(conversationID, actorID, recipientID),
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("append removal event: %w", err)
	}

	// Dispatch to the pre-removal membership so the removed recipient sees
	// their own removal.
	s.dispatch(recipientIDsOf(conv), committed)
	return committed[0], nil
}

// GetConversation returns the read model of one conversation the actor
// belongs to.
func (s *Service) GetConversation(ctx context.Context, actorID, conversationID string) (conversation.Conversation, error) {
	return s.memberConversation(ctx, actorID, conversationID)
}

// ListConversations returns the actor's conversations, most recent activity
// first.
func (s *Service) ListConversations(ctx context.Context, actorID string) ([]conversation.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conversations, err := s.store.ListConversationsForUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// ListEvents returns a conversation's event log, newest first. With
// aggregated set, adjacent same-actor recipient additions collapse into
// display aggregates; the raw log is for audit use.
func (s *Service) ListEvents(ctx context.Context, actorID, conversationID string, aggregated bool) ([]event.Event, error) {
	if _, err := s.memberConversation(ctx, actorID, conversationID); err != nil {
		return nil, err
	}

	events, err := s.store.ListEvents(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if aggregated {
		return event.Aggregate(events), nil
	}
	return events, nil
}

// memberConversation loads a conversation and authorizes the actor as a
// current recipient. Every write command runs through this check first.
func (s *Service) memberConversation(ctx context.Context, actorID, conversationID string) (conversation.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return conversation.Conversation{}, err
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return conversation.Conversation{}, errConversationNotFound
	}
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasRecipient(actorID) {
		return conversation.Conversation{}, errNotRecipient
	}
	return conv, nil
}

func (s *Service) validateTitle(title *string) error {
	if title == nil {
		return nil
	}
	if strings.TrimSpace(*title) == "" {
		return apperrors.New(apperrors.CodeInvalidRequest, "title must not be empty")
	}
	if len(*title) > s.limits.MaxTitleLength {
		return apperrors.New(apperrors.CodeTitleTooLong,
			fmt.Sprintf("title must be at most %d bytes", s.limits.MaxTitleLength))
	}
	return nil
}
