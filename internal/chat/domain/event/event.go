package event

import (
	"sort"
	"strings"
	"time"
)

// Type identifies the kind of a conversation event.
type Type string

const (
	// TypeConversationCreated records the creation of a conversation. It is
	// always the first event of a conversation.
	TypeConversationCreated Type = "ConversationCreated"
	// TypeTitleUpdated records a conversation title change.
	TypeTitleUpdated Type = "TitleUpdated"
	// TypeMessageCreated records a message posted to a conversation.
	TypeMessageCreated Type = "MessageCreated"
	// TypeRecipientCreated records a recipient joining a conversation.
	TypeRecipientCreated Type = "RecipientCreated"
	// TypeRecipientRemoved records a recipient leaving a conversation. The
	// matching RecipientCreated event stays in the log.
	TypeRecipientRemoved Type = "RecipientRemoved"
	// TypeRecipientsCreatedAggregate is a display-only event produced by
	// Aggregate. It is never written to the event store.
	TypeRecipientsCreatedAggregate Type = "RecipientsCreatedAggregate"
)

// IsValid reports whether the event type is one of the persisted kinds.
func (t Type) IsValid() bool {
	switch t {
	case TypeConversationCreated, TypeTitleUpdated, TypeMessageCreated,
		TypeRecipientCreated, TypeRecipientRemoved:
		return true
	}
	return false
}

// User references an actor or recipient together with their display name.
// The username is denormalized from the user record at read time; the event
// log itself stores only the user id.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SortUsersByUsername orders users by username ascending, id as tie-breaker.
func SortUsersByUsername(users []User) {
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Username != users[j].Username {
			return users[i].Username < users[j].Username
		}
		return users[i].ID < users[j].ID
	})
}

// Payload carries the type-specific data of a committed event. Exactly one
// concrete payload type exists per event kind, so a variant can only hold the
// fields that belong to it.
type Payload interface {
	EventType() Type
}

// ConversationCreated is the payload of the first event of every conversation.
type ConversationCreated struct{}

// EventType implements Payload.
func (ConversationCreated) EventType() Type { return TypeConversationCreated }

// TitleUpdated carries a conversation title change. A nil Title clears the
// conversation title.
type TitleUpdated struct {
	Title *string
}

// EventType implements Payload.
func (TitleUpdated) EventType() Type { return TypeTitleUpdated }

// MessageCreated carries a posted message body.
type MessageCreated struct {
	Message string
}

// EventType implements Payload.
func (MessageCreated) EventType() Type { return TypeMessageCreated }

// RecipientCreated carries the recipient added to the conversation.
type RecipientCreated struct {
	Recipient User
}

// EventType implements Payload.
func (RecipientCreated) EventType() Type { return TypeRecipientCreated }

// RecipientRemoved carries the recipient removed from the conversation.
type RecipientRemoved struct {
	Recipient User
}

// EventType implements Payload.
func (RecipientRemoved) EventType() Type { return TypeRecipientRemoved }

// RecipientsCreatedAggregate collapses a run of RecipientCreated events by the
// same actor into one display element. Recipients are sorted by username.
type RecipientsCreatedAggregate struct {
	Recipients []User
}

// EventType implements Payload.
func (RecipientsCreatedAggregate) EventType() Type { return TypeRecipientsCreatedAggregate }

// Event is one committed, immutable conversation fact. ID and CreatedAt are
// assigned by the store at append time; ID is strictly increasing within a
// conversation and defines the event order.
type Event struct {
	ID             int64
	ConversationID string
	CreatedAt      time.Time
	CreatedBy      User
	Payload        Payload
}

// Type returns the event kind carried by the payload.
func (e Event) Type() Type {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// Draft is an event awaiting append. Recipients are referenced by id only;
// the store resolves display names when it commits the draft.
type Draft struct {
	ConversationID string
	CreatedBy      string
	Type           Type
	Title          *string
	Message        string
	RecipientID    string
}

// Validate reports whether the draft is structurally appendable.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.ConversationID) == "" {
		return errEmptyConversationID
	}
	if strings.TrimSpace(d.CreatedBy) == "" {
		return errEmptyCreatedBy
	}
	switch d.Type {
	case TypeConversationCreated, TypeTitleUpdated:
		return nil
	case TypeMessageCreated:
		if d.Message == "" {
			return errEmptyMessage
		}
		return nil
	case TypeRecipientCreated, TypeRecipientRemoved:
		if strings.TrimSpace(d.RecipientID) == "" {
			return errEmptyRecipientID
		}
		return nil
	default:
		return errInvalidType
	}
}

// NewConversationCreated drafts the creation event for a conversation.
func NewConversationCreated(conversationID, createdBy string) Draft {
	return Draft{
		ConversationID: conversationID,
		CreatedBy:      createdBy,
		Type:           TypeConversationCreated,
	}
}

// NewTitleUpdated drafts a title change event. A nil title clears the title.
func NewTitleUpdated(conversationID, createdBy string, title *string) Draft {
	return Draft{
		ConversationID: conversationID,
		CreatedBy:      createdBy,
		Type:           TypeTitleUpdated,
		Title:          title,
	}
}

// NewMessageCreated drafts a message event.
func NewMessageCreated(conversationID, createdBy, message string) Draft {
	return Draft{
		ConversationID: conversationID,
		CreatedBy:      createdBy,
		Type:           TypeMessageCreated,
		Message:        message,
	}
}

// NewRecipientCreated drafts a recipient addition event.
func NewRecipientCreated(conversationID, createdBy, recipientID string) Draft {
	return Draft{
		ConversationID: conversationID,
		CreatedBy:      createdBy,
		Type:           TypeRecipientCreated,
		RecipientID:    recipientID,
	}
}

// NewRecipientRemoved drafts a recipient removal event.
func NewRecipientRemoved(conversationID, createdBy, recipientID string) Draft {
	return Draft{
		ConversationID: conversationID,
		CreatedBy:      createdBy,
		Type:           TypeRecipientRemoved,
		RecipientID:    recipientID,
	}
}
