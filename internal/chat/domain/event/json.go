package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	errEmptyConversationID = errors.New("conversation id is required")
	errEmptyCreatedBy      = errors.New("created by is required")
	errEmptyMessage        = errors.New("message is required")
	errEmptyRecipientID    = errors.New("recipient id is required")
	errInvalidType         = errors.New("invalid event type")
)

// wireEvent is the flat JSON shape shared by the REST and socket surfaces.
type wireEvent struct {
	ID             int64   `json:"id"`
	Type           Type    `json:"type"`
	ConversationID string  `json:"conversationId"`
	CreatedAt      string  `json:"createdAt"`
	CreatedBy      User    `json:"createdBy"`
	Title          *string `json:"title,omitempty"`
	Message        *string `json:"message,omitempty"`
	Recipient      *User   `json:"recipient,omitempty"`
	Recipients     []User  `json:"recipients,omitempty"`
}

// MarshalJSON flattens the event payload into the wire shape, keeping only
// the fields that belong to the event's type.
func (e Event) MarshalJSON() ([]byte, error) {
	wire := wireEvent{
		ID:             e.ID,
		Type:           e.Type(),
		ConversationID: e.ConversationID,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedBy:      e.CreatedBy,
	}

	switch payload := e.Payload.(type) {
	case ConversationCreated:
	case TitleUpdated:
		// TitleUpdated always carries a title key, even when cleared.
		return json.Marshal(struct {
			wireEvent
			Title *string `json:"title"`
		}{wireEvent: wire, Title: payload.Title})
	case MessageCreated:
		wire.Message = &payload.Message
	case RecipientCreated:
		recipient := payload.Recipient
		wire.Recipient = &recipient
	case RecipientRemoved:
		recipient := payload.Recipient
		wire.Recipient = &recipient
	case RecipientsCreatedAggregate:
		wire.Recipients = payload.Recipients
	default:
		return nil, fmt.Errorf("marshal event %d: unknown payload %T", e.ID, e.Payload)
	}

	return json.Marshal(wire)
}

// UnmarshalJSON restores an event from the wire shape.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	createdAt, err := time.Parse(time.RFC3339Nano, wire.CreatedAt)
	if err != nil {
		return fmt.Errorf("unmarshal event %d: parse createdAt: %w", wire.ID, err)
	}

	restored := Event{
		ID:             wire.ID,
		ConversationID: wire.ConversationID,
		CreatedAt:      createdAt,
		CreatedBy:      wire.CreatedBy,
	}

	switch wire.Type {
	case TypeConversationCreated:
		restored.Payload = ConversationCreated{}
	case TypeTitleUpdated:
		restored.Payload = TitleUpdated{Title: wire.Title}
	case TypeMessageCreated:
		var message string
		if wire.Message != nil {
			message = *wire.Message
		}
		restored.Payload = MessageCreated{Message: message}
	case TypeRecipientCreated:
		if wire.Recipient == nil {
			return fmt.Errorf("unmarshal event %d: missing recipient", wire.ID)
		}
		restored.Payload = RecipientCreated{Recipient: *wire.Recipient}
	case TypeRecipientRemoved:
		if wire.Recipient == nil {
			return fmt.Errorf("unmarshal event %d: missing recipient", wire.ID)
		}
		restored.Payload = RecipientRemoved{Recipient: *wire.Recipient}
	case TypeRecipientsCreatedAggregate:
		restored.Payload = RecipientsCreatedAggregate{Recipients: wire.Recipients}
	default:
		return fmt.Errorf("unmarshal event %d: unknown type %q", wire.ID, wire.Type)
	}

	*e = restored
	return nil
}
