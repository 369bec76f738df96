package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/conclave-chat/conclave/internal/platform/errors"

	"github.com/conclave-chat/conclave/internal/chat/domain/event"
	"github.com/conclave-chat/conclave/internal/chat/storage"
)

const selectEventsQuery = `
SELECT e.id, e.conversation_id, e.event_type, e.created_at,
       e.created_by, cu.username,
       e.title, e.message,
       e.recipient_id, ru.username
FROM conversation_events AS e
JOIN users AS cu ON cu.id = e.created_by
LEFT JOIN users AS ru ON ru.id = e.recipient_id
`

// AppendEvents validates and commits the drafts in one transaction. Usernames
// are resolved inside the transaction so the returned events are complete.
func (s *Store) AppendEvents(ctx context.Context, drafts []event.Draft) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("no events to append")
	}
	for _, draft := range drafts {
		if err := draft.Validate(); err != nil {
			return nil, fmt.Errorf("validate event draft: %w", err)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	usernames := map[string]string{}

	committed := make([]event.Event, 0, len(drafts))
	for _, draft := range drafts {
		actorName, err := resolveUsername(ctx, tx, usernames, draft.CreatedBy)
		if err != nil {
			return nil, err
		}

		var recipient sql.NullString
		var recipientName string
		if draft.RecipientID != "" {
			recipientName, err = resolveUsername(ctx, tx, usernames, draft.RecipientID)
			if err != nil {
				return nil, err
			}
			recipient = sql.NullString{String: draft.RecipientID, Valid: true}
		}

		var title sql.NullString
		if draft.Title != nil {
			title = sql.NullString{String: *draft.Title, Valid: true}
		}
		var message sql.NullString
		if draft.Message != "" {
			message = sql.NullString{String: draft.Message, Valid: true}
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_events
			    (conversation_id, event_type, created_at, created_by, title, message, recipient_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			draft.ConversationID, string(draft.Type), toMillis(now), draft.CreatedBy,
			title, message, recipient,
		)
		if err != nil {
			if isForeignKeyConstraintError(err) {
				return nil, storage.ErrNotFound
			}
			return nil, fmt.Errorf("insert event: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read event id: %w", err)
		}

		committed = append(committed, event.Event{
			ID:             id,
			ConversationID: draft.ConversationID,
			CreatedAt:      now,
			CreatedBy:      event.User{ID: draft.CreatedBy, Username: actorName},
			Payload: draftPayload(draft, event.User{
				ID:       draft.RecipientID,
				Username: recipientName,
			}),
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append tx: %w", err)
	}
	return committed, nil
}

// ListEvents returns the raw event log of a conversation, newest first.
func (s *Store) ListEvents(ctx context.Context, conversationID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		selectEventsQuery+`WHERE e.conversation_id = ? ORDER BY e.id DESC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// resolveUsername looks up a username inside the append transaction, caching
// per batch. A missing user fails the whole batch.
func resolveUsername(ctx context.Context, q queryer, cache map[string]string, userID string) (string, error) {
	if name, ok := cache[userID]; ok {
		return name, nil
	}
	var name string
	err := q.QueryRowContext(ctx, `SELECT username FROM users WHERE id = ?`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.WithMetadata(apperrors.CodeUserNotFound, "user not found",
			map[string]string{"user_id": userID})
	}
	if err != nil {
		return "", fmt.Errorf("resolve username: %w", err)
	}
	cache[userID] = name
	return name, nil
}

func draftPayload(draft event.Draft, recipient event.User) event.Payload {
	switch draft.Type {
	case event.TypeConversationCreated:
		return event.ConversationCreated{}
	case event.TypeTitleUpdated:
		return event.TitleUpdated{Title: draft.Title}
	case event.TypeMessageCreated:
		return event.MessageCreated{Message: draft.Message}
	case event.TypeRecipientCreated:
		return event.RecipientCreated{Recipient: recipient}
	case event.TypeRecipientRemoved:
		return event.RecipientRemoved{Recipient: recipient}
	default:
		return nil
	}
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var (
		evt           event.Event
		eventType     string
		createdAt     int64
		actorName     string
		title         sql.NullString
		message       sql.NullString
		recipientID   sql.NullString
		recipientName sql.NullString
	)
	err := rows.Scan(
		&evt.ID, &evt.ConversationID, &eventType, &createdAt,
		&evt.CreatedBy.ID, &actorName,
		&title, &message,
		&recipientID, &recipientName,
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}

	evt.CreatedAt = fromMillis(createdAt)
	evt.CreatedBy.Username = actorName

	recipient := event.User{ID: recipientID.String, Username: recipientName.String}
	switch event.Type(eventType) {
	case event.TypeConversationCreated:
		evt.Payload = event.ConversationCreated{}
	case event.TypeTitleUpdated:
		var titleValue *string
		if title.Valid {
			value := title.String
			titleValue = &value
		}
		evt.Payload = event.TitleUpdated{Title: titleValue}
	case event.TypeMessageCreated:
		evt.Payload = event.MessageCreated{Message: message.String}
	case event.TypeRecipientCreated:
		evt.Payload = event.RecipientCreated{Recipient: recipient}
	case event.TypeRecipientRemoved:
		evt.Payload = event.RecipientRemoved{Recipient: recipient}
	default:
		return event.Event{}, fmt.Errorf("unknown event type %q", eventType)
	}
	return evt, nil
}
