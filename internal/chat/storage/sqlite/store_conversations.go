package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/conclave-chat/conclave/internal/chat/domain/conversation"
	"github.com/conclave-chat/conclave/internal/chat/domain/event"
	"github.com/conclave-chat/conclave/internal/chat/storage"
)

const selectConversationHeadQuery = `
SELECT c.conversation_id, c.created_at, c.created_by, cu.username,
       t.title, la.last_activity_at
FROM conversation_created_events AS c
JOIN users AS cu ON cu.id = c.created_by
JOIN conversation_last_activity AS la ON la.conversation_id = c.conversation_id
LEFT JOIN conversation_titles AS t ON t.conversation_id = c.conversation_id
`

// GetConversation composes the read model of one conversation from the
// projection views.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (conversation.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return conversation.Conversation{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		selectConversationHeadQuery+`WHERE c.conversation_id = ?`, conversationID)
	conv, err := scanConversationHead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, storage.ErrNotFound
	}
	if err != nil {
		return conversation.Conversation{}, err
	}

	if err := s.fillConversation(ctx, &conv); err != nil {
		return conversation.Conversation{}, err
	}
	return conv, nil
}

// ListConversationsForUser returns every conversation the user currently
// belongs to, most recent activity first.
func (s *Store) ListConversationsForUser(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		selectConversationHeadQuery+`
		JOIN conversation_recipients AS rm ON rm.conversation_id = c.conversation_id
		WHERE rm.recipient_id = ?
		ORDER BY la.last_activity_at DESC, c.conversation_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}
	defer rows.Close()

	var conversations []conversation.Conversation
	for rows.Next() {
		conv, err := scanConversationHead(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	for i := range conversations {
		if err := s.fillConversation(ctx, &conversations[i]); err != nil {
			return nil, err
		}
	}
	return conversations, nil
}

// IsRecipient reports current membership per the recipients projection.
func (s *Store) IsRecipient(ctx context.Context, conversationID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var one int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM conversation_recipients WHERE conversation_id = ? AND recipient_id = ? LIMIT 1`,
		conversationID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select recipient membership: %w", err)
	}
	return true, nil
}

// FindConversationByRecipientIDs returns a conversation whose current
// recipient set is exactly recipientIDs. The ids must be de-duplicated; a
// duplicated id inflates the expected count and the match silently fails.
func (s *Store) FindConversationByRecipientIDs(ctx context.Context, recipientIDs []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(recipientIDs) == 0 {
		return "", storage.ErrNotFound
	}

	placeholders := strings.Repeat("?, ", len(recipientIDs)-1) + "?"
	args := make([]any, 0, len(recipientIDs)+2)
	for _, id := range recipientIDs {
		args = append(args, id)
	}
	args = append(args, len(recipientIDs), len(recipientIDs))

	var conversationID string
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT conversation_id
		FROM conversation_recipients
		GROUP BY conversation_id
		HAVING SUM(CASE WHEN recipient_id IN (`+placeholders+`) THEN 1 ELSE 0 END) = ?
		   AND COUNT(*) = ?
		LIMIT 1`,
		args...,
	).Scan(&conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select conversation by recipients: %w", err)
	}
	return conversationID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversationHead(row rowScanner) (conversation.Conversation, error) {
	var (
		conv           conversation.Conversation
		createdAt      int64
		title          sql.NullString
		lastActivityAt int64
	)
	err := row.Scan(&conv.ID, &createdAt, &conv.CreatedBy.ID, &conv.CreatedBy.Username,
		&title, &lastActivityAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversation.Conversation{}, err
		}
		return conversation.Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	conv.CreatedAt = fromMillis(createdAt)
	conv.LastActivityAt = fromMillis(lastActivityAt)
	if title.Valid {
		value := title.String
		conv.Title = &value
	}
	return conv, nil
}

// fillConversation loads the recipient list and latest message for a scanned
// conversation head.
func (s *Store) fillConversation(ctx context.Context, conv *conversation.Conversation) error {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT r.recipient_id, u.username
		FROM conversation_recipients AS r
		JOIN users AS u ON u.id = r.recipient_id
		WHERE r.conversation_id = ?
		ORDER BY r.joined_event_id ASC`,
		conv.ID,
	)
	if err != nil {
		return fmt.Errorf("select recipients: %w", err)
	}
	defer rows.Close()

	conv.Recipients = nil
	for rows.Next() {
		var recipient event.User
		if err := rows.Scan(&recipient.ID, &recipient.Username); err != nil {
			return fmt.Errorf("scan recipient: %w", err)
		}
		conv.Recipients = append(conv.Recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate recipients: %w", err)
	}

	var (
		latest    event.Event
		createdAt int64
		message   string
	)
	err = s.sqlDB.QueryRowContext(ctx, `
		SELECT m.id, m.created_at, m.created_by, u.username, m.message
		FROM conversation_latest_messages AS m
		JOIN users AS u ON u.id = m.created_by
		WHERE m.conversation_id = ?`,
		conv.ID,
	).Scan(&latest.ID, &createdAt, &latest.CreatedBy.ID, &latest.CreatedBy.Username, &message)
	if errors.Is(err, sql.ErrNoRows) {
		conv.LatestEvent = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("select latest message: %w", err)
	}

	latest.ConversationID = conv.ID
	latest.CreatedAt = fromMillis(createdAt)
	latest.Payload = event.MessageCreated{Message: message}
	conv.LatestEvent = &latest
	return nil
}
