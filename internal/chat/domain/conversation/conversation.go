// Package conversation defines the externally visible conversation read model.
//
// A conversation is not a stored entity: every field here is recomputed from
// the event log projections at read time.
package conversation

import (
	"time"

	"github.com/conclave-chat/conclave/internal/chat/domain/event"
)

// DirectRecipientCount is the recipient count of a direct conversation,
// which is subject to the no-duplicate invariant.
const DirectRecipientCount = 2

// Conversation is the composed read model view of a conversation.
type Conversation struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy event.User `json:"createdBy"`
	// Title is nil until a TitleUpdated event exists; the latest such event
	// wins and may itself clear the title back to nil.
	Title *string `json:"title"`
	// Recipients is the current membership, net of recipient removals,
	// ordered by when each recipient joined.
	Recipients []event.User `json:"recipients"`
	// LatestEvent is the most recent MessageCreated event, nil while the
	// conversation has no messages.
	LatestEvent *event.Event `json:"latestEvent"`
	// LastActivityAt is the timestamp of the newest event of any type and
	// drives most-recent-activity-first ordering.
	LastActivityAt time.Time `json:"-"`
}

// IsDirect reports whether the conversation currently has exactly two
// recipients.
func (c Conversation) IsDirect() bool {
	return len(c.Recipients) == DirectRecipientCount
}

// HasRecipient reports whether userID is currently a recipient.
func (c Conversation) HasRecipient(userID string) bool {
	for _, recipient := range c.Recipients {
		if recipient.ID == userID {
			return true
		}
	}
	return false
}

// SanitizeRecipientIDs drops the acting user's own id and de-duplicates the
// rest, preserving first-seen order. Callers must run this before any
// recipient-set comparison: the direct-conversation uniqueness check counts
// ids and under-detects duplicates otherwise.
func SanitizeRecipientIDs(selfID string, recipientIDs []string) []string {
	seen := make(map[string]struct{}, len(recipientIDs))
	sanitized := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		if id == selfID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sanitized = append(sanitized, id)
	}
	return sanitized
}
