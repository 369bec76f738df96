package event

import "time"

// AggregationWindow is the maximum gap between two RecipientCreated events by
// the same actor for them to collapse into one display element.
const AggregationWindow = time.Minute

// Aggregate collapses runs of RecipientCreated events by the same actor into
// RecipientsCreatedAggregate display events. Input order is preserved in the
// output and the caller chooses the direction; adjacency is judged against
// neighboring elements only.
//
// Aggregation is a display convenience, not compaction: events by different
// actors, events further than AggregationWindow apart, and every other event
// kind pass through untouched. Re-running Aggregate on its own output yields
// the same output.
func Aggregate(events []Event) []Event {
	out := make([]Event, 0, len(events))

	for i, evt := range events {
		created, isRecipientCreated := evt.Payload.(RecipientCreated)
		if !isRecipientCreated {
			out = append(out, evt)
			continue
		}

		// Merge into the previously emitted aggregate when adjacent.
		if len(out) > 0 {
			last := &out[len(out)-1]
			if aggregate, ok := last.Payload.(RecipientsCreatedAggregate); ok && aggregatable(evt, *last) {
				recipients := append(append([]User(nil), aggregate.Recipients...), created.Recipient)
				SortUsersByUsername(recipients)
				last.Payload = RecipientsCreatedAggregate{Recipients: recipients}
				continue
			}
		}

		// Seed a new aggregate when the next raw event would merge with it.
		if i+1 < len(events) {
			next := events[i+1]
			if _, ok := next.Payload.(RecipientCreated); ok && aggregatable(evt, next) {
				out = append(out, Event{
					ID:             evt.ID,
					ConversationID: evt.ConversationID,
					CreatedAt:      evt.CreatedAt,
					CreatedBy:      evt.CreatedBy,
					Payload:        RecipientsCreatedAggregate{Recipients: []User{created.Recipient}},
				})
				continue
			}
		}

		out = append(out, evt)
	}

	return out
}

// aggregatable reports whether two events belong to the same display run:
// same actor, timestamps within the aggregation window in either direction.
func aggregatable(a, b Event) bool {
	if a.CreatedBy.ID != b.CreatedBy.ID {
		return false
	}
	gap := a.CreatedAt.Sub(b.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= AggregationWindow
}
