package sqlite

import (
	"context"
	"testing"

	"github.com/conclave-chat/conclave/internal/chat/domain/event"
)

// seedConversation appends the canonical creation batch: the creation event
// plus a RecipientCreated per member, creator first.
func seedConversation(t *testing.T, store *Store, conversationID, creatorID string, memberIDs ...string) {
	t.Helper()
	drafts := []event.Draft{event.NewConversationCreated(conversationID, creatorID)}
	for _, memberID := range append([]string{creatorID}, memberIDs...) {
		drafts = append(drafts, event.NewRecipientCreated(conversationID, creatorID, memberID))
	}
	if _, err := store.AppendEvents(context.Background(), drafts); err != nil {
		t.Fatalf("seed conversation %s: %v", conversationID, err)
	}
}

func TestAppendEventsAssignsIncreasingIDs(t *testing.T) {
	store := openTestStore(t)
	seedUser(t, store, "user-1", "ana")
	seedUser(t, store, "user-2", "bruno")

	committed, err := store.AppendEvents(context.Background(), []event.Draft{
		event.NewConversationCreated("conv-1", "user-1"),
		event.NewRecipientCreated("conv-1", "user-1", "user-1"),
		event.NewRecipientCreated("conv-1", "user-1", "user-2"),
	})
	if err != nil {
		t.Fatalf("append events: %v", err)
	}
	if len(committed) != 3 {
		t.Fatalf("len(committed) = %d, want 3", len(committed))
	}
	for i := 1; i < len(committed); i++ {
		if committed[i].ID <= committed[i-1].ID {
			t.Fatalf("event ids not strictly increasing: %d then %d", committed[i-1].ID, committed[i].ID)
		}
	}
	if committed[0].CreatedBy.Username != "ana" {
		t.Fatalf("creator username = %q, want %q", committed[0].CreatedBy.Username, "ana")
	}
	payload, ok := committed[2].Payload.(event.RecipientCreated)
	if !ok {
		t.Fatalf("payload type = %T, want RecipientCreated", committed[2].Payload)
	}
	if payload.Recipient.Username != "bruno" {
		t.Fatalf("recipient username = %q, want %q", payload.Recipient.Username, "bruno")
	}
}

func TestAppendEventsUnknownUserFailsBatch(t *testing.T) {
	store := openTestStore(t)
	seedUser(t, store, "user-1", "ana")

	_, err := store.AppendEvents(context.Background(), []event.Draft{
		event.NewConversationCreated("conv-1", "user-1"),
		event.NewRecipientCreated("conv-1", "user-1", "ghost"),
	})
	if err == nil {
		t.Fatal("expected append to fail for unknown recipient")
	}

	// Batch atomicity: the valid first draft must not have committed.
	events, err := store.ListEvents(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("len(events) = %d, want 0 after failed batch", len(events))
	}
}

func TestAppendEventsRejectsInvalidDraft(t *testing.T) {
	store := openTestStore(t)
	seedUser(t, store, "user-1", "ana")

	_, err := store.AppendEvents(context.Background(), []event.Draft{
		{ConversationID: "conv-1", CreatedBy: "user-1", Type: event.TypeMessageCreated},
	})
	if err == nil {
		t.Fatal("expected validation error for empty message")
	}
}

func TestListEventsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	seedUser(t, store, "user-1", "ana")
	seedUser(t, store, "user-2", "bruno")
	seedConversation(t, store, "conv-1", "user-1", "user-2")

	if _, err := store.AppendEvents(context.Background(), []event.Draft{
		event.NewMessageCreated("conv-1", "user-2", "hello"),
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	events, err := store.ListEvents(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(events))
	}
	if events[0].Type() != event.TypeMessageCreated {
		t.Fatalf("first event type = %q, want newest first", events[0].Type())
	}
	for i := 1; i < len(events); i++ {
		if events[i].ID >= events[i-1].ID {
			t.Fatalf("events not ordered newest first at index %d", i)
		}
	}
}

func TestListEventsNullTitleRoundTrip(t *testing.T) {
	store := openTestStore(t)
	seedUser(t, store, "user-1", "ana")
	seedConversation(t, store, "conv-1", "user-1")

	title := "plans"
	if _, err := store.AppendEvents(context.Background(), []event.Draft{
		event.NewTitleUpdated("conv-1", "user-1", &title),
		event.NewTitleUpdated("conv-1", "user-1", nil),
	}); err != nil {
		t.Fatalf("append title events: %v", err)
	}

	events, err := store.ListEvents(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}

	cleared, ok := events[0].Payload.(event.TitleUpdated)
	if !ok {
		t.Fatalf("payload type = %T, want TitleUpdated", events[0].Payload)
	}
	if cleared.Title != nil {
		t.Fatalf("cleared title = %v, want nil", *cleared.Title)
	}
	set, ok := events[1].Payload.(event.TitleUpdated)
	if !ok {
		t.Fatalf("payload type = %T, want TitleUpdated", events[1].Payload)
	}
	if set.Title == nil || *set.Title != "plans" {
		t.Fatalf("set title = %v, want %q", set.Title, "plans")
	}
}

func TestAppendEventsEmptyBatch(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.AppendEvents(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestListEventsUnknownConversation(t *testing.T) {
	store := openTestStore(t)

	events, err := store.ListEvents(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("len(events) = %d, want 0", len(events))
	}
}
