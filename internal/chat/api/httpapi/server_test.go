package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/conclave-chat/conclave/internal/auth"
	"github.com/conclave-chat/conclave/internal/chat/app"
	"github.com/conclave-chat/conclave/internal/chat/storage/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqlite.Open(t.TempDir() + "/chat.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokenService([]byte("test-secret"), time.Hour, store)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}

	service := app.NewService(store, tokens, app.NewRegistry(nil), nil, app.DefaultLimits())
	srv := httptest.NewServer(NewServer("", service, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// doJSON sends a request and decodes the JSON response into a generic value.
func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp.StatusCode, payload
}

func registerUser(t *testing.T, srv *httptest.Server, username string) (userID, token string) {
	t.Helper()

	status, body := doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"password": "a strong password",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, status, body)
	}

	var session struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.User.ID, session.Token
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var wrapper struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	return wrapper.Error.Code
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	status, body := doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "Bad Name", "password": "a strong password",
	})
	if status != http.StatusBadRequest || errorCode(t, body) != "USERNAME_INVALID" {
		t.Fatalf("status %d code %s, want 400 USERNAME_INVALID", status, errorCode(t, body))
	}

	status, body = doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "ana", "password": "short",
	})
	if status != http.StatusBadRequest || errorCode(t, body) != "PASSWORD_TOO_WEAK" {
		t.Fatalf("status %d code %s, want 400 PASSWORD_TOO_WEAK", status, errorCode(t, body))
	}

	registerUser(t, srv, "ana")
	status, body = doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "ana", "password": "a strong password",
	})
	if status != http.StatusConflict || errorCode(t, body) != "USERNAME_TAKEN" {
		t.Fatalf("status %d code %s, want 409 USERNAME_TAKEN", status, errorCode(t, body))
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	srv := newTestServer(t)
	_, token := registerUser(t, srv, "ana")

	if status, _ := doJSON(t, srv, http.MethodGet, "/conversations", token, nil); status != http.StatusOK {
		t.Fatalf("list conversations before logout: status %d", status)
	}
	if status, _ := doJSON(t, srv, http.MethodPost, "/auth/logout", token, nil); status != http.StatusNoContent {
		t.Fatalf("logout: status %d", status)
	}
	status, body := doJSON(t, srv, http.MethodGet, "/conversations", token, nil)
	if status != http.StatusUnauthorized || errorCode(t, body) != "INVALID_AUTH_TOKEN" {
		t.Fatalf("status %d code %s after logout, want 401 INVALID_AUTH_TOKEN", status, errorCode(t, body))
	}
}

func TestRequestsWithoutTokenRejected(t *testing.T) {
	srv := newTestServer(t)

	status, body := doJSON(t, srv, http.MethodGet, "/conversations", "", nil)
	if status != http.StatusUnauthorized || errorCode(t, body) != "INVALID_AUTH_TOKEN" {
		t.Fatalf("status %d code %s, want 401 INVALID_AUTH_TOKEN", status, errorCode(t, body))
	}
}

func TestConversationLifecycle(t *testing.T) {
	srv := newTestServer(t)
	_, tokenA := registerUser(t, srv, "ana")
	idB, _ := registerUser(t, srv, "bruno")
	idC, tokenC := registerUser(t, srv, "carla")

	// Create a direct conversation.
	status, body := doJSON(t, srv, http.MethodPost, "/conversations", tokenA, map[string]any{
		"recipientIds": []string{idB},
	})
	if status != http.StatusCreated {
		t.Fatalf("create conversation: status %d body %s", status, body)
	}
	var committed []struct {
		Type           string `json:"type"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(body, &committed); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(committed) != 3 || committed[0].Type != "ConversationCreated" {
		t.Fatalf("creation batch = %v", committed)
	}
	conversationID := committed[0].ConversationID

	// A duplicate direct conversation conflicts.
	status, body = doJSON(t, srv, http.MethodPost, "/conversations", tokenA, map[string]any{
		"recipientIds": []string{idB},
	})
	if status != http.StatusConflict || errorCode(t, body) != "EXISTING_DIRECT_CONVERSATION" {
		t.Fatalf("status %d code %s, want 409 EXISTING_DIRECT_CONVERSATION", status, errorCode(t, body))
	}

	// Outsiders cannot read it.
	status, body = doJSON(t, srv, http.MethodGet, "/conversations/"+conversationID, tokenC, nil)
	if status != http.StatusForbidden || errorCode(t, body) != "NOT_CONVERSATION_RECIPIENT" {
		t.Fatalf("status %d code %s, want 403 NOT_CONVERSATION_RECIPIENT", status, errorCode(t, body))
	}

	// Rename, then read the title back.
	status, _ = doJSON(t, srv, http.MethodPatch, "/conversations/"+conversationID, tokenA, map[string]any{
		"title": "weekend plans",
	})
	if status != http.StatusOK {
		t.Fatalf("update title: status %d", status)
	}
	status, body = doJSON(t, srv, http.MethodGet, "/conversations/"+conversationID, tokenA, nil)
	if status != http.StatusOK {
		t.Fatalf("get conversation: status %d", status)
	}
	var conv struct {
		Title      *string `json:"title"`
		Recipients []struct {
			ID string `json:"id"`
		} `json:"recipients"`
	}
	if err := json.Unmarshal(body, &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	if conv.Title == nil || *conv.Title != "weekend plans" {
		t.Fatalf("title = %v, want weekend plans", conv.Title)
	}

	// Grow into a group, then shrink back to two.
	status, _ = doJSON(t, srv, http.MethodPost, "/conversations/"+conversationID+"/recipients", tokenA, map[string]string{
		"recipientId": idC,
	})
	if status != http.StatusCreated {
		t.Fatalf("add recipient: status %d", status)
	}
	status, _ = doJSON(t, srv, http.MethodDelete, "/conversations/"+conversationID+"/recipients", tokenA, map[string]string{
		"recipientId": idC,
	})
	if status != http.StatusOK {
		t.Fatalf("remove recipient: status %d", status)
	}
	status, body = doJSON(t, srv, http.MethodDelete, "/conversations/"+conversationID+"/recipients", tokenA, map[string]string{
		"recipientId": idB,
	})
	if status != http.StatusConflict || errorCode(t, body) != "MINIMUM_RECIPIENTS_AFTER_REMOVAL" {
		t.Fatalf("status %d code %s, want 409 MINIMUM_RECIPIENTS_AFTER_REMOVAL", status, errorCode(t, body))
	}
}

func TestEventsTimelineAggregation(t *testing.T) {
	srv := newTestServer(t)
	_, tokenA := registerUser(t, srv, "ana")
	idB, _ := registerUser(t, srv, "bruno")
	idC, _ := registerUser(t, srv, "carla")

	status, body := doJSON(t, srv, http.MethodPost, "/conversations", tokenA, map[string]any{
		"recipientIds": []string{idB, idC},
	})
	if status != http.StatusCreated {
		t.Fatalf("create conversation: status %d body %s", status, body)
	}
	var committed []struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(body, &committed); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	conversationID := committed[0].ConversationID

	// Aggregated by default: the three recipient additions collapse.
	status, body = doJSON(t, srv, http.MethodGet, "/conversations/"+conversationID+"/events", tokenA, nil)
	if status != http.StatusOK {
		t.Fatalf("list events: status %d", status)
	}
	var timeline []struct {
		Type       string `json:"type"`
		Recipients []struct {
			Username string `json:"username"`
		} `json:"recipients"`
	}
	if err := json.Unmarshal(body, &timeline); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(timeline) != 2 || timeline[0].Type != "RecipientsCreatedAggregate" {
		t.Fatalf("timeline = %v, want aggregate then creation", timeline)
	}
	if len(timeline[0].Recipients) != 3 || timeline[0].Recipients[0].Username != "ana" {
		t.Fatalf("aggregate recipients = %v, want sorted by username", timeline[0].Recipients)
	}

	// raw=1 returns the unaggregated log.
	status, body = doJSON(t, srv, http.MethodGet, "/conversations/"+conversationID+"/events?raw=1", tokenA, nil)
	if status != http.StatusOK {
		t.Fatalf("list raw events: status %d", status)
	}
	var rawLog []struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &rawLog); err != nil {
		t.Fatalf("decode raw log: %v", err)
	}
	if len(rawLog) != 4 {
		t.Fatalf("len(raw) = %d, want 4", len(rawLog))
	}
}

func TestLiveChannelReceivesMessage(t *testing.T) {
	srv := newTestServer(t)
	idA, tokenA := registerUser(t, srv, "ana")
	idB, tokenB := registerUser(t, srv, "bruno")

	// B opens the live channel before A posts.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?token=" + tokenB
	client, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial live channel: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	status, body := doJSON(t, srv, http.MethodPost, "/conversations", tokenA, map[string]any{
		"recipientIds": []string{idB},
	})
	if status != http.StatusCreated {
		t.Fatalf("create conversation: status %d body %s", status, body)
	}
	var committed []struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(body, &committed); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	conversationID := committed[0].ConversationID

	// Drain the creation batch frames B receives as a new member.
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 3; i++ {
		var frame map[string]any
		if err := websocket.JSON.Receive(client, &frame); err != nil {
			t.Fatalf("receive creation frame %d: %v", i, err)
		}
	}

	status, _ = doJSON(t, srv, http.MethodPost, "/conversations/"+conversationID+"/messages", tokenA, map[string]string{
		"content": "hi",
	})
	if status != http.StatusCreated {
		t.Fatalf("post message: status %d", status)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type      string `json:"type"`
		Message   string `json:"message"`
		CreatedBy struct {
			ID string `json:"id"`
		} `json:"createdBy"`
	}
	if err := websocket.JSON.Receive(client, &frame); err != nil {
		t.Fatalf("receive message frame: %v", err)
	}
	if frame.Type != "MessageCreated" || frame.Message != "hi" {
		t.Fatalf("frame = %+v, want MessageCreated with content hi", frame)
	}
	if frame.CreatedBy.ID != idA {
		t.Fatalf("frame createdBy = %q, want %q", frame.CreatedBy.ID, idA)
	}
}

func TestLiveChannelAuthenticatesWithFirstMessage(t *testing.T) {
	srv := newTestServer(t)
	_, tokenA := registerUser(t, srv, "ana")
	idB, tokenB := registerUser(t, srv, "bruno")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	client, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial live channel: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := websocket.JSON.Send(client, map[string]string{"token": tokenB}); err != nil {
		t.Fatalf("send auth frame: %v", err)
	}
	// The handshake goroutine needs to process the frame before B can be
	// dispatched to.
	time.Sleep(100 * time.Millisecond)

	// A conversation including B proves the handshake registered B's channel.
	status, body := doJSON(t, srv, http.MethodPost, "/conversations", tokenA, map[string]any{
		"recipientIds": []string{idB},
	})
	if status != http.StatusCreated {
		t.Fatalf("create conversation: status %d body %s", status, body)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type string `json:"type"`
	}
	if err := websocket.JSON.Receive(client, &frame); err != nil {
		t.Fatalf("receive creation frame: %v", err)
	}
	if frame.Type != "ConversationCreated" {
		t.Fatalf("first frame type = %q, want ConversationCreated", frame.Type)
	}
}

func TestLiveChannelRejectsBadToken(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?token=garbage"
	client, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial live channel: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := websocket.JSON.Receive(client, &frame); err != nil {
		t.Fatalf("receive error frame: %v", err)
	}
	if frame.Error.Code != "INVALID_AUTH_TOKEN" {
		t.Fatalf("error code = %q, want INVALID_AUTH_TOKEN", frame.Error.Code)
	}

	var next map[string]any
	if err := websocket.JSON.Receive(client, &next); err == nil {
		t.Fatal("expected connection to close after the error frame")
	}
}
