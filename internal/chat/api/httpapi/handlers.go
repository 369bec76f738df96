package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/conclave-chat/conclave/internal/auth"
	"github.com/conclave-chat/conclave/internal/chat/app"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toSessionResponse(session app.Session) sessionResponse {
	return sessionResponse{
		Token: session.Token,
		User:  userResponse{ID: session.User.ID, Username: session.User.Username},
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.logger, "malformed request body")
		return
	}

	session, err := s.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.logger, "malformed request body")
		return
	}

	session, err := s.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	if err := s.service.Logout(r.Context(), claims.TokenID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	contacts, err := s.service.ListContacts(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	users := make([]userResponse, 0, len(contacts))
	for _, contact := range contacts {
		users = append(users, userResponse{ID: contact.ID, Username: contact.Username})
	}
	writeJSON(w, http.StatusOK, users)
}

type createConversationRequest struct {
	RecipientIDs []string `json:"recipientIds"`
	Title        *string  `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.logger, "malformed request body")
		return
	}

	committed, err := s.service.CreateConversation(r.Context(), claims.UserID, req.RecipientIDs, req.Title)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, committed)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	conversations, err := s.service.ListConversations(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	conv, err := s.service.GetConversation(r.Context(), claims.UserID, conversationID(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type updateTitleRequest struct {
	Title *string `json:"title"`
}

func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	var req updateTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.logger, "malformed request body")
		return
	}

	committed, err := s.service.UpdateTitle(r.Context(), claims.UserID, conversationID(r), req.Title)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, committed)
}

// handleListEvents serves the aggregated timeline by default; raw=1 returns
// the unaggregated log for audit use.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	raw := r.URL.Query().Get("raw") == "1"
	events, err := s.service.ListEvents(r.Context(), claims.UserID, conversationID(r), !raw)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.logger, "malformed request body")
		return
	}

	committed, err := s.service.PostMessage(r.Context(), claims.UserID, conversationID(r), req.Content)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, committed)
}

type recipientRequest struct {
	RecipientID string `json:"recipientId"`
}

func (s *Server) handleAddRecipient(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.logger, "malformed request body")
		return
	}

	committed, err := s.service.AddRecipient(r.Context(), claims.UserID, conversationID(r), req.RecipientID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, committed)
}

func (s *Server) handleRemoveRecipient(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.logger, "malformed request body")
		return
	}

	committed, err := s.service.RemoveRecipient(r.Context(), claims.UserID, conversationID(r), req.RecipientID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, committed)
}

func conversationID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("conversationID"))
}
