// Package httpapi exposes the chat service over HTTP and a websocket live
// channel.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/conclave-chat/conclave/internal/chat/app"
)

const defaultShutdownTimeout = 10 * time.Second

// Server serves the chat HTTP API.
type Server struct {
	service *app.Service
	logger  *log.Logger

	httpAddr        string
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// NewServer builds the API server over the chat service.
func NewServer(addr string, service *app.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		service:         service,
		logger:          logger,
		httpAddr:        addr,
		shutdownTimeout: defaultShutdownTimeout,
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the route table. Exposed separately so tests can drive the
// API without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(http.MethodGet+" /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc(http.MethodPost+" /auth/register", s.handleRegister)
	mux.HandleFunc(http.MethodPost+" /auth/login", s.handleLogin)
	mux.HandleFunc(http.MethodPost+" /auth/logout", s.requireAuth(s.handleLogout))

	mux.HandleFunc(http.MethodGet+" /users", s.requireAuth(s.handleListContacts))

	mux.HandleFunc(http.MethodGet+" /conversations", s.requireAuth(s.handleListConversations))
	mux.HandleFunc(http.MethodPost+" /conversations", s.requireAuth(s.handleCreateConversation))
	mux.HandleFunc(http.MethodGet+" /conversations/{conversationID}", s.requireAuth(s.handleGetConversation))
	mux.HandleFunc(http.MethodPatch+" /conversations/{conversationID}", s.requireAuth(s.handleUpdateTitle))
	mux.HandleFunc(http.MethodGet+" /conversations/{conversationID}/events", s.requireAuth(s.handleListEvents))
	mux.HandleFunc(http.MethodPost+" /conversations/{conversationID}/messages", s.requireAuth(s.handlePostMessage))
	mux.HandleFunc(http.MethodPost+" /conversations/{conversationID}/recipients", s.requireAuth(s.handleAddRecipient))
	mux.HandleFunc(http.MethodDelete+" /conversations/{conversationID}/recipients", s.requireAuth(s.handleRemoveRecipient))

	mux.HandleFunc(http.MethodGet+" /events", s.handleLiveChannel)

	return mux
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("api server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	s.logger.Printf("api server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
