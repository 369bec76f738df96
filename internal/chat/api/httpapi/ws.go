package httpapi

import (
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/conclave-chat/conclave/internal/auth"
)

// authFrame is the first client message on a live channel that did not carry
// a token on the upgrade request.
type authFrame struct {
	Token string `json:"token"`
}

const handshakeTimeout = 10 * time.Second

// handleLiveChannel upgrades the request to a websocket and registers it for
// event dispatch once the peer is authenticated. The token arrives either on
// the upgrade request (Authorization header or token query parameter) or as
// the connection's first message. A connection gets exactly one
// authentication attempt; failure is reported to the peer as a structured
// error frame before the socket closes.
//
// Past authentication the connection carries no client commands. The server
// pushes committed events and periodic pings; anything the client writes is
// drained and discarded until the socket closes.
func (s *Server) handleLiveChannel(w http.ResponseWriter, r *http.Request) {
	handler := websocket.Handler(func(ws *websocket.Conn) {
		claims, err := s.authenticateChannel(r, ws)
		if err != nil {
			s.logger.Printf("live channel handshake failed: %v", err)
			_ = websocket.JSON.Send(ws, newErrorBody(err))
			_ = ws.Close()
			return
		}

		conn := s.service.Registry().Register(claims.UserID, ws)
		defer s.service.Registry().Unregister(conn)

		s.logger.Printf("live channel connected for user %s", claims.UserID)

		buf := make([]byte, 512)
		for {
			if _, err := ws.Read(buf); err != nil {
				break
			}
		}

		s.logger.Printf("live channel closed for user %s", claims.UserID)
	})
	handler.ServeHTTP(w, r)
}

// authenticateChannel resolves the peer's claims from the upgrade request or,
// when the request carried no token, from the connection's first message.
func (s *Server) authenticateChannel(r *http.Request, ws *websocket.Conn) (auth.Claims, error) {
	token := auth.StripBearer(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	if token == "" {
		_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
		var frame authFrame
		if err := websocket.JSON.Receive(ws, &frame); err != nil {
			return auth.Claims{}, auth.ErrInvalidToken
		}
		_ = ws.SetReadDeadline(time.Time{})
		token = auth.StripBearer(frame.Token)
		if token == "" {
			return auth.Claims{}, auth.ErrInvalidToken
		}
	}

	return s.service.Tokens().Verify(r.Context(), token)
}
