package httpapi

import (
	"net/http"

	"github.com/conclave-chat/conclave/internal/auth"
)

// authedHandler receives the verified claims of the requesting user.
type authedHandler func(w http.ResponseWriter, r *http.Request, claims auth.Claims)

// requireAuth verifies the bearer token before invoking the handler. The
// token also passes as a query parameter for clients that cannot set request
// headers.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.StripBearer(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, s.logger, auth.ErrInvalidToken)
			return
		}

		claims, err := s.service.Tokens().Verify(r.Context(), token)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		next(w, r, claims)
	}
}
