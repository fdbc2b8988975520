package api

import (
	"net/http"
	"strings"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"
)

func (s *HTTPServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime is disabled")
		return
	}

	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		fail(w, r, domain.Unauthorized("missing token"))
		return
	}

	user, err := s.deps.Users.Authenticate(r.Context(), token)
	if err != nil {
		fail(w, r, err)
		return
	}

	s.deps.Hub.ServeWS(w, r, &models.Claims{UserID: user.ID, Role: user.Role})
}
