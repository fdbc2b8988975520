package api

import (
	"net/http"
	"strconv"

	"skillconnect/internal/domain"
	"skillconnect/internal/service"

	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	Email    string   `json:"email" validate:"required,email,max=254"`
	Username string   `json:"username" validate:"required,min=2,max=50"`
	Password string   `json:"password" validate:"required,min=8,max=72"`
	Role     string   `json:"role" validate:"required,oneof='Service Provider' 'Community Member'"`
	Skills   []string `json:"skills" validate:"max=30,dive,max=60"`
	Phone    string   `json:"phone" validate:"max=30"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	Username   *string  `json:"username" validate:"omitempty,min=2,max=50"`
	Phone      *string  `json:"phone" validate:"omitempty,max=30"`
	Skills     []string `json:"skills" validate:"omitempty,max=30,dive,max=60"`
	ProfilePic *string  `json:"profilePic" validate:"omitempty,url,max=500"`
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	res, err := s.deps.Users.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Skills:   req.Skills,
		Phone:    req.Phone,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeAuth(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	res, err := s.deps.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeAuth(w, http.StatusOK, res)
}

func writeAuth(w http.ResponseWriter, status int, res *service.AuthResult) {
	writeJSON(w, status, map[string]any{
		"success":   true,
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
		"user":      res.User,
	})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Users.Me(r.Context(), currentUser(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *HTTPServer) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	user, err := s.deps.Users.UpdateProfile(r.Context(), currentUser(r), service.UpdateProfileInput{
		Username:   req.Username,
		Phone:      req.Phone,
		Skills:     req.Skills,
		ProfilePic: req.ProfilePic,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *HTTPServer) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	user, err := s.deps.Users.PublicProfile(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *HTTPServer) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.deps.Users.Providers(r.Context(), r.URL.Query().Get("skill"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "providers": providers})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("invalid " + name)
	}
	return id, nil
}
