package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/session"
)

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponseDTO struct {
	User     *domain.User `json:"user"`
	CanOrder bool         `json:"can_order"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "validation_failed", "email and password are required")
		return
	}

	user, err := s.Login(ctx, req.Email, req.Password)
	if err != nil {
		var apiErr *api.APIError
		if errors.Is(err, api.ErrLoginFailed) || (errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError) {
			h.respondError(w, http.StatusUnauthorized, "login_failed", loginMessage(err))
			return
		}
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, UserResponseDTO{User: user, CanOrder: user.CanOrder()})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Logout(ctx); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req api.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := s.Signup(ctx, req); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{
		"message": "Registration submitted. Your account will be reviewed before you can sign in.",
	})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	user, err := s.RefreshUser(ctx)
	if session.IsAuthError(err) {
		h.handleError(w, err)
		return
	}
	if err != nil {
		// serve the stored snapshot while the API is unreachable
		user = s.User()
	}
	if user == nil {
		h.handleError(w, session.ErrNotSignedIn)
		return
	}
	h.respondJSON(w, http.StatusOK, UserResponseDTO{User: user, CanOrder: user.CanOrder()})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req api.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	user, err := s.UpdateProfile(ctx, req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, UserResponseDTO{User: user, CanOrder: user.CanOrder()})
}
