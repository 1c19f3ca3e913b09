package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/validation"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps domain and API errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	var (
		gateErr *checkout.GateError
		apiErr  *api.APIError
		valErr  *validation.Error
	)

	switch {
	case errors.Is(err, api.ErrLoginFailed):
		h.respondError(w, http.StatusUnauthorized, "login_failed", loginMessage(err))
	case errors.Is(err, session.ErrNotSignedIn):
		h.respondError(w, http.StatusUnauthorized, "not_signed_in", "Please sign in to continue.")
	case errors.Is(err, api.ErrUnauthorized):
		h.respondError(w, http.StatusUnauthorized, "session_expired", "Your session has expired. Please sign in again.")
	case errors.As(err, &gateErr):
		h.respondJSON(w, http.StatusConflict, ErrorResponse{
			Error: gateErr.Decision.Message,
			Code:  string(gateErr.Decision.Reason),
		})
	case errors.Is(err, checkout.ErrNoShippingAddress):
		h.respondError(w, http.StatusConflict, "no_shipping_address", checkout.Message(err))
	case errors.Is(err, checkout.ErrValidationInProgress):
		h.respondError(w, http.StatusConflict, "validation_in_progress", checkout.Message(err))
	case errors.Is(err, checkout.ErrIllegalTransition):
		h.respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, checkout.ErrAttachmentRequired),
		errors.Is(err, checkout.ErrInvalidAttachment),
		errors.Is(err, checkout.ErrMissingItemData):
		h.respondError(w, http.StatusUnprocessableEntity, "validation_failed", checkout.Message(err))
	case errors.As(err, &valErr):
		h.respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   valErr.Message,
			Code:    "validation_failed",
			Details: valErr.Field,
		})
	case errors.Is(err, checkout.ErrOrderFailed):
		h.respondError(w, http.StatusBadGateway, "order_failed", checkout.Message(err))
	case errors.Is(err, checkout.ErrUserUnavailable):
		h.respondError(w, http.StatusBadGateway, "user_unavailable", checkout.Message(err))
	case errors.Is(err, api.ErrUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "service_unavailable", "The store is temporarily unavailable. Please try again.")
	case errors.As(err, &apiErr):
		status, code := http.StatusBadGateway, "upstream_error"
		if apiErr.Status < http.StatusInternalServerError {
			status, code = apiErr.Status, "rejected"
		}
		h.respondError(w, status, code, apiErr.Summary())
	case errors.Is(err, session.ErrInvalidSessionID):
		h.respondError(w, http.StatusBadRequest, "invalid_session", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.log.Error("request failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// loginMessage is the text shown for a failed sign-in.
func loginMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Summary()
	}
	return strings.TrimPrefix(err.Error(), api.ErrLoginFailed.Error()+": ")
}
