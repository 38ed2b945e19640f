package handlers

import (
	"context"
	"net/http"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/civicwatch/incident-portal/internal/auth"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/civicwatch/incident-portal/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountService is the account directory used by the auth and profile
// endpoints.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.Account, string, error)
	Authenticate(ctx context.Context, email, password string) (*models.Account, string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetSelf(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// AuthHandler handles registration, login and password reset
type AuthHandler struct {
	svc    AccountService
	logger *zap.SugaredLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc AccountService, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type credentialResponse struct {
	User  *models.Account `json:"user"`
	Token string          `json:"token"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	account, token, err := h.svc.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Registration failed")
		return
	}

	respondJSON(w, http.StatusCreated, credentialResponse{User: account, Token: token})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	account, token, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Login failed")
		return
	}

	respondJSON(w, http.StatusOK, credentialResponse{User: account, Token: token})
}

// RequestReset handles POST /api/auth/request-reset. The response is the
// same whether or not the email belongs to an account.
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	resetURL, err := h.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		// Still report success so the endpoint cannot be used to probe accounts.
		h.logger.Errorw("Password reset request failed", "error", err)
	}

	respondJSON(w, http.StatusOK, struct {
		Success  bool   `json:"success"`
		ResetURL string `json:"reset_url,omitempty"`
	}{Success: true, ResetURL: resetURL})
}

// Reset handles POST /api/auth/reset
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respondServiceError(w, r, h.logger, err, "Password reset failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ProfileHandler serves account profiles to authenticated callers
type ProfileHandler struct {
	svc    AccountService
	logger *zap.SugaredLogger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(svc AccountService, logger *zap.SugaredLogger) *ProfileHandler {
	return &ProfileHandler{svc: svc, logger: logger}
}

// Me handles GET /api/profiles/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, apperr.KindUnauthorized, "Authorization required")
		return
	}

	account, err := h.svc.GetSelf(r.Context(), claims.UserID)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to fetch profile")
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// ByID handles GET /api/profiles/{id}
func (h *ProfileHandler) ByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Profile not found")
	if !ok {
		return
	}

	account, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "Failed to fetch profile")
		return
	}
	respondJSON(w, http.StatusOK, account)
}
