package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cartogra/cartogra/internal/api/domain"
	"github.com/cartogra/cartogra/internal/api/service"
	"github.com/cartogra/cartogra/internal/api/store"
	"github.com/cartogra/cartogra/pkg/httpx"
	"github.com/cartogra/cartogra/pkg/jwtx"
	"github.com/cartogra/cartogra/pkg/slogx"
)

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	TokenService *service.TokenService
	UserService  *service.UserService
}

type registerRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Superuser bool       `json:"is_superuser"`
	Active    bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		OrgID:     u.OrgID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Superuser: u.Superuser,
		Active:    u.Active,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

// HandleRegister creates a new organization and its first user.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.UserService.Register(ctx, service.RegisterInput{
		Email:            req.Email,
		Password:         req.Password,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		OrganizationName: req.OrganizationName,
	})
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	case errors.Is(err, service.ErrWeakPassword):
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", "password is too short")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "a valid email address is required")
		return
	case err != nil:
		slogx.FromContext(ctx).Error("register failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "registration failed")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

// HandleLogin verifies credentials and issues a token pair.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.UserService.Login(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "incorrect email or password")
		return
	case errors.Is(err, service.ErrInactiveUser):
		httpx.WriteError(w, http.StatusForbidden, "inactive_user", "this account has been deactivated")
		return
	case err != nil:
		slogx.FromContext(ctx).Error("login failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "login failed")
		return
	}

	pair, err := h.TokenService.CreatePair(ctx, jwtx.Identity{
		UserID:    u.ID,
		OrgID:     u.OrgID,
		Email:     u.Email,
		Superuser: u.Superuser,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("token issue failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "login failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleRefresh rotates a refresh token into a fresh pair. Every invalid
// outcome collapses into the same 401 so the endpoint cannot be used to
// distinguish expired from revoked tokens.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.TokenService.Refresh(ctx, req.RefreshToken)
	switch {
	case errors.Is(err, jwtx.ErrInvalidToken), errors.Is(err, service.ErrTokenRevoked):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "refresh token is invalid")
		return
	case err != nil:
		slogx.FromContext(ctx).Error("refresh failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "refresh failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleLogout revokes every outstanding token for the caller. A logout that
// cannot be recorded is reported as a failure instead of pretending the
// tokens are dead.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	if err := h.TokenService.RevokeAll(ctx, id.UserID); err != nil {
		slogx.FromContext(ctx).Error("logout failed", "error", err, "user_id", id.UserID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "logout could not be completed")
		return
	}

	// Blacklist the presented access token as well so it dies immediately
	// rather than at the revoke-all boundary.
	if raw := httpx.BearerToken(r); raw != "" {
		if err := h.TokenService.Revoke(ctx, raw); err != nil {
			slogx.FromContext(ctx).Warn("failed to blacklist access token on logout", "error", err)
		}
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the caller's user record.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	u, err := h.UserService.GetUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A valid token for a deleted user.
			httpx.WriteBearerError(w, "unknown user")
			return
		}
		slogx.FromContext(ctx).Error("failed to load user", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to load user")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}
