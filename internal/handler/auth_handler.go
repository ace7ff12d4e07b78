package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"botops-console/internal/config"
	"botops-console/internal/service"
	"botops-console/internal/util"
)

// Second-factor failures are deliberately collapsed to one external message
// so a caller cannot tell which check rejected them.
const genericVerifyMessage = "invalid verification attempt"

// AuthHandler exposes the two-phase login protocol over HTTP.
type AuthHandler struct {
	auth *service.AuthService
	cfg  *config.Config
}

func NewAuthHandler(auth *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		cfg:  cfg,
	}
}

// RegisterRoutes mounts the auth endpoints. sessionAuth guards the routes
// that require an established session.
func (h *AuthHandler) RegisterRoutes(router chi.Router, sessionAuth *SessionAuth) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/verify", h.Verify)
		r.Post("/logout", h.Logout)
		r.Get("/status", h.Status)

		r.Group(func(r chi.Router) {
			r.Use(sessionAuth.Require)
			r.Post("/password", h.ChangePassword)

			r.Group(func(r chi.Router) {
				r.Use(sessionAuth.RequireAdmin)
				r.Put("/whitelist", h.UpdateWhitelist)
			})
		})
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginChallengeResponse struct {
	CodeID           string `json:"code_id"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// Login runs the first factor and issues a pending verification code.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	challenge, err := h.auth.VerifyCredentials(r.Context(), req.Email, req.Password,
		sourceAddress(r), r.UserAgent())
	if err != nil {
		h.respondLoginError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(loginChallengeResponse{
		CodeID:           challenge.CodeID,
		ExpiresInSeconds: int(challenge.ExpiresIn.Seconds()),
	}, "verification code sent"))
}

type verifyRequest struct {
	CodeID string `json:"code_id"`
	Code   string `json:"code"`
}

// Verify completes the second factor and sets the session cookie.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CodeID == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "code_id and code are required")
		return
	}

	result, err := h.auth.VerifyCode(r.Context(), req.CodeID, req.Code, sourceAddress(r))
	if err != nil {
		if isSecondFactorError(err) {
			respondWithError(w, http.StatusUnauthorized, genericVerifyMessage)
			return
		}
		util.Error("Code verification failed", util.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, h.sessionCookie(result.Token, result.ExpiresAt))

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"user": result.User,
	}, "login successful"))
}

// Logout revokes the session and clears the cookie regardless of validity.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r, h.cfg.Auth.CookieName)

	if _, err := h.auth.Logout(r.Context(), token); err != nil {
		util.Error("Logout failed", util.ErrorField(err))
	}

	http.SetCookie(w, h.expiredCookie())
	respondWithJSON(w, http.StatusOK, successResponse(nil, "logged out"))
}

// Status reports whether the request carries a valid session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r, h.cfg.Auth.CookieName)

	user, _, err := h.auth.VerifySession(r.Context(), token)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidSession) {
			util.Error("Session verification failed", util.ErrorField(err))
		}
		respondWithJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"authenticated": false,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user":          user.Public(),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword re-verifies the current password before accepting the new one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		respondWithError(w, http.StatusBadRequest, "new password must be at least 8 characters")
		return
	}

	user := CurrentUser(r)
	err := h.auth.ChangePassword(r.Context(), user.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "current password is incorrect")
		case errors.Is(err, service.ErrUserUnavailable):
			respondWithError(w, http.StatusUnauthorized, "account unavailable")
		default:
			util.Error("Password change failed", util.ErrorField(err))
			respondWithError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "password changed"))
}

type whitelistRequest struct {
	UserID    string   `json:"user_id,omitempty"`
	Addresses []string `json:"addresses"`
}

// UpdateWhitelist replaces a user's IP allow-list wholesale. Admin only;
// an empty user_id targets the caller.
func (h *AuthHandler) UpdateWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	targetID := req.UserID
	if targetID == "" {
		targetID = CurrentUser(r).UserID
	}

	if err := h.auth.UpdateIPAllowlist(r.Context(), targetID, req.Addresses); err != nil {
		if errors.Is(err, service.ErrUserUnavailable) {
			respondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		util.Error("Allow-list update failed", util.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"addresses": req.Addresses,
	}, "allow-list updated"))
}

func (h *AuthHandler) respondLoginError(w http.ResponseWriter, err error) {
	var rateErr *service.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		respondWithError(w, http.StatusTooManyRequests, rateErr.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrAccessDenied):
		// Both collapse to one message to avoid leaking which check failed
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrNotificationFailed):
		respondWithError(w, http.StatusBadGateway, "verification code could not be delivered")
	default:
		util.Error("Login failed", util.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *AuthHandler) sessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *AuthHandler) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func isSecondFactorError(err error) bool {
	return errors.Is(err, service.ErrInvalidOrExpiredCode) ||
		errors.Is(err, service.ErrCodeExpired) ||
		errors.Is(err, service.ErrCodeAlreadyUsed) ||
		errors.Is(err, service.ErrSecurityMismatch) ||
		errors.Is(err, service.ErrInvalidCode) ||
		errors.Is(err, service.ErrTooManyCodeAttempts) ||
		errors.Is(err, service.ErrUserUnavailable)
}
