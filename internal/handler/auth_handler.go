package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"campus-auth/internal/config"
	"campus-auth/internal/service"
	"campus-auth/internal/token"
	"campus-auth/internal/util"

	"github.com/go-chi/chi/v5"
)

const tokenCookieName = "jwt"

// AuthHandler exposes the credential lifecycle over HTTP.
type AuthHandler struct {
	authService *service.AuthService
	signer      *token.Signer
	cfg         *config.Config
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, signer *token.Signer, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		signer:      signer,
		cfg:         cfg,
		logger:      logger,
	}
}

// Response is the JSON envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(err error, message string) Response {
	return Response{Success: false, Error: err.Error(), Message: message}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/login", h.Login)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(JWTMiddleware(h.signer, h.logger))
			r.Get("/me", h.Me)
		})
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ctx := service.WithRemoteAddr(r.Context(), r.RemoteAddr)
	if err := h.authService.Register(ctx, req.Email, req.Username, req.Password); err != nil {
		h.respondWithError(w, h.statusCode(err), err, "Registration failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK,
		successResponse(nil, "OTP sent to your email"))
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ctx := service.WithRemoteAddr(r.Context(), r.RemoteAddr)
	tok, err := h.authService.VerifyOTP(ctx, req.Email, req.OTP)
	if err != nil {
		status := h.statusCode(err)
		// a wrong email reads the same as a wrong code here
		if errors.Is(err, service.ErrNotFound) {
			status = http.StatusBadRequest
		}
		h.respondWithError(w, status, err, "OTP verification failed")
		return
	}

	h.setTokenCookie(w, tok)
	h.respondWithJSON(w, http.StatusOK,
		successResponse(tokenResponse{Token: tok}, "Email verified"))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ctx := service.WithRemoteAddr(r.Context(), r.RemoteAddr)
	tok, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.respondWithError(w, h.statusCode(err), err, "Login failed")
		return
	}

	h.setTokenCookie(w, tok)
	h.respondWithJSON(w, http.StatusOK,
		successResponse(tokenResponse{Token: tok}, "Logged in"))
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ctx := service.WithRemoteAddr(r.Context(), r.RemoteAddr)
	if err := h.authService.ForgotPassword(ctx, req.Email); err != nil {
		h.respondWithError(w, h.statusCode(err), err, "Password reset request failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK,
		successResponse(nil, "Password reset OTP sent to your email"))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ctx := service.WithRemoteAddr(r.Context(), r.RemoteAddr)
	tok, err := h.authService.ResetPassword(ctx, req.Email, req.OTP, req.NewPassword)
	if err != nil {
		h.respondWithError(w, h.statusCode(err), err, "Password reset failed")
		return
	}

	h.setTokenCookie(w, tok)
	h.respondWithJSON(w, http.StatusOK,
		successResponse(tokenResponse{Token: tok}, "Password reset"))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// best effort: record who logged out when a valid token is present
	userID := ""
	if raw := h.tokenFromRequest(r); raw != "" {
		if claims, err := h.signer.Verify(raw); err == nil {
			userID = claims.UserID
		}
	}

	ctx := service.WithRemoteAddr(r.Context(), r.RemoteAddr)
	h.authService.Logout(ctx, userID)

	h.clearTokenCookie(w)
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized,
			errors.New("missing token claims"), "Unauthorized")
		return
	}

	resp := meResponse{UserID: claims.UserID}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(resp, "OK"))
}

// setTokenCookie mirrors the token returned in the body as an HTTP-only
// cookie. Secure is set only in production so local clients over plain HTTP
// still receive it.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(h.signer.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(tokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (h *AuthHandler) statusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrInvalidOTP):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrNotification):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message))
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}
