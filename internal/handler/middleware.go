package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"campus-auth/internal/token"
	"campus-auth/internal/util"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the verified token claims placed by
// JWTMiddleware.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return claims, ok
}

// JWTMiddleware authenticates requests with a bearer header or the token
// cookie, and rejects anything without a valid signature.
func JWTMiddleware(signer *token.Signer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ""
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				raw = strings.TrimPrefix(auth, "Bearer ")
			} else if c, err := r.Cookie(tokenCookieName); err == nil {
				raw = c.Value
			}

			if raw == "" {
				unauthorized(w, "missing token")
				return
			}

			claims, err := signer.Verify(raw)
			if err != nil {
				logger.Debug("token verification failed", util.ErrorField(err))
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Error: msg})
}
