package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tyrone-Ward/nodeify/internal/auth"
	"github.com/Tyrone-Ward/nodeify/internal/metrics"
	"github.com/Tyrone-Ward/nodeify/internal/store"
)

// AuthMiddleware authenticates HTTP callers by client token.
type AuthMiddleware struct {
	tokens store.TokenDirectory
	logger zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens store.TokenDirectory, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// RequireClientToken resolves "Authorization: Bearer <token>" to an identity
// and stores it in the request context.
func (m *AuthMiddleware) RequireClientToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := auth.Resolve(r.Context(), m.tokens, token)
		if err != nil {
			if errors.Is(err, auth.ErrUnknownToken) {
				metrics.AuthFailures.WithLabelValues("http").Inc()
				jsonError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			m.logger.Error().Err(err).Str("token", auth.Mask(token)).Msg("token lookup failed")
			jsonError(w, http.StatusInternalServerError, "database error")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
