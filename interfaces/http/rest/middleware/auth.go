package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"brainflow-backend/pkg/auth"
)

// Options configures the authentication middleware
type Options struct {
	Validator *auth.JWTValidator
	Limiter   auth.RateLimiter

	// AllowAnonymous accepts an X-User-ID header instead of a bearer token.
	// Development only.
	AllowAnonymous bool
}

// Authenticate validates the bearer token, enforces the per-user rate limit
// and attaches the authenticated user to the request context
func Authenticate(opts Options) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolveUser(r, opts)
			if err != nil {
				respondUnauthorized(w, err.Error())
				return
			}

			if opts.Limiter != nil {
				allowed, limitErr := opts.Limiter.Allow(r.Context(), "user:"+user.UserID)
				if limitErr == nil && !allowed {
					respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
					return
				}
			}

			ctx := auth.SetUserInContext(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveUser(r *http.Request, opts Options) (*auth.UserContext, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if opts.AllowAnonymous {
			if userID := r.Header.Get("X-User-ID"); userID != "" {
				return &auth.UserContext{UserID: userID, Roles: []string{"authenticated"}}, nil
			}
		}
		return nil, errors.New("missing authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, errors.New("invalid authorization header format")
	}
	if opts.Validator == nil {
		return nil, errors.New("authentication is not configured")
	}

	claims, err := opts.Validator.ValidateToken(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			return nil, errors.New("token has expired")
		case errors.Is(err, auth.ErrInvalidSignature):
			return nil, errors.New("invalid token signature")
		default:
			return nil, errors.New("invalid token")
		}
	}
	return &auth.UserContext{
		UserID: claims.UserID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	respondWithError(w, http.StatusUnauthorized, message)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"message": message,
		},
	})
}
