package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sandeepkv93/shooter-auth/internal/domain"
	"github.com/sandeepkv93/shooter-auth/internal/http/response"
	"github.com/sandeepkv93/shooter-auth/internal/observability"
	"github.com/sandeepkv93/shooter-auth/internal/security"
)

type contextKey string

const AccountContextKey contextKey = "account"

// Authenticator resolves a raw session token to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Account, error)
}

// BearerAuth requires an "Authorization: Bearer <token>" header carrying a
// valid session token.
func BearerAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordSessionTokenValidation(r.Context(), "missing", "header")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token", nil)
				return
			}
			account, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				if !errors.Is(err, security.ErrInvalidSessionToken) {
					observability.RecordSessionTokenValidation(r.Context(), "error", "header")
					response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not verify session", nil)
					return
				}
				observability.RecordSessionTokenValidation(r.Context(), tokenRejectReason(err), "header")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token", nil)
				return
			}
			observability.RecordSessionTokenValidation(r.Context(), "ok", "header")
			ctx := context.WithValue(r.Context(), AccountContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AccountFromContext(ctx context.Context) (*domain.Account, bool) {
	a, ok := ctx.Value(AccountContextKey).(*domain.Account)
	return a, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func tokenRejectReason(err error) string {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "expired"
	case errors.Is(err, security.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
