package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/httpx"

	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// TokenValidator decouples the middleware from the user package.
type TokenValidator interface {
	ValidateToken(tokenString string) (uuid.UUID, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != uuid.Nil
}

// MustIdentity returns the caller or an unauthenticated error.
func MustIdentity(r *http.Request) (Identity, error) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		return Identity{}, apperr.Unauthenticated("authentication required")
	}
	return id, nil
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on websocket upgrades.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			httpx.WriteError(w, apperr.Unauthenticated("missing authentication token"))
			return
		}

		userID, username, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			httpx.WriteError(w, apperr.Unauthenticated("invalid token"))
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: userID, Username: username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
